package device

import (
	"strings"
	"time"
)

// MaxApproved is the per-user cap on simultaneously approved devices.
const MaxApproved = 2

// MaxDeviceIDLen bounds the client-supplied device id.
const MaxDeviceIDLen = 128

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
	StatusRevoked  Status = "REVOKED"
)

// ParseStatus is case-insensitive.
func ParseStatus(s string) (Status, bool) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusApproved, StatusRejected, StatusRevoked:
		return st, true
	default:
		return "", false
	}
}

// Record is one (user, device) registration. Only the timestamp matching
// the current Status is set among ApprovedAt, RejectedAt and RevokedAt.
type Record struct {
	ID          string
	UserID      string
	DeviceID    string
	Label       string
	Status      Status
	RequestedAt time.Time
	ApprovedAt  *time.Time
	RejectedAt  *time.Time
	RevokedAt   *time.Time
	LastLoginAt *time.Time
}

// Decision is the login-time outcome of RegisterOrInspect.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionRejected
	DecisionAllowed
)

func (d Decision) String() string {
	switch d {
	case DecisionAllowed:
		return "allowed"
	case DecisionRejected:
		return "device_rejected"
	default:
		return "device_pending"
	}
}

// NormalizeDeviceID trims the id and reports whether it is usable.
func NormalizeDeviceID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > MaxDeviceIDLen {
		return "", false
	}
	return s, true
}

func ptr(t time.Time) *time.Time { return &t }

// inspect computes the login-time transition for an existing record (nil when
// the pair has never been seen). write reports whether next must be persisted.
func inspect(cur *Record, fresh Record, now time.Time) (next Record, write bool, d Decision, ev EventType) {
	if cur == nil {
		fresh.Status = StatusPending
		fresh.RequestedAt = now
		return fresh, true, DecisionPending, EventRequested
	}

	next = *cur
	switch cur.Status {
	case StatusApproved:
		next.LastLoginAt = ptr(now)
		return next, true, DecisionAllowed, ""
	case StatusRejected:
		return next, false, DecisionRejected, ""
	case StatusRevoked:
		next.Status = StatusPending
		next.RevokedAt = nil
		next.RequestedAt = now
		if fresh.Label != "" {
			next.Label = fresh.Label
		}
		return next, true, DecisionPending, EventRequested
	default:
		return next, false, DecisionPending, ""
	}
}

// applyApprove is permitted from any status while the user holds fewer than
// MaxApproved other approved devices.
func applyApprove(cur Record, approvedOthers int, now time.Time) (Record, error) {
	if approvedOthers >= MaxApproved {
		return Record{}, CapacityError{UserID: cur.UserID, Approved: approvedOthers}
	}
	cur.Status = StatusApproved
	cur.ApprovedAt = ptr(now)
	cur.RejectedAt = nil
	cur.RevokedAt = nil
	return cur, nil
}

func applyReject(cur Record, _ int, now time.Time) (Record, error) {
	cur.Status = StatusRejected
	cur.RejectedAt = ptr(now)
	cur.ApprovedAt = nil
	cur.RevokedAt = nil
	return cur, nil
}

func applyRevoke(cur Record, _ int, now time.Time) (Record, error) {
	if cur.Status != StatusApproved {
		return Record{}, StateError{Op: "device.Revoke", From: cur.Status}
	}
	cur.Status = StatusRevoked
	cur.RevokedAt = ptr(now)
	cur.ApprovedAt = nil
	return cur, nil
}
