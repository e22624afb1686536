package session

import (
	"context"
	"net"
	"time"

	"pdfgate/cmd/identity"
)

// Subject is who a session belongs to. DeviceID is empty for admins.
type Subject struct {
	UserID   string
	Role     identity.Role
	DeviceID string
}

// ClientContext describes the client presenting credentials.
type ClientContext struct {
	UserAgent string
	IP        net.IP
}

// Row mirrors the pdfgate.sessions row used by the session subsystem.
type Row struct {
	ID                  string
	UserID              string
	Role                identity.Role
	DeviceID            string
	RefreshTokenHash    string
	CreatedAt           time.Time
	LastUsedAt          *time.Time
	ExpiresAt           time.Time
	RevokedAt           *time.Time
	RevocationReason    *string
	ReplacedBySessionID *string
}

// Subject returns the identity the row was issued to.
func (r Row) Subject() Subject {
	return Subject{UserID: r.UserID, Role: r.Role, DeviceID: r.DeviceID}
}

// RotateInput carries the replacement token for Store.Rotate.
type RotateInput struct {
	OldRefreshHash string
	NewRefreshHash string
	NewExpiresAt   time.Time
	Client         ClientContext
}

// Store abstracts persistence for session state.
type Store interface {
	Create(ctx context.Context, now time.Time, subj Subject, client ClientContext, refreshHash string, expiresAt time.Time) (sessionID string, err error)

	GetByID(ctx context.Context, sessionID string) (Row, error)

	// Rotate atomically replaces the session owning OldRefreshHash with a new
	// row that inherits its subject. Presenting an already rotated token
	// revokes every session of the user and returns ErrRefreshReuseDetected.
	Rotate(ctx context.Context, now time.Time, in RotateInput) (newRow Row, err error)

	Touch(ctx context.Context, now time.Time, sessionID string) error

	// Revoke revokes a single session. Already revoked rows keep their first reason.
	Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error

	RevokeAll(ctx context.Context, now time.Time, userID string, reason string) (int, error)
	RevokeByDevice(ctx context.Context, now time.Time, userID, deviceID string, reason string) (int, error)
}
