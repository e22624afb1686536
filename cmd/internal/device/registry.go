package device

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"pdfgate/cmd/identity/ids"
)

// SessionRevoker ends auth sessions bound to a device. Revoke calls it so a
// revoked device loses access immediately instead of on its next request.
type SessionRevoker interface {
	RevokeByDevice(ctx context.Context, userID, deviceID, reason string, now time.Time) (int, error)
}

// Registry is the Device Registry: login-time registration plus the admin
// approve/reject/revoke transitions.
type Registry struct {
	store      Store
	log        *slog.Logger
	publishers []Publisher
	sessions   SessionRevoker
}

// Option configures a Registry.
type Option func(*Registry)

// WithPublisher adds an event sink. Nil publishers are ignored.
func WithPublisher(p Publisher) Option {
	return func(r *Registry) {
		if p != nil {
			r.publishers = append(r.publishers, p)
		}
	}
}

// WithSessionRevoker wires proactive session revocation on device revoke.
func WithSessionRevoker(s SessionRevoker) Option {
	return func(r *Registry) { r.sessions = s }
}

func NewRegistry(store Store, log *slog.Logger, opts ...Option) *Registry {
	if log == nil {
		log = slog.Default()
	}
	r := &Registry{store: store, log: log}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// UseSessionRevoker sets the revoker after construction. The session service
// takes the registry as its device gate, so one side has to be bound late.
// Call it before the registry is shared.
func (r *Registry) UseSessionRevoker(s SessionRevoker) { r.sessions = s }

// RegisterOrInspect records a login attempt from (userID, deviceID) and
// reports whether the device may sign in. It is atomic per pair.
func (r *Registry) RegisterOrInspect(ctx context.Context, userID, deviceID, userAgent string, now time.Time) (Decision, Record, error) {
	const op = "device.RegisterOrInspect"

	deviceID, ok := NormalizeDeviceID(deviceID)
	if !ok || strings.TrimSpace(userID) == "" {
		return DecisionPending, Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "user and device id are required"}
	}
	now = now.UTC()

	var (
		decision Decision
		evType   EventType
	)
	rec, err := r.store.Inspect(ctx, userID, deviceID, func(cur *Record) (Record, bool, error) {
		fresh := Record{UserID: userID, DeviceID: deviceID, Label: Label(userAgent)}
		if cur == nil {
			id, err := ids.NewULID(now)
			if err != nil {
				return Record{}, false, err
			}
			fresh.ID = id
		}
		next, write, d, ev := inspect(cur, fresh, now)
		decision, evType = d, ev
		return next, write, nil
	})
	if err != nil {
		return DecisionPending, Record{}, err
	}

	if evType != "" {
		r.publish(Event{Type: evType, Device: rec, At: now})
	}
	return decision, rec, nil
}

func (r *Registry) Approve(ctx context.Context, id string, now time.Time) (Record, error) {
	return r.transition(ctx, "device.Approve", id, now, applyApprove, EventApproved)
}

func (r *Registry) Reject(ctx context.Context, id string, now time.Time) (Record, error) {
	return r.transition(ctx, "device.Reject", id, now, applyReject, EventRejected)
}

// Revoke moves an APPROVED device to REVOKED and ends its live sessions.
func (r *Registry) Revoke(ctx context.Context, id string, now time.Time) (Record, error) {
	rec, err := r.transition(ctx, "device.Revoke", id, now, applyRevoke, EventRevoked)
	if err != nil {
		return Record{}, err
	}
	if r.sessions != nil {
		n, serr := r.sessions.RevokeByDevice(ctx, rec.UserID, rec.DeviceID, "device_revoked", now)
		if serr != nil {
			// Transition still catches these sessions on their next request.
			r.log.Warn("device.revoke.sessions.fail", "device", rec.ID, "err", serr)
		} else if n > 0 {
			r.log.Info("device.revoke.sessions", "device", rec.ID, "revoked", n)
		}
	}
	return rec, nil
}

func (r *Registry) transition(ctx context.Context, op, id string, now time.Time, apply func(Record, int, time.Time) (Record, error), ev EventType) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "missing device id"}
	}
	now = now.UTC()
	rec, err := r.store.Mutate(ctx, id, func(cur Record, others int) (Record, error) {
		return apply(cur, others, now)
	})
	if err != nil {
		return Record{}, err
	}
	r.publish(Event{Type: ev, Device: rec, At: now})
	return rec, nil
}

// IsApproved reports whether (userID, deviceID) is currently APPROVED.
// A missing record is not an error.
func (r *Registry) IsApproved(ctx context.Context, userID, deviceID string) (bool, error) {
	rec, err := r.store.Find(ctx, userID, deviceID)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return rec.Status == StatusApproved, nil
}

func (r *Registry) Get(ctx context.Context, id string) (Record, error) {
	return r.store.Get(ctx, id)
}

// List returns devices newest first, optionally filtered by status.
func (r *Registry) List(ctx context.Context, status Status) ([]Record, error) {
	return r.store.List(ctx, status)
}

func (r *Registry) DeleteForUser(ctx context.Context, userID string) (int, error) {
	return r.store.DeleteForUser(ctx, userID)
}

func (r *Registry) publish(e Event) {
	for _, p := range r.publishers {
		p.PublishDeviceEvent(e)
	}
}
