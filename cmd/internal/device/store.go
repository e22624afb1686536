package device

import "context"

// InspectFunc receives the current record for a (user, device) pair, or nil,
// and returns the record to persist when write is true.
type InspectFunc func(cur *Record) (next Record, write bool, err error)

// MutateFunc receives a record and the number of the same user's other
// APPROVED records, and returns the updated record.
type MutateFunc func(cur Record, approvedOthers int) (Record, error)

// Store persists device records. Inspect and Mutate run their callbacks
// while holding the owning user's lock, so approval counts cannot race.
type Store interface {
	Inspect(ctx context.Context, userID, deviceID string, fn InspectFunc) (Record, error)
	Mutate(ctx context.Context, id string, fn MutateFunc) (Record, error)

	Get(ctx context.Context, id string) (Record, error)
	Find(ctx context.Context, userID, deviceID string) (Record, error)

	// List returns records newest requestedAt first; an empty status lists all.
	List(ctx context.Context, status Status) ([]Record, error)
	DeleteForUser(ctx context.Context, userID string) (int, error)
}
