package viewsession

import (
	"context"
	"time"
)

// Store persists view sessions.
type Store interface {
	// ReuseOrCreate runs atomically per candidate.ShareID. It returns the
	// reusable session with the latest expiry, or stores candidate when none
	// qualifies.
	ReuseOrCreate(ctx context.Context, candidate Session, notBefore, now time.Time) (s Session, reused bool, err error)
	GetByToken(ctx context.Context, token string) (Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	DeleteForUser(ctx context.Context, userID string) (int, error)
}
