package viewsession

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded Store for tests and database-less runs.
type MemoryStore struct {
	mu      sync.Mutex
	byToken map[string]Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byToken: make(map[string]Session)}
}

func (s *MemoryStore) ReuseOrCreate(ctx context.Context, candidate Session, notBefore, now time.Time) (Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  Session
		found bool
	)
	for _, vs := range s.byToken {
		if vs.ShareID != candidate.ShareID || !vs.reusable(notBefore, now) {
			continue
		}
		if !found || vs.ExpiresAt.After(best.ExpiresAt) {
			best, found = vs, true
		}
	}
	if found {
		return best, true, nil
	}
	s.byToken[candidate.Token] = candidate
	return candidate, false, nil
}

func (s *MemoryStore) GetByToken(ctx context.Context, token string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, ok := s.byToken[token]
	if !ok {
		return Session{}, OpError{Op: "viewsession.GetByToken", Kind: ErrNotFound}
	}
	return vs, nil
}

func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for tok, vs := range s.byToken {
		if !vs.ExpiresAt.After(now) {
			delete(s.byToken, tok)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for tok, vs := range s.byToken {
		if vs.UserID == userID {
			delete(s.byToken, tok)
			n++
		}
	}
	return n, nil
}
