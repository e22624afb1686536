package session

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// MemoryStore keeps sessions in process. Rotation runs under one mutex,
// matching the Postgres row lock.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[string]*Row
	byHash map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows:   make(map[string]*Row),
		byHash: make(map[string]string),
	}
}

func (s *MemoryStore) Create(_ context.Context, now time.Time, subj Subject, _ ClientContext, refreshHash string, expiresAt time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(now, subj, refreshHash, expiresAt), nil
}

func (s *MemoryStore) createLocked(now time.Time, subj Subject, refreshHash string, expiresAt time.Time) string {
	id := ulid.Make().String()
	used := now
	s.rows[id] = &Row{
		ID:               id,
		UserID:           subj.UserID,
		Role:             subj.Role,
		DeviceID:         subj.DeviceID,
		RefreshTokenHash: refreshHash,
		CreatedAt:        now,
		LastUsedAt:       &used,
		ExpiresAt:        expiresAt,
	}
	s.byHash[refreshHash] = id
	return id
}

func (s *MemoryStore) GetByID(_ context.Context, sessionID string) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[sessionID]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	return *r, nil
}

func (s *MemoryStore) Rotate(_ context.Context, now time.Time, in RotateInput) (Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[in.OldRefreshHash]
	if !ok {
		return Row{}, ErrSessionNotFound
	}
	old := s.rows[id]

	if !old.ExpiresAt.After(now) {
		return Row{}, ErrSessionExpired
	}
	if old.RevokedAt != nil && old.ReplacedBySessionID != nil {
		s.revokeWhereLocked(now, ReasonReuseDetected, func(r *Row) bool { return r.UserID == old.UserID })
		return Row{}, ErrRefreshReuseDetected
	}
	if old.RevokedAt != nil {
		if deviceReason(old.RevocationReason) {
			return Row{}, ErrSessionInvalidated
		}
		return Row{}, ErrSessionRevoked
	}

	newID := s.createLocked(now, old.Subject(), in.NewRefreshHash, in.NewExpiresAt)
	reason := ReasonRotation
	t := now
	old.LastUsedAt = &t
	old.RevokedAt = &t
	old.RevocationReason = &reason
	old.ReplacedBySessionID = &newID

	return *s.rows[newID], nil
}

func (s *MemoryStore) Touch(_ context.Context, now time.Time, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rows[sessionID]; ok {
		t := now
		r.LastUsedAt = &t
	}
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, now time.Time, sessionID string, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeWhereLocked(now, reason, func(r *Row) bool { return r.ID == sessionID })
	return nil
}

func (s *MemoryStore) RevokeAll(_ context.Context, now time.Time, userID string, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeWhereLocked(now, reason, func(r *Row) bool { return r.UserID == userID }), nil
}

func (s *MemoryStore) RevokeByDevice(_ context.Context, now time.Time, userID, deviceID string, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revokeWhereLocked(now, reason, func(r *Row) bool {
		return r.UserID == userID && r.DeviceID == deviceID
	}), nil
}

// revokeWhereLocked revokes live rows matching pred and returns how many changed.
func (s *MemoryStore) revokeWhereLocked(now time.Time, reason string, pred func(*Row) bool) int {
	n := 0
	for _, r := range s.rows {
		if r.RevokedAt != nil || !pred(r) {
			continue
		}
		t, why := now, reason
		r.RevokedAt = &t
		r.RevocationReason = &why
		n++
	}
	return n
}
