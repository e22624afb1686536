package device

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is a mutex-guarded Store for tests and database-less runs.
// One lock covers every user, which trivially serializes approvals.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]*Record
	index map[pairKey]string
}

type pairKey struct{ user, device string }

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:  make(map[string]*Record),
		index: make(map[pairKey]string),
	}
}

func (s *MemoryStore) Inspect(ctx context.Context, userID, deviceID string, fn InspectFunc) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var cur *Record
	if id, ok := s.index[pairKey{userID, deviceID}]; ok {
		c := *s.byID[id]
		cur = &c
	}
	next, write, err := fn(cur)
	if err != nil {
		return Record{}, err
	}
	if write {
		stored := next
		s.byID[next.ID] = &stored
		s.index[pairKey{next.UserID, next.DeviceID}] = next.ID
	}
	return next, nil
}

func (s *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) (Record, error) {
	const op = "device.Mutate"
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.byID[id]
	if !ok {
		return Record{}, notFound(op)
	}
	others := 0
	for _, r := range s.byID {
		if r.UserID == cur.UserID && r.ID != cur.ID && r.Status == StatusApproved {
			others++
		}
	}
	next, err := fn(*cur, others)
	if err != nil {
		return Record{}, err
	}
	stored := next
	s.byID[id] = &stored
	return next, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byID[id]
	if !ok {
		return Record{}, notFound("device.Get")
	}
	return *r, nil
}

func (s *MemoryStore) Find(ctx context.Context, userID, deviceID string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.index[pairKey{userID, deviceID}]
	if !ok {
		return Record{}, notFound("device.Find")
	}
	return *s.byID[id], nil
}

func (s *MemoryStore) List(ctx context.Context, status Status) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]Record, 0, len(s.byID))
	for _, r := range s.byID {
		if status == "" || r.Status == status {
			out = append(out, *r)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

func (s *MemoryStore) DeleteForUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, r := range s.byID {
		if r.UserID == userID {
			delete(s.index, pairKey{r.UserID, r.DeviceID})
			delete(s.byID, id)
			n++
		}
	}
	return n, nil
}
