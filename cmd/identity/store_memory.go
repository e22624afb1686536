package identity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used by tests and database-less runs.
type MemoryStore struct {
	hasher PasswordHasher

	mu      sync.RWMutex
	byID    map[string]*memUser
	byEmail map[string]string
}

type memUser struct {
	user User
	hash string
}

// NewMemoryStore returns an empty store. A nil hasher uses DefaultHasher.
func NewMemoryStore(hasher PasswordHasher) *MemoryStore {
	if hasher == nil {
		hasher = DefaultHasher()
	}
	return &MemoryStore{
		hasher:  hasher,
		byID:    make(map[string]*memUser),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	p, err := prepareCreate(op, in, s.hasher)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[p.emailNorm]; taken {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	return s.insertLocked(p)
}

func (s *MemoryStore) EnsureAdmin(ctx context.Context, in CreateUserInput) (User, bool, error) {
	const op = "identity.EnsureAdmin"
	if err := ctx.Err(); err != nil {
		return User{}, false, err
	}
	in.Role = RoleAdmin
	p, err := prepareCreate(op, in, s.hasher)
	if err != nil {
		return User{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byEmail[p.emailNorm]; ok {
		return s.byID[id].user, false, nil
	}
	u, err := s.insertLocked(p)
	return u, err == nil, err
}

func (s *MemoryStore) insertLocked(p preparedUser) (User, error) {
	id, err := NewULID(p.now)
	if err != nil {
		return User{}, err
	}
	u := User{
		ID:        id,
		Email:     p.email,
		EmailNorm: p.emailNorm,
		Name:      p.name,
		Role:      p.role,
		CreatedAt: p.now,
	}
	s.byID[id] = &memUser{user: u, hash: p.hash}
	s.byEmail[p.emailNorm] = id
	return u, nil
}

func (s *MemoryStore) GetUserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return User{}, NotFoundError{Op: "identity.GetUserByID", Resource: "user"}
	}
	return m.user, nil
}

func (s *MemoryStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "identity.GetUserAuthByEmail", Resource: "user"}
	}
	m := s.byID[id]
	return UserAuth{User: m.user, PasswordHash: m.hash}, nil
}

func (s *MemoryStore) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]User, 0, len(s.byID))
	for _, m := range s.byID {
		out = append(out, m.user)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) ListUserIDsByRole(ctx context.Context, role Role) ([]string, error) {
	users, err := s.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, u := range users {
		if u.Role == role {
			out = append(out, u.ID)
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, userID, hash string, _ time.Time) error {
	const op = "identity.UpdatePasswordHash"
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(hash) == "" {
		return invalid(op, "empty hash")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	m.hash = hash
	return nil
}

func (s *MemoryStore) DeleteUser(ctx context.Context, userID string) error {
	const op = "identity.DeleteUser"
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[userID]
	if !ok {
		return NotFoundError{Op: op, Resource: "user"}
	}
	delete(s.byEmail, m.user.EmailNorm)
	delete(s.byID, userID)
	return nil
}
