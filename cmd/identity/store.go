package identity

import (
	"context"
	"strings"
	"time"
)

// Role is a coarse authorization class. Admins bypass device gating.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// ParseRole accepts the canonical upper-case names (case-insensitive).
func ParseRole(s string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	default:
		return "", false
	}
}

func (r Role) IsAdmin() bool { return r == RoleAdmin }

// User is pdfgate's canonical security principal.
type User struct {
	ID        string
	Email     string
	EmailNorm string
	Name      string
	Role      Role
	CreatedAt time.Time
}

// UserAuth pairs a user with its stored credential hash.
// PasswordHash must never leave the process.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes an admin-initiated account creation.
// Role defaults to USER when empty.
type CreateUserInput struct {
	Email    string
	Name     string
	Password string
	Role     Role
	Now      time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// EnsureAdmin creates an ADMIN account for in.Email unless one with that
	// email already exists, in which case the existing row is returned untouched.
	EnsureAdmin(ctx context.Context, in CreateUserInput) (u User, created bool, err error)

	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	// ListUsers returns every account, oldest first.
	ListUsers(ctx context.Context) ([]User, error)
	ListUserIDsByRole(ctx context.Context, role Role) ([]string, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error

	// DeleteUser removes the account row. Dependent rows cascade in Postgres;
	// callers orchestrating other stores do their own cleanup first.
	DeleteUser(ctx context.Context, userID string) error
}

// Purged counts the dependent rows removed together with an account.
type Purged struct {
	Sessions     int
	Devices      int
	Shares       int
	ViewSessions int
}

// CascadeDeleter is implemented by stores that remove a USER account and
// every row hanging off it in one transaction. Either everything is gone
// afterwards or nothing changed.
type CascadeDeleter interface {
	DeleteUserCascade(ctx context.Context, userID string) (Purged, error)
}

type preparedUser struct {
	email     string
	emailNorm string
	name      string
	role      Role
	hash      string
	now       time.Time
}

// prepareCreate validates and hashes a CreateUserInput. Shared by all stores.
func prepareCreate(op string, in CreateUserInput, hasher PasswordHasher) (preparedUser, error) {
	email := strings.TrimSpace(in.Email)
	if !ValidEmail(email) {
		return preparedUser{}, invalid(op, "valid email is required")
	}
	name := NormalizeName(in.Name)
	if !validName(name) {
		return preparedUser{}, invalid(op, "name is required")
	}
	role := in.Role
	if role == "" {
		role = RoleUser
	}
	if _, ok := ParseRole(string(role)); !ok {
		return preparedUser{}, invalid(op, "unknown role")
	}
	if in.Password == "" {
		return preparedUser{}, invalid(op, "password is required")
	}
	if ep, ok := hasher.(emailPolicy); ok {
		if err := ep.ValidateFor(in.Password, email); err != nil {
			return preparedUser{}, invalid(op, err.Error())
		}
	}
	hash, err := hasher.Hash(in.Password)
	if err != nil {
		if isPolicyError(err) {
			return preparedUser{}, invalid(op, err.Error())
		}
		return preparedUser{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return preparedUser{
		email:     email,
		emailNorm: NormalizeEmail(email),
		name:      name,
		role:      role,
		hash:      hash,
		now:       now,
	}, nil
}
