// Package accounts orchestrates user lifecycle across identity, sharing,
// devices, auth sessions and view sessions.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"pdfgate/cmd/identity"
	"pdfgate/cmd/internal/auth/session"
)

// ErrInvalidInput is returned by NewService for missing collaborators.
var ErrInvalidInput = errors.New("accounts: invalid input")

// SeedAdminName is the display name given to a seeded admin.
const SeedAdminName = "Admin"

// Sharing grants existing uploads to new users and drops a user's shares.
type Sharing interface {
	GrantAllUploadsTo(ctx context.Context, userID string, now time.Time) (int, error)
	DeleteForUser(ctx context.Context, userID string) (int, error)
}

// UserPurger deletes every per-user row of one kind.
type UserPurger interface {
	DeleteForUser(ctx context.Context, userID string) (int, error)
}

// SessionRevoker ends all of a user's auth sessions.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, now time.Time, userID, reason string) (int, error)
}

// Service manages admin-driven account creation and deletion.
type Service struct {
	users    identity.Store
	sharing  Sharing
	views    UserPurger
	devices  UserPurger
	sessions SessionRevoker
	log      *slog.Logger
}

// Option configures the Service.
type Option func(*Service)

func WithViewSessions(p UserPurger) Option { return func(s *Service) { s.views = p } }
func WithDevices(p UserPurger) Option      { return func(s *Service) { s.devices = p } }
func WithSessions(r SessionRevoker) Option { return func(s *Service) { s.sessions = r } }
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(users identity.Store, sharing Sharing, opts ...Option) (*Service, error) {
	if users == nil || sharing == nil {
		return nil, ErrInvalidInput
	}
	s := &Service{users: users, sharing: sharing, log: slog.Default()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// CreateUser creates a USER account and shares every existing upload with
// it. Admin accounts are only created by SeedAdmin.
func (s *Service) CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, int, error) {
	if in.Now.IsZero() {
		in.Now = time.Now().UTC()
	}
	in.Role = identity.RoleUser

	u, err := s.users.CreateUser(ctx, in)
	if err != nil {
		return identity.User{}, 0, err
	}
	shared, err := s.sharing.GrantAllUploadsTo(ctx, u.ID, in.Now)
	if err != nil {
		return u, shared, err
	}
	s.log.Info("accounts.user.create", "user_id", u.ID, "shared", shared)
	return u, shared, nil
}

// DeleteUser removes a non-admin account and everything hanging off it.
// Stores implementing identity.CascadeDeleter do so in one transaction;
// otherwise each collaborator is purged in turn and the account row goes last.
func (s *Service) DeleteUser(ctx context.Context, userID string, now time.Time) error {
	const op = "accounts.DeleteUser"

	if strings.TrimSpace(userID) == "" {
		return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: "user id is required"}
	}

	if cd, ok := s.users.(identity.CascadeDeleter); ok {
		p, err := cd.DeleteUserCascade(ctx, userID)
		if err != nil {
			return err
		}
		s.logDelete(userID, p)
		return nil
	}

	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if u.Role.IsAdmin() {
		return identity.OpError{Op: op, Kind: identity.ErrAdminProtected, Msg: "admin accounts cannot be deleted"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var p identity.Purged
	if s.sessions != nil {
		if p.Sessions, err = s.sessions.RevokeAll(ctx, now, userID, session.ReasonUserDeleted); err != nil {
			return err
		}
	}
	// View sessions reference shares, so they go first.
	if s.views != nil {
		if p.ViewSessions, err = s.views.DeleteForUser(ctx, userID); err != nil {
			return err
		}
	}
	if p.Shares, err = s.sharing.DeleteForUser(ctx, userID); err != nil {
		return err
	}
	if s.devices != nil {
		if p.Devices, err = s.devices.DeleteForUser(ctx, userID); err != nil {
			return err
		}
	}
	if err := s.users.DeleteUser(ctx, userID); err != nil {
		return err
	}
	s.logDelete(userID, p)
	return nil
}

func (s *Service) logDelete(userID string, p identity.Purged) {
	s.log.Info("accounts.user.delete",
		"user_id", userID,
		"sessions", p.Sessions,
		"view_sessions", p.ViewSessions,
		"shares", p.Shares,
		"devices", p.Devices,
	)
}

// ListUsers returns every account, oldest first.
func (s *Service) ListUsers(ctx context.Context) ([]identity.User, error) {
	return s.users.ListUsers(ctx)
}

// SeedAdmin creates the first admin account. An existing account with the
// same email is left untouched.
func (s *Service) SeedAdmin(ctx context.Context, email, password, name string, now time.Time) (identity.User, bool, error) {
	if strings.TrimSpace(name) == "" {
		name = SeedAdminName
	}
	u, created, err := s.users.EnsureAdmin(ctx, identity.CreateUserInput{
		Email:    email,
		Name:     name,
		Password: password,
		Role:     identity.RoleAdmin,
		Now:      now,
	})
	if err != nil {
		return identity.User{}, false, err
	}
	s.log.Info("accounts.admin.seed", "user_id", u.ID, "created", created)
	return u, created, nil
}
