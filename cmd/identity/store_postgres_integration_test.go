package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"pdfgate/cmd/internal/dbschema/dbtest"
)

// Integration tests are opt-in and require PDFGATE_DATABASE_URL.

func newPostgresFixture(t *testing.T) *PostgresStore {
	t.Helper()

	pool := dbtest.Open(t)
	schema := dbtest.FreshSchema(t, pool)
	s, err := NewPostgresStore(pool, WithSchema(schema), WithHasher(cheapHasher()))
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}
	return s
}

func TestPostgresStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	s := newPostgresFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if _, err := s.CreateUser(ctx, CreateUserInput{Email: "User@Example.com", Name: "U", Password: "very-strong-password-11"}); err != nil {
		t.Fatalf("create user 1: %v", err)
	}
	_, err := s.CreateUser(ctx, CreateUserInput{Email: "user@example.COM", Name: "U2", Password: "very-strong-password-12"})
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_EnsureAdmin_DoesNotOverwrite(t *testing.T) {
	s := newPostgresFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	first, created, err := s.EnsureAdmin(ctx, CreateUserInput{Email: "admin@example.com", Name: "Admin", Password: "admin-password-1"})
	if err != nil || !created {
		t.Fatalf("first EnsureAdmin: created=%v err=%v", created, err)
	}
	again, created, err := s.EnsureAdmin(ctx, CreateUserInput{Email: "admin@example.com", Name: "Renamed", Password: "admin-password-2"})
	if err != nil {
		t.Fatalf("second EnsureAdmin: %v", err)
	}
	if created || again.ID != first.ID || again.Name != "Admin" || again.Role != RoleAdmin {
		t.Fatalf("unexpected second result: created=%v user=%+v", created, again)
	}
}

func TestPostgresStore_AuthLookupAndRehash(t *testing.T) {
	s := newPostgresFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	u, err := s.CreateUser(ctx, CreateUserInput{Email: "reader@example.com", Name: "Reader", Password: "reader-password"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	ua, err := s.GetUserAuthByEmail(ctx, "  READER@example.com")
	if err != nil {
		t.Fatalf("GetUserAuthByEmail: %v", err)
	}
	if ua.User.ID != u.ID || ua.PasswordHash == "" {
		t.Fatalf("unexpected auth row: %+v", ua.User)
	}

	if err := s.UpdatePasswordHash(ctx, u.ID, "$argon2id$replaced", time.Now()); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	ua, err = s.GetUserAuthByEmail(ctx, "reader@example.com")
	if err != nil {
		t.Fatalf("GetUserAuthByEmail after update: %v", err)
	}
	if ua.PasswordHash != "$argon2id$replaced" {
		t.Fatalf("hash not updated")
	}

	if err := s.UpdatePasswordHash(ctx, "01ARZ3NDEKTSV4RRFFQ69G5FAV", "x", time.Now()); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_ListAndDelete(t *testing.T) {
	s := newPostgresFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	base := time.Now().UTC().Truncate(time.Millisecond)
	admin, _, err := s.EnsureAdmin(ctx, CreateUserInput{Email: "a@example.com", Name: "Admin", Password: "admin-password", Now: base})
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	u, err := s.CreateUser(ctx, CreateUserInput{Email: "u@example.com", Name: "U", Password: "user-password", Now: base.Add(time.Second)})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	all, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(all) != 2 || all[0].ID != admin.ID || all[1].ID != u.ID {
		t.Fatalf("unexpected list: %+v", all)
	}

	ids, err := s.ListUserIDsByRole(ctx, RoleUser)
	if err != nil {
		t.Fatalf("ListUserIDsByRole: %v", err)
	}
	if len(ids) != 1 || ids[0] != u.ID {
		t.Fatalf("ids=%v", ids)
	}

	if err := s.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := s.GetUserByID(ctx, u.ID); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestPostgresStore_DeleteUserCascade(t *testing.T) {
	s := newPostgresFixture(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	admin, _, err := s.EnsureAdmin(ctx, CreateUserInput{Email: "a@example.com", Name: "Admin", Password: "admin-password"})
	if err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	u, err := s.CreateUser(ctx, CreateUserInput{Email: "u@example.com", Name: "U", Password: "user-password"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	devID, _ := NewULID(time.Now())
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+pgIdent(s.schema, "devices")+` (id, user_id, device_id) VALUES ($1, $2, 'laptop')`,
		devID, u.ID,
	); err != nil {
		t.Fatalf("insert device: %v", err)
	}

	if _, err := s.DeleteUserCascade(ctx, admin.ID); !errors.Is(err, ErrAdminProtected) {
		t.Fatalf("admin: expected ErrAdminProtected, got %v", err)
	}
	if _, err := s.GetUserByID(ctx, admin.ID); err != nil {
		t.Fatalf("admin removed: %v", err)
	}
	if _, err := s.DeleteUserCascade(ctx, "01J00000000000000000000000"); !IsNotFound(err) {
		t.Fatalf("unknown: expected not found, got %v", err)
	}

	p, err := s.DeleteUserCascade(ctx, u.ID)
	if err != nil {
		t.Fatalf("DeleteUserCascade: %v", err)
	}
	if p.Devices != 1 || p.Shares != 0 || p.Sessions != 0 || p.ViewSessions != 0 {
		t.Fatalf("purged=%+v", p)
	}
	if _, err := s.GetUserByID(ctx, u.ID); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	var left int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM `+pgIdent(s.schema, "devices")).Scan(&left); err != nil {
		t.Fatalf("count devices: %v", err)
	}
	if left != 0 {
		t.Fatalf("devices left=%d", left)
	}
}
