package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newVerifierFixture(t *testing.T) (*MemoryStore, *Verifier, User) {
	t.Helper()

	s := NewMemoryStore(cheapHasher())
	u, err := s.CreateUser(context.Background(), CreateUserInput{
		Email:    "reader@example.com",
		Name:     "Reader",
		Password: "reader-password",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	v, err := NewVerifier(s, cheapHasher(), nil)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	return s, v, u
}

func TestVerifier_Verify(t *testing.T) {
	t.Parallel()

	_, v, u := newVerifierFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	got, err := v.Verify(ctx, "READER@example.com", "reader-password", now)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got.ID != u.ID {
		t.Fatalf("id=%q want %q", got.ID, u.ID)
	}

	cases := []struct {
		name, email, password string
	}{
		{"wrong password", "reader@example.com", "nope-nope-nope"},
		{"unknown email", "ghost@example.com", "reader-password"},
		{"empty password", "reader@example.com", ""},
	}
	for _, tc := range cases {
		if _, err := v.Verify(ctx, tc.email, tc.password, now); !IsInvalidCredentials(err) {
			t.Fatalf("%s: expected invalid credentials, got %v", tc.name, err)
		}
	}
}

func TestVerifier_UpgradesLegacyBcrypt(t *testing.T) {
	t.Parallel()

	s, v, u := newVerifierFixture(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("imported-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	if err := s.UpdatePasswordHash(ctx, u.ID, string(legacy), time.Now()); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}

	if _, err := v.Verify(ctx, "reader@example.com", "imported-secret", time.Now()); err != nil {
		t.Fatalf("Verify legacy: %v", err)
	}

	ua, err := s.GetUserAuthByEmail(ctx, "reader@example.com")
	if err != nil {
		t.Fatalf("GetUserAuthByEmail: %v", err)
	}
	if !strings.HasPrefix(ua.PasswordHash, "$argon2id$") {
		t.Fatalf("hash not upgraded: %q", ua.PasswordHash[:8])
	}
	if _, err := v.Verify(ctx, "reader@example.com", "imported-secret", time.Now()); err != nil {
		t.Fatalf("Verify after upgrade: %v", err)
	}
}
