package password

import (
	"errors"
	"testing"
)

// testConfig keeps Argon2id cheap; policy defaults are untouched.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	return cfg
}

func TestHash_RoundTrip(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	h, err := cfg.Hash("reader seat for the q3 board deck")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}

	for _, tc := range []struct {
		plain string
		want  bool
	}{
		{"reader seat for the q3 board deck", true},
		{"reader seat for the q4 board deck", false},
		{"", false},
	} {
		ok, err := cfg.Verify(h, tc.plain)
		if err != nil {
			t.Fatalf("Verify(%q): %v", tc.plain, err)
		}
		if ok != tc.want {
			t.Fatalf("Verify(%q)=%v want %v", tc.plain, ok, tc.want)
		}
	}
	if cfg.NeedsRehash(h) {
		t.Fatalf("fresh hash must not need rehash")
	}
}

func TestVerify_RejectsMalformedHashes(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	for _, h := range []string{
		"not-a-hash",
		"$argon2id$v=19$m=8192,t=1,p=1$c2FsdA$",
		"$argon2id$v=18$m=8192,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
		"$argon2id$v=19$m=999999999,t=1,p=1$c2FsdHNhbHRzYWx0$aGFzaGhhc2hoYXNoaGFzaA",
	} {
		ok, err := cfg.Verify(h, "whatever it is")
		if !errors.Is(err, ErrInvalidHash) || ok {
			t.Fatalf("Verify(%q)=%v,%v want false, ErrInvalidHash", h, ok, err)
		}
	}
}

func TestValidate_Length(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Policy.MinLength = 12
	cfg.Policy.MaxLength = 16

	cases := map[string]error{
		"short":                                ErrPasswordTooShort,
		"this password is definitely too long": ErrPasswordTooLong,
		"goodpassw0rd!":                        nil,
		"ünïcödé-pässwd":                       nil,
		"äöüäöüäöüä":                           ErrPasswordTooShort,
	}

	for pw, want := range cases {
		if err := cfg.Validate(pw); !errors.Is(err, want) {
			t.Fatalf("Validate(%q)=%v want %v", pw, err, want)
		}
	}
}

func TestValidate_RejectVeryWeak(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Policy.MinLength = 6
	cfg.Policy.RejectVeryWeak = true

	for _, pw := range []string{"password", "PDFGate123", "ChangeMe", "11111111", "aaaaaaaa", "04081987", "      "} {
		if err := cfg.Validate(pw); !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("Validate(%q)=%v want ErrWeakPassword", pw, err)
		}
	}
	for _, pw := range []string{"a-very-ok-pass", "040819870408", "quarterly-review"} {
		if err := cfg.Validate(pw); err != nil {
			t.Fatalf("Validate(%q)=%v want nil", pw, err)
		}
	}

	cfg.Policy.RejectVeryWeak = false
	if err := cfg.Validate("password"); err != nil {
		t.Fatalf("weak list applied while disabled: %v", err)
	}
}

func TestValidateFor_Email(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Policy.MinLength = 8

	for _, tc := range []struct {
		pw, email string
		want      error
	}{
		{"Reader@Example.com", "reader@example.com", ErrPasswordContainsEmail},
		{"reader2024!", "reader@example.com", ErrPasswordContainsEmail},
		{"READER-2024", "reader@example.com", ErrPasswordContainsEmail},
		{"reader-on-tuesdays", "reader@example.com", nil},
		{"bob12345", "bob@example.com", nil},
		{"short", "reader@example.com", ErrPasswordTooShort},
		{"correct-horse-42", "", nil},
	} {
		if err := cfg.ValidateFor(tc.pw, tc.email); !errors.Is(err, tc.want) {
			t.Fatalf("ValidateFor(%q, %q)=%v want %v", tc.pw, tc.email, err, tc.want)
		}
	}
}

func TestHash_EnforcesPolicy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	if _, err := cfg.Hash("tiny"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("Hash(tiny)=%v want ErrPasswordTooShort", err)
	}
}
