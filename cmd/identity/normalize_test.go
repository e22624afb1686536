package identity

import "testing"

func TestValidEmail(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"a@example.com":        true,
		" a@example.com ":      true,
		"Name <a@example.com>": false,
		"no-at-sign":           false,
		"":                     false,
		"two@@example.com":     false,
	}
	for in, want := range cases {
		if got := ValidEmail(in); got != want {
			t.Errorf("ValidEmail(%q)=%v want %v", in, got, want)
		}
	}
}

func TestParseRole(t *testing.T) {
	t.Parallel()

	if r, ok := ParseRole(" admin "); !ok || r != RoleAdmin {
		t.Fatalf("admin: %q %v", r, ok)
	}
	if r, ok := ParseRole("User"); !ok || r != RoleUser {
		t.Fatalf("user: %q %v", r, ok)
	}
	if _, ok := ParseRole("owner"); ok {
		t.Fatalf("owner should not parse")
	}
}
