package identity

import (
	"errors"

	"pdfgate/cmd/security/password"
)

// PasswordHasher is the subset of password.Config identity relies on.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(encoded, plain string) (bool, error)
	NeedsRehash(encoded string) bool
}

// emailPolicy is implemented by hashers that also check a password against
// the account's email address.
type emailPolicy interface {
	ValidateFor(plain, email string) error
}

var (
	_ PasswordHasher = password.Config{}
	_ emailPolicy    = password.Config{}
)

// DefaultHasher returns the env-configured password config, falling back to
// defaults when the environment is malformed.
func DefaultHasher() password.Config {
	cfg, err := password.FromEnv()
	if err != nil {
		return password.DefaultConfig()
	}
	return cfg
}

func isPolicyError(err error) bool {
	return errors.Is(err, password.ErrPasswordTooShort) ||
		errors.Is(err, password.ErrPasswordTooLong) ||
		errors.Is(err, password.ErrWeakPassword) ||
		errors.Is(err, password.ErrPasswordContainsEmail)
}
