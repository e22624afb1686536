package password

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// IsBcrypt reports whether encoded looks like a modular-crypt bcrypt hash.
func IsBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func (c Config) verifyBcrypt(encoded, password string) (bool, error) {
	if !c.Legacy.AcceptBcrypt {
		return false, ErrInvalidHash
	}
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return false, ErrInvalidHash
	}
	// Cost is attacker-influenced if the hash column is ever tampered with.
	if cost > c.Legacy.BcryptMaxCost {
		return false, ErrInvalidHash
	}
	// bcrypt silently truncates past 72 bytes; treat longer inputs as mismatch
	// instead of letting two distinct passwords collide.
	if len(password) > 72 {
		return false, nil
	}

	err = bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, ErrInvalidHash
	}
}

// WeakLegacy reports whether encoded is a bcrypt hash below the configured
// minimum cost.
func (c Config) WeakLegacy(encoded string) bool {
	if !IsBcrypt(encoded) {
		return false
	}
	cost, err := bcrypt.Cost([]byte(encoded))
	if err != nil {
		return true
	}
	return cost < c.Legacy.BcryptMinCost
}
