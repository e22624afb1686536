package password

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Legacy controls verification of bcrypt hashes imported from the previous
// deployment. New hashes are always Argon2id.
type Legacy struct {
	AcceptBcrypt  bool
	BcryptMinCost int
	BcryptMaxCost int
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy
	Legacy Legacy
}

// DefaultConfig returns the baseline used for admin-provisioned accounts.
func DefaultConfig() Config {
	// Parallelism is clamped to [1..4] to keep container usage predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024,      // 64 MiB
			Iterations:  3,              // reasonable default for interactive logins
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above; safe conversion.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      12,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
		Legacy: Legacy{
			AcceptBcrypt:  true,
			BcryptMinCost: 12,
			BcryptMaxCost: 16,
		},
	}
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - PDFGATE_PASSWORD_MIN_LEN
// - PDFGATE_PASSWORD_MAX_LEN
// - PDFGATE_PASSWORD_REJECT_VERY_WEAK (true/false)
// - PDFGATE_PASSWORD_ACCEPT_BCRYPT (true/false)
// - PDFGATE_BCRYPT_MIN_COST
// - PDFGATE_ARGON2_MEMORY_KIB
// - PDFGATE_ARGON2_ITERATIONS
// - PDFGATE_ARGON2_PARALLELISM
// - PDFGATE_ARGON2_SALT_LEN
// - PDFGATE_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	steps := []struct {
		key   string
		apply func(string) error
	}{
		{"PDFGATE_PASSWORD_MIN_LEN", func(v string) (err error) {
			cfg.Policy.MinLength, err = atoiPositiveInt(v, 1, 1024)
			return err
		}},
		{"PDFGATE_PASSWORD_MAX_LEN", func(v string) (err error) {
			cfg.Policy.MaxLength, err = atoiPositiveInt(v, 1, 4096)
			return err
		}},
		{"PDFGATE_PASSWORD_REJECT_VERY_WEAK", func(v string) (err error) {
			cfg.Policy.RejectVeryWeak, err = parseBool(v)
			return err
		}},
		{"PDFGATE_PASSWORD_ACCEPT_BCRYPT", func(v string) (err error) {
			cfg.Legacy.AcceptBcrypt, err = parseBool(v)
			return err
		}},
		{"PDFGATE_BCRYPT_MIN_COST", func(v string) (err error) {
			cfg.Legacy.BcryptMinCost, err = atoiPositiveInt(v, bcrypt.MinCost, bcrypt.MaxCost)
			return err
		}},
		{"PDFGATE_ARGON2_MEMORY_KIB", func(v string) (err error) {
			cfg.Params.MemoryKiB, err = atou32(v, 8*1024, 1024*1024) // 8 MiB .. 1 GiB
			return err
		}},
		{"PDFGATE_ARGON2_ITERATIONS", func(v string) (err error) {
			cfg.Params.Iterations, err = atou32(v, 1, 20)
			return err
		}},
		{"PDFGATE_ARGON2_PARALLELISM", func(v string) error {
			u, err := atou32(v, 1, 64)
			if err != nil {
				return err
			}
			cfg.Params.Parallelism, err = u32ToU8(u)
			return err
		}},
		{"PDFGATE_ARGON2_SALT_LEN", func(v string) (err error) {
			cfg.Params.SaltLength, err = atou32(v, 8, 64)
			return err
		}},
		{"PDFGATE_ARGON2_KEY_LEN", func(v string) (err error) {
			cfg.Params.KeyLength, err = atou32(v, 16, 64)
			return err
		}},
	}

	for _, s := range steps {
		v, ok := os.LookupEnv(s.key)
		if !ok {
			continue
		}
		if err := s.apply(v); err != nil {
			return Config{}, fmt.Errorf("%s: %w", s.key, err)
		}
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}
	if cfg.Legacy.BcryptMinCost > cfg.Legacy.BcryptMaxCost {
		cfg.Legacy.BcryptMaxCost = cfg.Legacy.BcryptMinCost
	}

	return cfg, nil
}

func atoiPositiveInt(s string, minVal, maxVal int) (int, error) {
	s = strings.TrimSpace(s)
	i64, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an integer")
	}

	i := int(i64)
	if i < minVal || i > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return i, nil
}

func atou32(s string, minVal, maxVal uint32) (uint32, error) {
	s = strings.TrimSpace(s)
	u64, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("not an unsigned integer")
	}

	u := uint32(u64)
	if u < minVal || u > maxVal {
		return 0, fmt.Errorf("out of range [%d..%d]", minVal, maxVal)
	}
	return u, nil
}

func u32ToU8(u uint32) (uint8, error) {
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("out of range [0..%d]", math.MaxUint8)
	}
	return uint8(u), nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean")
	}
}
