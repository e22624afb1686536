package session

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"
)

// Token formats for access tokens.
const (
	FormatPaseto = "paseto"
	FormatJWT    = "jwt"
)

// Config defines runtime configuration for the session subsystem.
type Config struct {
	// Issuer is the value set in the "iss" claim of access tokens.
	Issuer string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// ClockSkew defines the allowed time skew during token validation.
	ClockSkew time.Duration

	// RefreshTokenBytes is the entropy of opaque refresh tokens.
	RefreshTokenBytes int

	// TokenFormat selects the access token manager: "paseto" or "jwt".
	TokenFormat string

	// PasetoV4SecretKeyHex is the hex-encoded Ed25519 secret key
	// used to sign PASETO v4.public access tokens.
	PasetoV4SecretKeyHex string

	// JWTSecret is the HS256 key used when TokenFormat is "jwt".
	JWTSecret string
}

// DefaultConfig returns a secure default configuration suitable for development.
func DefaultConfig() Config {
	return Config{
		Issuer:            "pdfgate",
		AccessTokenTTL:    15 * time.Minute,
		RefreshTokenTTL:   7 * 24 * time.Hour,
		ClockSkew:         30 * time.Second,
		RefreshTokenBytes: 32,
		TokenFormat:       FormatPaseto,
	}
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - PDFGATE_PASETO_V4_SECRET_KEY_HEX (paseto format)
//   - PDFGATE_JWT_SECRET, at least 32 bytes (jwt format)
//
// Optional (durations must be valid Go duration strings):
//   - PDFGATE_AUTH_ISSUER
//   - PDFGATE_AUTH_TOKEN_FORMAT (paseto|jwt)
//   - PDFGATE_AUTH_ACCESS_TTL
//   - PDFGATE_AUTH_REFRESH_TTL
//   - PDFGATE_AUTH_CLOCK_SKEW
//   - PDFGATE_AUTH_REFRESH_TOKEN_BYTES
//
// Returns ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := os.Getenv("PDFGATE_AUTH_ISSUER"); v != "" {
		cfg.Issuer = v
	}

	if v := os.Getenv("PDFGATE_AUTH_TOKEN_FORMAT"); v != "" {
		cfg.TokenFormat = strings.ToLower(strings.TrimSpace(v))
	}

	for _, d := range []struct {
		key       string
		dst       *time.Duration
		allowZero bool
	}{
		{"PDFGATE_AUTH_ACCESS_TTL", &cfg.AccessTokenTTL, false},
		{"PDFGATE_AUTH_REFRESH_TTL", &cfg.RefreshTokenTTL, false},
		{"PDFGATE_AUTH_CLOCK_SKEW", &cfg.ClockSkew, true},
	} {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 || (parsed == 0 && !d.allowZero) {
			return Config{}, ErrConfig
		}
		*d.dst = parsed
	}

	if v := os.Getenv("PDFGATE_AUTH_REFRESH_TOKEN_BYTES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 32 || n > 64 {
			return Config{}, ErrConfig
		}
		cfg.RefreshTokenBytes = n
	}

	cfg.PasetoV4SecretKeyHex = strings.TrimSpace(os.Getenv("PDFGATE_PASETO_V4_SECRET_KEY_HEX"))
	cfg.JWTSecret = os.Getenv("PDFGATE_JWT_SECRET")

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the invariants LoadConfigFromEnv relies on.
func (c Config) Validate() error {
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		return ErrConfig
	}
	switch c.TokenFormat {
	case FormatPaseto:
		if _, err := hex.DecodeString(c.PasetoV4SecretKeyHex); err != nil || c.PasetoV4SecretKeyHex == "" {
			return ErrConfig
		}
	case FormatJWT:
		if len(c.JWTSecret) < 32 {
			return ErrConfig
		}
	default:
		return ErrConfig
	}
	return nil
}

// NewAccessTokenManager builds the manager selected by TokenFormat.
func NewAccessTokenManager(cfg Config) (AccessTokenManager, error) {
	switch cfg.TokenFormat {
	case FormatJWT:
		return NewJWTManager(cfg)
	case FormatPaseto, "":
		return NewPasetoV4PublicManager(cfg)
	default:
		return nil, ErrConfig
	}
}
