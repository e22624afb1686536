package viewsession

import "time"

const (
	DefaultTTL        = 2 * time.Hour
	DefaultTokenBytes = 32

	// maxTokenLen bounds what Resolve will look up; base64url of 64 bytes.
	maxTokenLen = 86
)

// Session is a persisted view session. UserID is denormalized from the share.
type Session struct {
	ID        string
	Token     string
	ShareID   string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Config controls token lifetime and entropy.
type Config struct {
	TTL           time.Duration
	TokenBytes    int
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{TTL: DefaultTTL, TokenBytes: DefaultTokenBytes}
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.TokenBytes <= 0 {
		c.TokenBytes = DefaultTokenBytes
	}
	return c
}

// reusable reports whether s can be handed out again at now for a share
// whose current grant started at notBefore.
func (s Session) reusable(notBefore, now time.Time) bool {
	return s.ExpiresAt.After(now) && !s.IssuedAt.Before(notBefore)
}
