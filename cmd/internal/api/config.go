package api

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls HTTP API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	LoginIPMax       int
	LoginIPWindow    time.Duration
	LoginEmailMax    int
	LoginEmailWindow time.Duration

	// UploadMaxBytes caps the multipart body on POST /admin/uploads. The
	// library enforces its own per-file limit on top.
	UploadMaxBytes int64
}

// LoadConfigFromEnv loads API config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:       envBool("PDFGATE_API_TRUST_PROXY", false),
		MaxBodyBytes:     envInt64("PDFGATE_API_MAX_BODY_BYTES", 1<<20), // 1 MiB
		LoginIPMax:       envInt("PDFGATE_API_LOGIN_IP_MAX", 20),
		LoginIPWindow:    envDuration("PDFGATE_API_LOGIN_IP_WINDOW", 5*time.Minute),
		LoginEmailMax:    envInt("PDFGATE_API_LOGIN_EMAIL_MAX", 5),
		LoginEmailWindow: envDuration("PDFGATE_API_LOGIN_EMAIL_WINDOW", 15*time.Minute),
		UploadMaxBytes:   envInt64("PDFGATE_UPLOAD_MAX_BYTES", 20<<20),
	}
	return cfg.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.LoginIPMax <= 0 {
		c.LoginIPMax = 20
	}
	if c.LoginIPWindow <= 0 {
		c.LoginIPWindow = 5 * time.Minute
	}
	if c.LoginEmailMax <= 0 {
		c.LoginEmailMax = 5
	}
	if c.LoginEmailWindow <= 0 {
		c.LoginEmailWindow = 15 * time.Minute
	}
	if c.UploadMaxBytes <= 0 {
		c.UploadMaxBytes = 20 << 20
	}
	return c
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
