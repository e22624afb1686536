package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigEnvKey names the YAML config file when --config is not given.
const ConfigEnvKey = "PDFGATE_CONFIG"

// Config contains the server runtime configuration.
//
// Values are layered: DefaultConfig, then the optional YAML file, then
// PDFGATE_* environment variables. Secrets (token keys, JWT secret) are
// read by their own subsystems from the environment only.
type Config struct {
	HTTPAddr string `yaml:"http_addr"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes"`

	DatabaseURL string `yaml:"database_url"`
	DBMaxConns  int32  `yaml:"db_max_conns"`
	DBMinConns  int32  `yaml:"db_min_conns"`
	AutoMigrate bool   `yaml:"auto_migrate"`

	// If true, /readyz returns 503 unless the DB is configured and reachable.
	ReadinessRequireDB bool `yaml:"readiness_require_db"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	StorageDir     string `yaml:"storage_dir"`
	UploadMaxBytes int64  `yaml:"upload_max_bytes"`

	ViewTTL           time.Duration `yaml:"view_ttl"`
	ViewTokenBytes    int           `yaml:"view_token_bytes"`
	ViewSweepInterval time.Duration `yaml:"view_sweep_interval"`

	// Origins may use a trailing ":*" to match any port.
	CORSAllowedOrigins   []string `yaml:"cors_allowed_origins"`
	CORSAllowCredentials bool     `yaml:"cors_allow_credentials"`
	CORSMaxAgeSeconds    int      `yaml:"cors_max_age_seconds"`

	// If true, PDFGATE_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and refresh-token hashing must be HMAC-based.
	RequireTokenHMAC bool `yaml:"require_token_hmac"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:  "0.0.0.0:8080",
		LogLevel:  "info",
		LogFormat: "json",

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxHeaderBytes:    1 << 20,

		DBMaxConns:  10,
		AutoMigrate: true,

		StorageDir:     "./data/uploads",
		UploadMaxBytes: 20 << 20,

		ViewTTL:           2 * time.Hour,
		ViewTokenBytes:    32,
		ViewSweepInterval: 10 * time.Minute,

		CORSMaxAgeSeconds: 600,
	}
}

// LoadConfig layers the YAML file at path (if any) and the environment on
// top of DefaultConfig. An empty path falls back to PDFGATE_CONFIG.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = strings.TrimSpace(os.Getenv(ConfigEnvKey))
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTPAddr = EnvString("PDFGATE_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = EnvString("PDFGATE_LOG_LEVEL", c.LogLevel)
	c.LogFormat = EnvString("PDFGATE_LOG_FORMAT", c.LogFormat)

	c.ReadHeaderTimeout = EnvDuration("PDFGATE_HTTP_READ_HEADER_TIMEOUT", c.ReadHeaderTimeout)
	c.ReadTimeout = EnvDuration("PDFGATE_HTTP_READ_TIMEOUT", c.ReadTimeout)
	c.WriteTimeout = EnvDuration("PDFGATE_HTTP_WRITE_TIMEOUT", c.WriteTimeout)
	c.IdleTimeout = EnvDuration("PDFGATE_HTTP_IDLE_TIMEOUT", c.IdleTimeout)
	c.ShutdownTimeout = EnvDuration("PDFGATE_HTTP_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
	c.MaxHeaderBytes = EnvInt("PDFGATE_HTTP_MAX_HEADER_BYTES", c.MaxHeaderBytes)

	c.DatabaseURL = EnvString("PDFGATE_DATABASE_URL", c.DatabaseURL)
	c.DBMaxConns = EnvInt32("PDFGATE_DB_MAX_CONNS", c.DBMaxConns)
	c.DBMinConns = EnvInt32("PDFGATE_DB_MIN_CONNS", c.DBMinConns)
	c.AutoMigrate = EnvBool("PDFGATE_DB_AUTO_MIGRATE", c.AutoMigrate)
	c.ReadinessRequireDB = EnvBool("PDFGATE_READINESS_REQUIRE_DB", c.ReadinessRequireDB)

	c.RedisAddr = EnvString("PDFGATE_REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = EnvString("PDFGATE_REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = EnvInt("PDFGATE_REDIS_DB", c.RedisDB)

	c.StorageDir = EnvString("PDFGATE_STORAGE_DIR", c.StorageDir)
	c.UploadMaxBytes = EnvInt64("PDFGATE_UPLOAD_MAX_BYTES", c.UploadMaxBytes)

	c.ViewTTL = EnvDuration("PDFGATE_VIEW_TTL", c.ViewTTL)
	c.ViewTokenBytes = EnvInt("PDFGATE_VIEW_TOKEN_BYTES", c.ViewTokenBytes)
	c.ViewSweepInterval = EnvDuration("PDFGATE_VIEW_SWEEP_INTERVAL", c.ViewSweepInterval)

	c.CORSAllowedOrigins = EnvCSV("PDFGATE_CORS_ALLOWED_ORIGINS", c.CORSAllowedOrigins)
	c.CORSAllowCredentials = EnvBool("PDFGATE_CORS_ALLOW_CREDENTIALS", c.CORSAllowCredentials)
	c.CORSMaxAgeSeconds = EnvInt("PDFGATE_CORS_MAX_AGE_SECONDS", c.CORSMaxAgeSeconds)

	c.RequireTokenHMAC = EnvBool("PDFGATE_REQUIRE_TOKEN_HMAC", c.RequireTokenHMAC)
}

func (c Config) validate() error {
	if strings.TrimSpace(c.HTTPAddr) == "" {
		return fmt.Errorf("config: http_addr is required")
	}
	if strings.TrimSpace(c.StorageDir) == "" {
		return fmt.Errorf("config: storage_dir is required")
	}
	if c.UploadMaxBytes <= 0 {
		return fmt.Errorf("config: upload_max_bytes must be positive")
	}
	if c.ViewTokenBytes < 32 || c.ViewTokenBytes > 64 {
		return fmt.Errorf("config: view_token_bytes must be within [32, 64]")
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: log_format must be json or text")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("config: db_min_conns exceeds db_max_conns")
	}
	return nil
}
