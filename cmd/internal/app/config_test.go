package app

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "pdfgate.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv(ConfigEnvKey, "")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("defaults mismatch:\n got=%+v\nwant=%+v", cfg, DefaultConfig())
	}
}

func TestLoadConfig_YAMLThenEnv(t *testing.T) {
	path := writeConfigFile(t, `
http_addr: 127.0.0.1:9090
log_format: text
storage_dir: /srv/pdfgate
view_ttl: 30m
upload_max_bytes: 1048576
cors_allowed_origins:
  - https://app.example.com
`)
	t.Setenv("PDFGATE_VIEW_TTL", "45m")
	t.Setenv("PDFGATE_CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.HTTPAddr != "127.0.0.1:9090" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if cfg.LogFormat != "text" {
		t.Fatalf("LogFormat=%q", cfg.LogFormat)
	}
	if cfg.StorageDir != "/srv/pdfgate" {
		t.Fatalf("StorageDir=%q", cfg.StorageDir)
	}
	if cfg.UploadMaxBytes != 1<<20 {
		t.Fatalf("UploadMaxBytes=%d", cfg.UploadMaxBytes)
	}
	if cfg.ViewTTL != 45*time.Minute {
		t.Fatalf("ViewTTL=%v, env should win over yaml", cfg.ViewTTL)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if !reflect.DeepEqual(cfg.CORSAllowedOrigins, want) {
		t.Fatalf("CORSAllowedOrigins=%v want=%v", cfg.CORSAllowedOrigins, want)
	}
	if cfg.ReadHeaderTimeout != 5*time.Second {
		t.Fatalf("unset yaml key must keep default, got %v", cfg.ReadHeaderTimeout)
	}
}

func TestLoadConfig_PathFromEnv(t *testing.T) {
	path := writeConfigFile(t, "redis_addr: 127.0.0.1:6379\n")
	t.Setenv(ConfigEnvKey, path)

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.RedisAddr != "127.0.0.1:6379" {
		t.Fatalf("RedisAddr=%q", cfg.RedisAddr)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":        "http_addr: [",
		"bad log format":  "log_format: xml\n",
		"small token":     "view_token_bytes: 16\n",
		"min above max":   "db_max_conns: 2\ndb_min_conns: 5\n",
		"unknown type":    "view_ttl: forever\n",
		"zero upload max": "upload_max_bytes: 0\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadConfig(writeConfigFile(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestEnvHelpers_FallBackOnInvalid(t *testing.T) {
	t.Setenv("PDFGATE_TEST_INT", "-3")
	t.Setenv("PDFGATE_TEST_INT64", "abc")
	t.Setenv("PDFGATE_TEST_DUR", "soon")
	t.Setenv("PDFGATE_TEST_BOOL", "maybe")
	t.Setenv("PDFGATE_TEST_CSV", " , ")

	if got := EnvInt("PDFGATE_TEST_INT", 7); got != 7 {
		t.Fatalf("EnvInt=%d", got)
	}
	if got := EnvInt64("PDFGATE_TEST_INT64", 9); got != 9 {
		t.Fatalf("EnvInt64=%d", got)
	}
	if got := EnvDuration("PDFGATE_TEST_DUR", time.Second); got != time.Second {
		t.Fatalf("EnvDuration=%v", got)
	}
	if got := EnvBool("PDFGATE_TEST_BOOL", true); !got {
		t.Fatalf("EnvBool=%v", got)
	}
	if got := EnvCSV("PDFGATE_TEST_CSV", []string{"x"}); !reflect.DeepEqual(got, []string{"x"}) {
		t.Fatalf("EnvCSV=%v", got)
	}
}
