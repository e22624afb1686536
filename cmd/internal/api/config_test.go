package api

import (
	"testing"
	"time"
)

func TestLoadConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("PDFGATE_API_TRUST_PROXY", "true")
	t.Setenv("PDFGATE_API_LOGIN_EMAIL_MAX", "3")
	t.Setenv("PDFGATE_API_LOGIN_EMAIL_WINDOW", "90s")
	t.Setenv("PDFGATE_UPLOAD_MAX_BYTES", "1048576")

	cfg := LoadConfigFromEnv()

	if !cfg.TrustProxy {
		t.Fatalf("expected TrustProxy")
	}
	if cfg.LoginEmailMax != 3 || cfg.LoginEmailWindow != 90*time.Second {
		t.Fatalf("email limits=%d/%s", cfg.LoginEmailMax, cfg.LoginEmailWindow)
	}
	if cfg.UploadMaxBytes != 1<<20 {
		t.Fatalf("UploadMaxBytes=%d", cfg.UploadMaxBytes)
	}
}

func TestLoadConfigFromEnv_InvalidFallsBack(t *testing.T) {
	t.Setenv("PDFGATE_API_MAX_BODY_BYTES", "-5")
	t.Setenv("PDFGATE_API_LOGIN_IP_MAX", "lots")
	t.Setenv("PDFGATE_API_LOGIN_IP_WINDOW", "soon")

	cfg := LoadConfigFromEnv()

	if cfg.MaxBodyBytes != 1<<20 {
		t.Fatalf("MaxBodyBytes=%d", cfg.MaxBodyBytes)
	}
	if cfg.LoginIPMax != 20 || cfg.LoginIPWindow != 5*time.Minute {
		t.Fatalf("ip limits=%d/%s", cfg.LoginIPMax, cfg.LoginIPWindow)
	}
}
