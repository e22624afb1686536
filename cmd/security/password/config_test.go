package password

import (
	"os"
	"strings"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	// Ensure env is clean for this test.
	clearEnv := []string{
		"PDFGATE_PASSWORD_MIN_LEN",
		"PDFGATE_PASSWORD_MAX_LEN",
		"PDFGATE_PASSWORD_REJECT_VERY_WEAK",
		"PDFGATE_PASSWORD_ACCEPT_BCRYPT",
		"PDFGATE_BCRYPT_MIN_COST",
		"PDFGATE_ARGON2_MEMORY_KIB",
		"PDFGATE_ARGON2_ITERATIONS",
		"PDFGATE_ARGON2_PARALLELISM",
		"PDFGATE_ARGON2_SALT_LEN",
		"PDFGATE_ARGON2_KEY_LEN",
	}
	for _, k := range clearEnv {
		_ = os.Unsetenv(k)
	}

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	def := DefaultConfig()
	if cfg.Policy.MinLength != def.Policy.MinLength {
		t.Fatalf("min length mismatch")
	}
	if cfg.Params.MemoryKiB != def.Params.MemoryKiB {
		t.Fatalf("memory mismatch")
	}
	if !cfg.Legacy.AcceptBcrypt || cfg.Legacy.BcryptMinCost != 12 {
		t.Fatalf("legacy defaults mismatch: %+v", cfg.Legacy)
	}
}

func TestFromEnv_Override(t *testing.T) {
	t.Setenv("PDFGATE_PASSWORD_MIN_LEN", "10")
	t.Setenv("PDFGATE_PASSWORD_MAX_LEN", "200")
	t.Setenv("PDFGATE_PASSWORD_REJECT_VERY_WEAK", "true")
	t.Setenv("PDFGATE_ARGON2_MEMORY_KIB", "32768")
	t.Setenv("PDFGATE_ARGON2_ITERATIONS", "4")
	t.Setenv("PDFGATE_ARGON2_PARALLELISM", "2")
	t.Setenv("PDFGATE_ARGON2_SALT_LEN", "24")
	t.Setenv("PDFGATE_ARGON2_KEY_LEN", "32")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}

	if cfg.Policy.MinLength != 10 || cfg.Policy.MaxLength != 200 || !cfg.Policy.RejectVeryWeak {
		t.Fatalf("policy override failed: %+v", cfg.Policy)
	}
	if cfg.Params.MemoryKiB != 32768 || cfg.Params.Iterations != 4 || cfg.Params.Parallelism != 2 {
		t.Fatalf("argon2 override failed: %+v", cfg.Params)
	}
	if cfg.Params.SaltLength != 24 || cfg.Params.KeyLength != 32 {
		t.Fatalf("len override failed: %+v", cfg.Params)
	}
}

func TestFromEnv_InvalidMinMax(t *testing.T) {
	t.Setenv("PDFGATE_PASSWORD_MIN_LEN", "20")
	t.Setenv("PDFGATE_PASSWORD_MAX_LEN", "10")

	_, err := FromEnv()
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestFromEnv_LegacyOverrides(t *testing.T) {
	t.Setenv("PDFGATE_PASSWORD_ACCEPT_BCRYPT", "off")
	t.Setenv("PDFGATE_BCRYPT_MIN_COST", "14")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv error: %v", err)
	}
	if cfg.Legacy.AcceptBcrypt {
		t.Fatalf("expected bcrypt disabled")
	}
	if cfg.Legacy.BcryptMinCost != 14 {
		t.Fatalf("min cost=%d want 14", cfg.Legacy.BcryptMinCost)
	}
}

func TestFromEnv_BadValueNamesKey(t *testing.T) {
	t.Setenv("PDFGATE_ARGON2_ITERATIONS", "many")

	_, err := FromEnv()
	if err == nil || !strings.Contains(err.Error(), "PDFGATE_ARGON2_ITERATIONS") {
		t.Fatalf("expected error naming the key, got %v", err)
	}
}
