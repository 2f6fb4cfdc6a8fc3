package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("DOCSHUB_TOKEN_TTL_HOURS", "")
	t.Setenv("DATABASE_URL", "")
	cfg := Load()
	if cfg.Addr != ":5000" {
		t.Fatalf("Addr = %q", cfg.Addr)
	}
	if cfg.TokenTTL != 7*24*time.Hour {
		t.Fatalf("TokenTTL = %s, want 7 days", cfg.TokenTTL)
	}
	if cfg.DatabaseURL != "" {
		t.Fatal("DatabaseURL should default to empty so the embedded store is used")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DOCSHUB_TOKEN_TTL_HOURS", "1")
	t.Setenv("DOCSHUB_AUTOSAVE_MS", "250")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("DOCSHUB_CORS_ORIGIN", "https://docs.example.com")
	cfg := Load()
	if cfg.TokenTTL != time.Hour || cfg.AutosaveDebounce != 250*time.Millisecond {
		t.Fatalf("unexpected durations: %s %s", cfg.TokenTTL, cfg.AutosaveDebounce)
	}
	if !cfg.MinioUseSSL || cfg.CORSOrigin != "https://docs.example.com" {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestGetenvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("DOCSHUB_TEST_INT", "many")
	if got := getenvInt("DOCSHUB_TEST_INT", 7); got != 7 {
		t.Fatalf("getenvInt() = %d, want fallback 7", got)
	}
}
