package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RequiresConnectionString(t *testing.T) {
	t.Setenv("DB_CONNECTION_STRING", "")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error when DB_CONNECTION_STRING is unset")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DB_CONNECTION_STRING", "postgres://localhost/cronkit")
	t.Setenv("PORT", "")
	t.Setenv("NODE_ENV", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Port)
	}
	if cfg.IsProduction() {
		t.Error("expected non-production by default")
	}
	if cfg.Timezone != "Asia/Kolkata" {
		t.Errorf("expected default timezone Asia/Kolkata, got %q", cfg.Timezone)
	}
	if cfg.Tuning.SyncIntervalSeconds != 30 {
		t.Errorf("expected default sync interval 30s, got %d", cfg.Tuning.SyncIntervalSeconds)
	}
}

func TestLoad_EnvOverridesYAMLOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	yamlBody := []byte("allowedOrigins:\n  - https://example.com\ntuning:\n  syncIntervalSeconds: 10\n  generalRateLimitPerMin: 50\n")
	if err := os.WriteFile(path, yamlBody, 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("DB_CONNECTION_STRING", "postgres://localhost/cronkit")
	t.Setenv("ALLOWED_ORIGINS", "https://envwins.example.com")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://envwins.example.com" {
		t.Errorf("expected env ALLOWED_ORIGINS to win, got %v", cfg.AllowedOrigins)
	}
	if cfg.Tuning.SyncIntervalSeconds != 10 {
		t.Errorf("expected overlay sync interval 10, got %d", cfg.Tuning.SyncIntervalSeconds)
	}
	if cfg.Tuning.GeneralRateLimitPerMin != 50 {
		t.Errorf("expected overlay rate limit 50, got %d", cfg.Tuning.GeneralRateLimitPerMin)
	}
	if cfg.Tuning.MaxOpenConns != 20 {
		t.Errorf("expected untouched tuning field to keep its default, got %d", cfg.Tuning.MaxOpenConns)
	}
}

func TestLoad_MissingYAMLOverlayIsNotAnError(t *testing.T) {
	t.Setenv("DB_CONNECTION_STRING", "postgres://localhost/cronkit")
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err != nil {
		t.Fatalf("expected missing overlay file to be tolerated, got %v", err)
	}
}
