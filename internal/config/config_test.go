package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MELTED_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr() != "0.0.0.0:5250" {
		t.Fatalf("listen addr = %q", cfg.ListenAddr())
	}
	if cfg.MaxUnits != 16 || cfg.StatusPoll != time.Second {
		t.Fatalf("unexpected defaults: units=%d poll=%v", cfg.MaxUnits, cfg.StatusPoll)
	}
	if cfg.DBBackend != DatabaseSQLite || cfg.DBDSN != "" {
		t.Fatalf("unexpected db defaults: %q %q", cfg.DBBackend, cfg.DBDSN)
	}
	if !cfg.Development() {
		t.Fatal("expected development by default")
	}
}

func TestLoadReadsEnvKeys(t *testing.T) {
	t.Setenv("MELTED_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
	t.Setenv("MELTED_PORT", "6000")
	t.Setenv("MELTED_PROXY", "playout-a")
	t.Setenv("MELTED_FFPROBE_BIN", "-")
	t.Setenv("MELTED_STATUS_POLL_MS", "250")
	t.Setenv("MELTED_ASRUN_ENABLED", "no")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Port != 6000 || cfg.Proxy != "playout-a" {
		t.Fatalf("port=%d proxy=%q", cfg.Port, cfg.Proxy)
	}
	if cfg.FFprobeBin != "" {
		t.Fatalf("probe should be disabled, got %q", cfg.FFprobeBin)
	}
	if cfg.StatusPoll != 250*time.Millisecond || cfg.AsRunEnabled {
		t.Fatalf("poll=%v asrun=%v", cfg.StatusPoll, cfg.AsRunEnabled)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "melted.env")
	if err := os.WriteFile(path, []byte("MELTED_MAX_UNITS=4\nMELTED_ROOT=/srv/media\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MELTED_ENV_FILE", path)
	// t.Setenv restores both keys after godotenv writes them.
	t.Setenv("MELTED_MAX_UNITS", "")
	t.Setenv("MELTED_ROOT", "")
	os.Unsetenv("MELTED_MAX_UNITS")
	os.Unsetenv("MELTED_ROOT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.MaxUnits != 4 || cfg.RootDir != "/srv/media" {
		t.Fatalf("env file ignored: units=%d root=%q", cfg.MaxUnits, cfg.RootDir)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"MELTED_PORT", "70000"},
		{"MELTED_MAX_UNITS", "-1"},
		{"MELTED_DB_BACKEND", "oracle"},
		{"MELTED_TRACING_SAMPLE_RATE", "2"},
		{"MELTED_ADMIN_BIND", "no-port"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv("MELTED_ENV_FILE", filepath.Join(t.TempDir(), "absent.env"))
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected %s=%s to be rejected", tt.key, tt.value)
			}
		})
	}
}
