package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Mode != "release" {
		t.Errorf("Mode = %q, want release", cfg.Mode)
	}
	if cfg.DBPath != "livecast.db" {
		t.Errorf("DBPath = %q, want livecast.db", cfg.DBPath)
	}
	if cfg.PingPeriod != 54*time.Second {
		t.Errorf("PingPeriod = %v, want 54s", cfg.PingPeriod)
	}
	if cfg.MsgRateLimit != 20 {
		t.Errorf("MsgRateLimit = %d, want 20", cfg.MsgRateLimit)
	}
	if cfg.MsgRateWindow != 10*time.Second {
		t.Errorf("MsgRateWindow = %v, want 10s", cfg.MsgRateWindow)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("CONFIG_ENV", "test")

	yaml := "mode: debug\nport: 9999\ndb_path: /tmp/other.db\nping_period: 30s\n"
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Mode != "debug" {
		t.Errorf("Mode = %q, want debug", cfg.Mode)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.PingPeriod != 30*time.Second {
		t.Errorf("PingPeriod = %v, want 30s", cfg.PingPeriod)
	}
	// Unset keys still fall back to defaults.
	if cfg.MsgRateLimit != 20 {
		t.Errorf("MsgRateLimit = %d, want default 20", cfg.MsgRateLimit)
	}
}
