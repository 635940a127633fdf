package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Poll.MaxAttempts != 15 {
		t.Errorf("Poll.MaxAttempts = %d, want 15", cfg.Poll.MaxAttempts)
	}
	if cfg.Poll.IntervalMs != 3000 {
		t.Errorf("Poll.IntervalMs = %d, want 3000", cfg.Poll.IntervalMs)
	}
	if cfg.Poll.TimeoutMs != 45000 {
		t.Errorf("Poll.TimeoutMs = %d, want 45000", cfg.Poll.TimeoutMs)
	}
	if cfg.Wait.TimeoutMs != 60000 {
		t.Errorf("Wait.TimeoutMs = %d, want 60000", cfg.Wait.TimeoutMs)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.Gateway.BaseURL = "http://10.0.0.5:3002"
	cfg.Poll.MaxAttempts = 5
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Gateway.BaseURL != "http://10.0.0.5:3002" {
		t.Errorf("Gateway.BaseURL = %q", loaded.Gateway.BaseURL)
	}
	if loaded.Poll.MaxAttempts != 5 {
		t.Errorf("Poll.MaxAttempts = %d, want 5", loaded.Poll.MaxAttempts)
	}
	// Unset fields keep defaults.
	if loaded.Wait.IntervalMs != 5000 {
		t.Errorf("Wait.IntervalMs = %d, want default 5000", loaded.Wait.IntervalMs)
	}
}

func TestLoadMissingUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Poll.MaxAttempts != 15 {
		t.Errorf("Poll.MaxAttempts = %d, want default 15", cfg.Poll.MaxAttempts)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("WALINK_GATEWAY_URL", "http://override:9000")
	t.Setenv("WALINK_LISTEN", "0.0.0.0:9821")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.BaseURL != "http://override:9000" {
		t.Errorf("Gateway.BaseURL = %q, want env override", cfg.Gateway.BaseURL)
	}
	if cfg.Listen != "0.0.0.0:9821" {
		t.Errorf("Listen = %q, want env override", cfg.Listen)
	}
}

func TestSavePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
