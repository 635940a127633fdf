package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the daemon configuration, read from config.toml in the data
// directory with WALINK_* environment overrides applied on top.
type Config struct {
	DataDir string `toml:"data_dir"`
	Listen  string `toml:"listen"`

	Gateway GatewayConfig `toml:"gateway"`
	Poll    PollConfig    `toml:"poll"`
	Wait    WaitConfig    `toml:"wait"`
	Checker CheckerConfig `toml:"checker"`
	Sync    SyncConfig    `toml:"sync"`
}

// GatewayConfig addresses the external automation service.
type GatewayConfig struct {
	BaseURL   string `toml:"base_url"`
	Token     string `toml:"token"`
	TimeoutMs int    `toml:"timeout_ms"`
}

// PollConfig holds the QR polling budgets.
type PollConfig struct {
	MaxAttempts int `toml:"max_attempts"`
	IntervalMs  int `toml:"interval_ms"`
	TimeoutMs   int `toml:"timeout_ms"`
}

// WaitConfig holds the "already connected" wait budgets.
type WaitConfig struct {
	IntervalMs int `toml:"interval_ms"`
	TimeoutMs  int `toml:"timeout_ms"`
}

// CheckerConfig holds the background auto-check cadence.
type CheckerConfig struct {
	IntervalMs int `toml:"interval_ms"`
}

// SyncConfig holds the reconciliation settings.
type SyncConfig struct {
	Workers      int    `toml:"workers"`
	AllSpec      string `toml:"all_spec"`
	SweepSpec    string `toml:"sweep_spec"`
	StaleAfterMs int    `toml:"stale_after_ms"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		DataDir: filepath.Join(home, ".walink"),
		Listen:  "127.0.0.1:8821",
		Gateway: GatewayConfig{TimeoutMs: 10000},
		Poll:    PollConfig{MaxAttempts: 15, IntervalMs: 3000, TimeoutMs: 45000},
		Wait:    WaitConfig{IntervalMs: 5000, TimeoutMs: 60000},
		Checker: CheckerConfig{IntervalMs: 10000},
		Sync: SyncConfig{
			Workers:      4,
			AllSpec:      "@every 5m",
			SweepSpec:    "@every 10m",
			StaleAfterMs: int((30 * time.Minute).Milliseconds()),
		},
	}
}

// Load reads config.toml from path if it exists, layers environment
// overrides (a .env file is honored when present) and returns the result.
// A missing file is not an error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	}
	_ = godotenv.Load()
	cfg.applyEnv()
	return cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

func (c *Config) applyEnv() {
	if v := os.Getenv("WALINK_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("WALINK_LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("WALINK_GATEWAY_URL"); v != "" {
		c.Gateway.BaseURL = v
	}
	if v := os.Getenv("WALINK_GATEWAY_TOKEN"); v != "" {
		c.Gateway.Token = v
	}
}

func (g GatewayConfig) Timeout() time.Duration {
	return time.Duration(g.TimeoutMs) * time.Millisecond
}

func (p PollConfig) Interval() time.Duration {
	return time.Duration(p.IntervalMs) * time.Millisecond
}

func (p PollConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutMs) * time.Millisecond
}

func (w WaitConfig) Interval() time.Duration {
	return time.Duration(w.IntervalMs) * time.Millisecond
}

func (w WaitConfig) Timeout() time.Duration {
	return time.Duration(w.TimeoutMs) * time.Millisecond
}

func (c CheckerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (s SyncConfig) StaleAfter() time.Duration {
	return time.Duration(s.StaleAfterMs) * time.Millisecond
}

// DBPath returns the sqlite database path under the data dir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "walink.db")
}

// LogPath returns the daemon log file path under the data dir.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "walinkd.log")
}

// ConfigPath returns the config.toml path under a data dir.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// EnsureDirs creates the data directory tree with restrictive permissions.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.DataDir,
		filepath.Join(c.DataDir, "logs"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
