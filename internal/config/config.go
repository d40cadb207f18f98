// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the management HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"POB_HTTP_ADDR"`
	// Env is the application environment ("dev" or "prod").
	Env string `mapstructure:"POB_ENV"`
	// DBPath is the SQLite database file path.
	DBPath string `mapstructure:"POB_DB_PATH"`
	// DefaultMode is the mode the engine starts in: CIO (check-in/out) or CEV (check-event).
	DefaultMode string `mapstructure:"POB_DEFAULT_MODE"`
	// SentinelPayload is the reserved scan payload that toggles check-event mode.
	SentinelPayload string `mapstructure:"POB_SENTINEL_PAYLOAD"`
	// DefaultGroup is the group assigned to people first seen via a camera check-in.
	DefaultGroup int `mapstructure:"POB_DEFAULT_GROUP"`
	// ScanCooldownSeconds is how long an identical payload is suppressed after a delivery.
	ScanCooldownSeconds int `mapstructure:"POB_SCAN_COOLDOWN_SECONDS"`
	// FrameIntervalMS is the pacing between frame acquisitions, in milliseconds.
	FrameIntervalMS int `mapstructure:"POB_FRAME_INTERVAL_MS"`
	// MaxAcquireFailures is how many consecutive frame acquisition errors stop the detector.
	MaxAcquireFailures int `mapstructure:"POB_MAX_ACQUIRE_FAILURES"`
	// RetentionDays is how many days of ledger history to keep. 0 keeps everything.
	RetentionDays int `mapstructure:"POB_RETENTION_DAYS"`
	// FrameDir is the drop folder the detector reads frames from. Empty disables the detector.
	FrameDir string `mapstructure:"POB_FRAME_DIR"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("POB_HTTP_ADDR", ":8080")
	v.SetDefault("POB_ENV", "dev")
	v.SetDefault("POB_DB_PATH", "./data/pob.db")
	v.SetDefault("POB_DEFAULT_MODE", "CIO")
	v.SetDefault("POB_SENTINEL_PAYLOAD", "QR_EVENT_CONTROL_2024")
	v.SetDefault("POB_DEFAULT_GROUP", 1)
	v.SetDefault("POB_SCAN_COOLDOWN_SECONDS", 3)
	v.SetDefault("POB_FRAME_INTERVAL_MS", 33)
	v.SetDefault("POB_MAX_ACQUIRE_FAILURES", 10)
	v.SetDefault("POB_RETENTION_DAYS", 180)
	v.SetDefault("POB_FRAME_DIR", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: POB_HTTP_ADDR must be set")
	}
	if cfg.DBPath == "" {
		return nil, errors.New("config: POB_DB_PATH must be set")
	}
	if cfg.DefaultMode != "CIO" && cfg.DefaultMode != "CEV" {
		return nil, fmt.Errorf("config: POB_DEFAULT_MODE must be CIO or CEV, got %q", cfg.DefaultMode)
	}
	if cfg.SentinelPayload == "" {
		return nil, errors.New("config: POB_SENTINEL_PAYLOAD must be set")
	}
	if cfg.DefaultGroup <= 0 {
		return nil, errors.New("config: POB_DEFAULT_GROUP must be positive")
	}
	if cfg.ScanCooldownSeconds <= 0 {
		return nil, errors.New("config: POB_SCAN_COOLDOWN_SECONDS must be positive")
	}
	if cfg.MaxAcquireFailures <= 0 {
		return nil, errors.New("config: POB_MAX_ACQUIRE_FAILURES must be positive")
	}
	if cfg.RetentionDays < 0 {
		return nil, errors.New("config: POB_RETENTION_DAYS must not be negative")
	}

	return &cfg, nil
}

// ScanCooldown returns the debounce cooldown as a duration.
func (c *Config) ScanCooldown() time.Duration {
	return time.Duration(c.ScanCooldownSeconds) * time.Second
}

// FrameInterval returns the detector pacing as a duration. Returns 33ms if unset or invalid.
func (c *Config) FrameInterval() time.Duration {
	if c.FrameIntervalMS <= 0 {
		return 33 * time.Millisecond
	}
	return time.Duration(c.FrameIntervalMS) * time.Millisecond
}
