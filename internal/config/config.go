// Package config loads the optional camtool configuration file. Protocol
// constants (request codes, VID/PID, flash geometry) are fixed by the
// hardware and deliberately not configurable; the file only covers host-side
// policy.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is consulted when no --config flag is given.
const DefaultPath = "camtool.yaml"

type Config struct {
	// RecoveryImage is the path of the known-good secondary firmware image
	// pushed through the bootloader when the device is absent.
	RecoveryImage string `yaml:"recovery_image"`

	// BusyTimeoutMs bounds the flash busy poll. Zero keeps the default.
	BusyTimeoutMs int `yaml:"busy_timeout_ms"`

	// TransferTimeoutMs bounds a single control transfer. Zero keeps the
	// default.
	TransferTimeoutMs int `yaml:"transfer_timeout_ms"`

	// SettleDelayMs is the wait for re-enumeration after recovery. Zero
	// keeps the default.
	SettleDelayMs int `yaml:"settle_delay_ms"`
}

func defaults() *Config {
	return &Config{
		RecoveryImage: "camlink-bridge.img",
	}
}

// Load reads path and merges it over the defaults. A missing file at the
// default path is not an error; an explicitly named file must exist.
func Load(path string, explicit bool) (*Config, error) {
	cfg := defaults()

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects values the engine cannot honor.
func (c *Config) Validate() error {
	if c.BusyTimeoutMs < 0 {
		return fmt.Errorf("busy_timeout_ms must not be negative")
	}
	if c.TransferTimeoutMs < 0 {
		return fmt.Errorf("transfer_timeout_ms must not be negative")
	}
	if c.SettleDelayMs < 0 {
		return fmt.Errorf("settle_delay_ms must not be negative")
	}
	if c.RecoveryImage == "" {
		return fmt.Errorf("recovery_image must not be empty")
	}
	return nil
}

// BusyTimeout returns the configured busy deadline, or zero for the default.
func (c *Config) BusyTimeout() time.Duration {
	return time.Duration(c.BusyTimeoutMs) * time.Millisecond
}

// TransferTimeout returns the configured transfer deadline, or zero for the
// default.
func (c *Config) TransferTimeout() time.Duration {
	return time.Duration(c.TransferTimeoutMs) * time.Millisecond
}

// SettleDelay returns the configured settle delay, or zero for the default.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}
