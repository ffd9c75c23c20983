// Package config provides configuration management for the cardlink host
// agent.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFormatVersion is the current version of the configuration file format.
const ConfigFormatVersion = "0.1.0"

// ConfigParam holds all configuration parameters for the host agent.
type ConfigParam struct {
	// Configuration version
	FormatVersion string `toml:"format_version"` // version of this configuration file format

	// Router connection
	RouterURL string `toml:"router_url"` // router base URL, ws:// or wss://

	// IdentityFile stores the host's stable identifier and signing key.
	// Created on first run if absent.
	IdentityFile string `toml:"identity_file"`

	// Connection tuning
	HeartbeatInterval string `toml:"heartbeat_interval"` // outbound heartbeat period
}

// GetHeartbeatIntervalOrDefault returns the heartbeat interval or panics if
// invalid.
func (c *ConfigParam) GetHeartbeatIntervalOrDefault() time.Duration {
	d, err := time.ParseDuration(c.HeartbeatInterval)
	if err != nil {
		panic(fmt.Sprintf("invalid heartbeat interval: %v", err))
	}
	return d
}

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// ValidateConfig checks that all required configuration values are present
// and valid, and fills in defaults for optional values.
func ValidateConfig(cfg *ConfigParam) error {
	if cfg.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}

	if cfg.RouterURL == "" {
		return fmt.Errorf("router_url is required")
	}
	if !strings.HasPrefix(cfg.RouterURL, "ws://") && !strings.HasPrefix(cfg.RouterURL, "wss://") {
		return fmt.Errorf("router_url must start with ws:// or wss://")
	}
	cfg.RouterURL = strings.TrimSuffix(cfg.RouterURL, "/")

	if cfg.IdentityFile == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error getting user home directory: %v", err)
		}
		dir := filepath.Join(homeDir, ".cardlink")
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("error creating identity directory: %v", err)
		}
		cfg.IdentityFile = filepath.Join(dir, "identity.toml")
	}

	if cfg.HeartbeatInterval == "" {
		cfg.HeartbeatInterval = "15s"
	}
	if _, err := time.ParseDuration(cfg.HeartbeatInterval); err != nil {
		return fmt.Errorf("invalid heartbeat_interval: %v", err)
	}

	return nil
}

// LoadConfig loads configuration from a file.
func LoadConfig(filename string) error {
	if filename == "" {
		return fmt.Errorf("config filename is required")
	}

	content, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	c := &ConfigParam{}
	if _, err := toml.Decode(string(content), c); err != nil {
		return fmt.Errorf("error parsing config file: %v", err)
	}

	if err := ValidateConfig(c); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	cfg = c
	return nil
}
