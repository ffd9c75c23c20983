// Package config provides configuration management for the cardlink router.
// Configuration is loaded from a TOML file and validated before the server
// starts; defaults cover everything except the listen port.
package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ConfigFormatVersion is the current version of the configuration file format.
const ConfigFormatVersion = "0.1.0"

// HeartbeatConfig holds liveness-tracking configuration for peer sockets.
type HeartbeatConfig struct {
	Interval  string `toml:"interval"`   // expected heartbeat period, e.g. "15s"
	MaxMissed int    `toml:"max_missed"` // evict a peer after this many silent intervals
}

// GetInterval returns the heartbeat interval as a time.Duration.
func (h *HeartbeatConfig) GetInterval() (time.Duration, error) {
	return time.ParseDuration(h.Interval)
}

// GetIntervalOrDefault returns the heartbeat interval or panics if invalid.
func (h *HeartbeatConfig) GetIntervalOrDefault() time.Duration {
	d, err := h.GetInterval()
	if err != nil {
		panic(fmt.Sprintf("invalid heartbeat interval: %v", err))
	}
	return d
}

// AuthConfig holds authentication-related configuration.
type AuthConfig struct {
	TokenExpiry     string `toml:"token_expiry"`     // session token lifetime
	HandshakeWindow string `toml:"handshake_window"` // card-host challenge-response window
	SigningKeySeed  string `toml:"signing_key_seed"` // base64 Ed25519 seed; generated if empty
}

// GetTokenExpiry returns the token expiry as a time.Duration.
func (a *AuthConfig) GetTokenExpiry() (time.Duration, error) {
	return time.ParseDuration(a.TokenExpiry)
}

// GetTokenExpiryOrDefault returns the token expiry or panics if invalid.
func (a *AuthConfig) GetTokenExpiryOrDefault() time.Duration {
	d, err := a.GetTokenExpiry()
	if err != nil {
		panic(fmt.Sprintf("invalid token expiry: %v", err))
	}
	return d
}

// GetHandshakeWindow returns the handshake window as a time.Duration.
func (a *AuthConfig) GetHandshakeWindow() (time.Duration, error) {
	return time.ParseDuration(a.HandshakeWindow)
}

// GetHandshakeWindowOrDefault returns the handshake window or panics if invalid.
func (a *AuthConfig) GetHandshakeWindowOrDefault() time.Duration {
	d, err := a.GetHandshakeWindow()
	if err != nil {
		panic(fmt.Sprintf("invalid handshake window: %v", err))
	}
	return d
}

// EventsConfig controls event fan-out from card hosts to controllers.
type EventsConfig struct {
	BufferSize  int    `toml:"buffer_size"`  // per-subscriber channel buffer
	SendTimeout string `toml:"send_timeout"` // per-subscriber delivery budget
}

// GetSendTimeoutOrDefault returns the send timeout or panics if invalid.
func (e *EventsConfig) GetSendTimeoutOrDefault() time.Duration {
	d, err := time.ParseDuration(e.SendTimeout)
	if err != nil {
		panic(fmt.Sprintf("invalid event send timeout: %v", err))
	}
	return d
}

// ConfigParam holds all configuration parameters for the router service.
type ConfigParam struct {
	// Configuration version
	FormatVersion string `toml:"format_version"` // version of this configuration file format

	// Server configuration
	ServerHostName string `toml:"server_hostname"` // hostname for the server
	ServerPort     string `toml:"server_port"`     // port for the server
	HandleCORS     bool   `toml:"handle_cors"`     // whether to handle CORS
	ExternalURL    string `toml:"external_url"`    // base URL advertised to controllers

	// Heartbeat configuration
	Heartbeat HeartbeatConfig `toml:"heartbeat"`

	// Auth configuration
	Auth AuthConfig `toml:"auth"`

	// Event fan-out configuration
	Events EventsConfig `toml:"events"`

	// SigningKey is the Ed25519 key used to sign session tokens. Derived
	// from Auth.SigningKeySeed, or generated at startup when no seed is
	// configured.
	SigningKey ed25519.PrivateKey `toml:"-"`
}

var cfg *ConfigParam

// Config returns the current configuration.
func Config() *ConfigParam {
	return cfg
}

// GetURL returns the server's base HTTP URL.
func GetURL() string {
	return "http://" + Config().ServerHostName + ":" + Config().ServerPort
}

// ValidateConfig checks that all required configuration values are present and
// valid, and fills in defaults for optional values.
func ValidateConfig(cfg *ConfigParam) error {
	if cfg.FormatVersion != ConfigFormatVersion {
		return fmt.Errorf("unsupported config file format version: %s", cfg.FormatVersion)
	}

	if cfg.ServerPort == "" {
		return fmt.Errorf("server_port is required")
	}
	if cfg.ServerHostName == "" {
		cfg.ServerHostName = "0.0.0.0"
	}
	if cfg.ExternalURL == "" {
		cfg.ExternalURL = "http://127.0.0.1:" + cfg.ServerPort
	}
	cfg.ExternalURL = strings.TrimSuffix(cfg.ExternalURL, "/")

	if cfg.Heartbeat.Interval == "" {
		cfg.Heartbeat.Interval = "15s"
	}
	if _, err := cfg.Heartbeat.GetInterval(); err != nil {
		return fmt.Errorf("invalid heartbeat.interval: %v", err)
	}
	if cfg.Heartbeat.MaxMissed <= 0 {
		cfg.Heartbeat.MaxMissed = 3
	}

	if cfg.Auth.TokenExpiry == "" {
		cfg.Auth.TokenExpiry = "2m"
	}
	if _, err := cfg.Auth.GetTokenExpiry(); err != nil {
		return fmt.Errorf("invalid auth.token_expiry: %v", err)
	}
	if cfg.Auth.HandshakeWindow == "" {
		cfg.Auth.HandshakeWindow = "10s"
	}
	if _, err := cfg.Auth.GetHandshakeWindow(); err != nil {
		return fmt.Errorf("invalid auth.handshake_window: %v", err)
	}

	if cfg.Events.BufferSize <= 0 {
		cfg.Events.BufferSize = 64
	}
	if cfg.Events.SendTimeout == "" {
		cfg.Events.SendTimeout = "100ms"
	}
	if _, err := time.ParseDuration(cfg.Events.SendTimeout); err != nil {
		return fmt.Errorf("invalid events.send_timeout: %v", err)
	}

	if cfg.Auth.SigningKeySeed != "" {
		seed, err := base64.StdEncoding.DecodeString(cfg.Auth.SigningKeySeed)
		if err != nil {
			return fmt.Errorf("invalid auth.signing_key_seed: %v", err)
		}
		if len(seed) != ed25519.SeedSize {
			return fmt.Errorf("auth.signing_key_seed must be %d bytes, got %d", ed25519.SeedSize, len(seed))
		}
		cfg.SigningKey = ed25519.NewKeyFromSeed(seed)
	} else {
		// Ephemeral key: tokens stop verifying across restarts, which is
		// acceptable since sessions do not survive a restart either.
		_, key, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return fmt.Errorf("error generating signing key: %v", err)
		}
		cfg.SigningKey = key
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

// SetTestDefaults installs an all-defaults in-memory configuration. Intended
// for tests that exercise the router without a config file.
func SetTestDefaults() {
	c := &ConfigParam{
		FormatVersion: ConfigFormatVersion,
		ServerPort:    "0",
	}
	if err := ValidateConfig(c); err != nil {
		panic(err)
	}
	cfg = c
}
