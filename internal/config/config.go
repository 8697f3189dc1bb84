// Package config handles configuration file loading and parsing.
package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultPairingCooldown = "30s"
	DefaultPairingTimeout  = "30s"
	DefaultCommandTimeout  = "10s"
	DefaultEventBuffer     = 128
	DefaultPreviewLength   = 60
)

// Config represents the applet configuration.
type Config struct {
	Pairing  PairingConfig  `toml:"pairing"`
	Commands CommandsConfig `toml:"commands"`
	Contacts ContactsConfig `toml:"contacts"`
	SMS      SMSConfig      `toml:"sms"`
	Log      LogConfig      `toml:"log"`
}

// PairingConfig holds pairing state machine policy.
type PairingConfig struct {
	// Cooldown is how long a rejected request blocks re-requests.
	Cooldown string `toml:"cooldown"`
	// Timeout bounds how long a pairing request may stay unanswered.
	Timeout string `toml:"timeout"`
}

// CommandsConfig holds plugin command round-trip settings.
type CommandsConfig struct {
	Timeout     string `toml:"timeout"`
	EventBuffer int    `toml:"event_buffer"`
}

// ContactsConfig holds contact resolution settings.
type ContactsConfig struct {
	// Dir overrides the vCard directory root. Empty = kpeoplevcard
	// under XDG data home, where the daemon syncs contacts.
	Dir string `toml:"dir"`
	// Watch enables hot reload when vCard files change.
	Watch bool `toml:"watch"`
}

// SMSConfig holds conversation view settings.
type SMSConfig struct {
	PreviewLength int `toml:"preview_length"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"` // debug, info, warn, error
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Pairing: PairingConfig{
			Cooldown: DefaultPairingCooldown,
			Timeout:  DefaultPairingTimeout,
		},
		Commands: CommandsConfig{
			Timeout:     DefaultCommandTimeout,
			EventBuffer: DefaultEventBuffer,
		},
		Contacts: ContactsConfig{
			Dir:   "",
			Watch: true,
		},
		SMS: SMSConfig{
			PreviewLength: DefaultPreviewLength,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// PairingCooldown parses the cooldown duration, falling back to the default.
func (c *Config) PairingCooldown() time.Duration {
	return parseDuration(c.Pairing.Cooldown, DefaultPairingCooldown)
}

// PairingTimeout parses the pairing timeout, falling back to the default.
func (c *Config) PairingTimeout() time.Duration {
	return parseDuration(c.Pairing.Timeout, DefaultPairingTimeout)
}

// CommandTimeout parses the command timeout, falling back to the default.
func (c *Config) CommandTimeout() time.Duration {
	return parseDuration(c.Commands.Timeout, DefaultCommandTimeout)
}

func parseDuration(s, fallback string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	d, _ := time.ParseDuration(fallback)
	return d
}

// ConfigPath returns the path to the config file.
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config.
func ConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, "cosmic-connect-applet", "config.toml")
}

// DataPath returns the path to the XDG data directory root.
func DataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return dataHome
}

// ContactsDir returns the vCard directory root: either the configured
// override or the daemon's kpeoplevcard sync location.
func (c *Config) ContactsDir() string {
	if c.Contacts.Dir != "" {
		return c.Contacts.Dir
	}
	return filepath.Join(DataPath(), "kpeoplevcard")
}

// LoadConfig loads configuration from the specified path.
// If path is empty, uses the default config path.
// Returns default config if file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified path.
// Creates parent directories if needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
