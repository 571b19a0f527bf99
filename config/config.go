// Package config loads the YAML configuration file and applies environment
// overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nedpals/davi-transit/buildinfo"
	"github.com/nedpals/davi-transit/keys"
	"github.com/nedpals/davi-transit/nfc"
)

// FileName is the name of the config file inside the config directory.
const FileName = "config.yaml"

// Config is the application configuration.
type Config struct {
	// Device is the reader connection string. Empty means the first reader found.
	Device string `yaml:"device"`

	// Backend is one of auto, pcsc or libnfc.
	Backend string `yaml:"backend"`

	// KeysFile is a YAML key file for MIFARE Classic cards.
	KeysFile string `yaml:"keys_file"`

	// DictionaryKeys are hex keys tried on every Classic sector.
	DictionaryKeys []string `yaml:"dictionary_keys"`

	// Database is the SQLite scan archive. Empty disables archiving.
	Database string `yaml:"database"`

	ScanTimeout  time.Duration `yaml:"scan_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`

	Log LogConfig `yaml:"log"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		Backend:      nfc.BackendAuto,
		ScanTimeout:  30 * time.Second,
		PollInterval: 250 * time.Millisecond,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns the config file location under the user config
// directory ($XDG_CONFIG_HOME on Linux).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory: %w", err)
	}
	return filepath.Join(dir, buildinfo.DirName, FileName), nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file is not an error. An empty path means
// DefaultPath.
func Load(path string) (*Config, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyEnv overrides fields from environment variables named with the
// buildinfo.EnvPrefix prefix. Unset or empty variables leave fields alone.
func (c *Config) ApplyEnv(getenv func(string) string) {
	prefix := buildinfo.EnvPrefix()
	set := func(name string, dst *string) {
		if v := getenv(prefix + name); v != "" {
			*dst = v
		}
	}
	set("DEVICE", &c.Device)
	set("BACKEND", &c.Backend)
	set("KEYS", &c.KeysFile)
	set("DB", &c.Database)
	set("LOG_LEVEL", &c.Log.Level)
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch c.Backend {
	case nfc.BackendAuto, nfc.BackendPCSC, nfc.BackendLibNFC:
	default:
		return fmt.Errorf("invalid backend %q: want auto, pcsc or libnfc", c.Backend)
	}
	if c.ScanTimeout < 0 {
		return fmt.Errorf("invalid scan_timeout %s", c.ScanTimeout)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("invalid poll_interval %s", c.PollInterval)
	}
	if _, err := c.DictionaryKeyBytes(); err != nil {
		return err
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q: want json or console", c.Log.Format)
	}
	return nil
}

// DictionaryKeyBytes decodes DictionaryKeys.
func (c *Config) DictionaryKeyBytes() ([][]byte, error) {
	out := make([][]byte, 0, len(c.DictionaryKeys))
	for i, s := range c.DictionaryKeys {
		key, err := keys.ParseKey(s)
		if err != nil {
			return nil, fmt.Errorf("dictionary_keys[%d]: %w", i, err)
		}
		out = append(out, key)
	}
	return out, nil
}
