// Package config loads the JSON file that describes which gateways an
// application bootstrap should attach and how its ambient services
// (logging, metrics, persistence) are configured.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	maxConfigSize = 10 << 20 // 10MB
	maxPathLen    = 4096
)

// Config is the top-level shape of a miniac application's bootstrap file.
type Config struct {
	Platform PlatformConfig             `json:"platform"`
	Log      LogConfig                  `json:"log"`
	Storage  StorageConfig              `json:"storage"`
	Gateways map[string]json.RawMessage `json:"gateways"`
}

// PlatformConfig identifies the running instance.
type PlatformConfig struct {
	ID string `json:"id"`
}

// LogConfig configures the ambient logger.
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // text or json
}

// StorageConfig selects and configures the PersistentStorage backend.
type StorageConfig struct {
	Driver string `json:"driver"` // "memory" or "bolt"
	Path   string `json:"path"`   // bbolt file path, when Driver is "bolt"
}

// Validate checks that required top-level fields are present.
func (c *Config) Validate() error {
	if c.Platform.ID == "" {
		return errors.New("platform.id is required")
	}
	return nil
}

// Load reads and parses the config file at path, rejecting an empty or
// overlong path, a file without a ".json" extension, and a file larger
// than the configured size cap. The path may point anywhere; it is not
// checked against the current working directory.
func Load(path string) (*Config, error) {
	data, err := safeReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func safeReadFile(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return nil, fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("only .json config files are accepted: %s", path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxConfigSize {
		return nil, fmt.Errorf("config file too large: %d > %d bytes", info.Size(), maxConfigSize)
	}

	return os.ReadFile(path)
}

// GatewayConfig unmarshals the raw JSON registered under id in cfg.Gateways
// into out, returning an error if no gateway is configured under that ID.
func GatewayConfig(cfg *Config, id string, out any) error {
	raw, ok := cfg.Gateways[id]
	if !ok {
		return fmt.Errorf("no configuration for gateway %q", id)
	}
	return json.Unmarshal(raw, out)
}
