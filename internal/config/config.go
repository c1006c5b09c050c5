// Package config loads axond's JSONC configuration file, following the
// teacher's config-loading idiom (hujson standardization, explicit-empty
// field detection, defaults-then-file precedence).
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/axonhq/axon/pkg/fs"
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")
	errDataDirEmpty       = errors.New("data_dir cannot be empty")
	errListenAddrEmpty    = errors.New("listen_addr cannot be empty")
)

// Config holds axond's process configuration.
type Config struct {
	DataDir    string `json:"data_dir"`    //nolint:tagliatelle // snake_case for config file
	ListenAddr string `json:"listen_addr"` //nolint:tagliatelle // snake_case for config file
	GrantsFile string `json:"grants_file,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		DataDir:    "./axon-data",
		ListenAddr: "127.0.0.1:4470",
	}
}

// Load reads a JSONC config file at path, merges it over defaults, and
// validates the result. If path does not exist and was not explicitly
// requested (mustExist=false), the defaults are returned unchanged.
func Load(path string, mustExist bool) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is operator-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return cfg, validate(cfg)
		}

		if mustExist {
			return Config{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Config{}, fmt.Errorf("%w: %s: %w", errConfigFileRead, path, err)
	}

	fileCfg, explicitEmpty, err := parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	if explicitEmpty["data_dir"] {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, errDataDirEmpty)
	}

	if explicitEmpty["listen_addr"] {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, errListenAddrEmpty)
	}

	cfg = merge(cfg, fileCfg)

	if err := validate(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parse(data []byte) (Config, map[string]bool, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, nil, fmt.Errorf("invalid JSON: %w", err)
	}

	var raw map[string]any

	_ = json.Unmarshal(standardized, &raw)

	explicitEmpty := make(map[string]bool)

	for _, field := range []string{"data_dir", "listen_addr"} {
		if val, exists := raw[field]; exists {
			if str, ok := val.(string); ok && str == "" {
				explicitEmpty[field] = true
			}
		}
	}

	return cfg, explicitEmpty, nil
}

func merge(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.ListenAddr != "" {
		base.ListenAddr = overlay.ListenAddr
	}

	if overlay.GrantsFile != "" {
		base.GrantsFile = overlay.GrantsFile
	}

	return base
}

func validate(cfg Config) error {
	if cfg.DataDir == "" {
		return errDataDirEmpty
	}

	if cfg.ListenAddr == "" {
		return errListenAddrEmpty
	}

	return nil
}

// Format returns cfg as indented JSON, for `axonctl config` style
// diagnostics.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}

// Save writes cfg to path as indented JSON, atomically (rename-based,
// never a partially-written config file), for `axonctl init-config`.
func Save(path string, cfg Config) error {
	formatted, err := Format(cfg)
	if err != nil {
		return err
	}

	writer := fs.NewAtomicWriter(fs.NewReal())

	if err := writer.WriteWithDefaults(path, strings.NewReader(formatted)); err != nil {
		return fmt.Errorf("save config %s: %w", path, err)
	}

	return nil
}
