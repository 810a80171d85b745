// Package config loads optional settings for tarball-extract from a YAML
// or JSONC file.
//
// JSONC (JSON with comments) files are cleaned with github.com/tidwall/jsonc
// before being parsed by encoding/json; YAML files are parsed with
// gopkg.in/yaml.v3. Command-line flags override anything set here.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/tarball-extract/internal/extract"
	"github.com/shinji-kodama/tarball-extract/internal/pipeline"
)

// EnvConfigPath names the environment variable consulted when no --config
// flag is given.
const EnvConfigPath = "TARBALL_EXTRACT_CONFIG"

// Config holds the tunables of an extraction run.
type Config struct {
	// MaxAttempts is the attempt budget, including the first attempt.
	MaxAttempts int `json:"maxAttempts" yaml:"maxAttempts"`

	// Tar is the tar binary name or path.
	Tar string `json:"tar" yaml:"tar"`

	// Xz is the xz binary name or path.
	Xz string `json:"xz" yaml:"xz"`

	// Decompressor selects how xz archives are decoded: "external" or
	// "builtin".
	Decompressor pipeline.Decompressor `json:"decompressor" yaml:"decompressor"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxAttempts:  extract.DefaultMaxAttempts,
		Tar:          "tar",
		Xz:           "xz",
		Decompressor: pipeline.DecompressorExternal,
	}
}

// Validate checks that every field holds a usable value.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("maxAttempts must be at least 1, got %d", c.MaxAttempts)
	}
	if c.Tar == "" {
		return fmt.Errorf("tar binary must not be empty")
	}
	if c.Xz == "" {
		return fmt.Errorf("xz binary must not be empty")
	}
	if !c.Decompressor.IsValid() {
		return fmt.Errorf("invalid decompressor %q (valid: external, builtin)", c.Decompressor)
	}
	return nil
}

// Load reads the file at path and overlays it on Default. Fields absent
// from the file keep their default values. The format is chosen by
// extension: .yaml/.yml for YAML, .json/.jsonc for JSONC.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case ".json", ".jsonc":
		// Strip comments and trailing commas before parsing.
		if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config file extension %q (use .yaml, .yml, .json or .jsonc)", filepath.Ext(path))
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve returns the configuration for a run: the file named by path,
// else the file named by EnvConfigPath, else Default.
func Resolve(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}
