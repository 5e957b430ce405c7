package config

import (
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Initialize loads, merges, validates, and returns ready-to-use
// configuration. An empty path yields the built-in defaults.
//
// Steps performed:
//  1. Read the YAML file
//  2. Expand environment variables
//  3. Parse into the Config struct
//  4. Merge user values over the built-in defaults
//  5. Validate
func Initialize(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}

		var user Config
		if err := yaml.Unmarshal(ExpandEnv(data), &user); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}

		if err := mergo.Merge(cfg, &user, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging config: %w", err)
		}
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	slog.Info("Configuration initialized",
		"routes_dir", cfg.RoutesDir,
		"admin_address", cfg.Admin.Address,
		"admin_pool_size", cfg.Admin.PoolSize)
	return cfg, nil
}

// ExpandEnv expands ${VAR} and $VAR references in YAML content. Missing
// variables expand to empty strings; validation catches required fields
// left empty.
func ExpandEnv(data []byte) []byte {
	return []byte(os.ExpandEnv(string(data)))
}
