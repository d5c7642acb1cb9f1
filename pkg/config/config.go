package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultDataPath is used when no source names one.
const DefaultDataPath = "./.zerozero"

// Load reads and parses the YAML config at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

// ResolveConfigPath returns the config file to try. An explicitly passed
// flag wins; otherwise the conventional name next to the working dir.
func ResolveConfigPath(flagValue string, flagSet bool) string {
	if flagSet {
		return flagValue
	}
	if env := os.Getenv("ZEROZERO_CONFIG"); env != "" {
		return env
	}
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(".", "zerozero.yaml")
}
