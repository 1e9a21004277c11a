package main

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the optional .strata.yml at the target directory root.
// Flags take precedence over config values.
type Config struct {
	Languages []string `yaml:"languages"`
	Exclude   []string `yaml:"exclude"`
}

// loadConfig reads .strata.yml from dir. A missing file yields a zero
// Config; a malformed file is an error.
func loadConfig(dir string) (*Config, error) {
	cfg := &Config{}
	path := filepath.Join(dir, ".strata.yml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
