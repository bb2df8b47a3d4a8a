package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalConfig is the per-user configuration (~/.contradeploy/config.yaml)
type GlobalConfig struct {
	DefaultNetwork string         `yaml:"default_network,omitempty"`
	Storage        StorageFile    `yaml:"storage,omitempty"`
	Registry       RegistryConfig `yaml:"registry,omitempty"`
}

// GlobalConfigPath returns the location of the global config file
func GlobalConfigPath() string {
	return filepath.Join(HomeDir(), "config.yaml")
}

// LoadGlobal reads the global config. A missing file yields an empty config.
func LoadGlobal(path string) (*GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GlobalConfig{}, nil
		}
		return nil, err
	}

	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

// SaveGlobal writes the global config, creating its directory
func SaveGlobal(path string, cfg *GlobalConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
