// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

var (
	// Global is a singleton instance
	Global ChainstatConfig
	once   sync.Once
)

// DefaultPath returns ~/.chainstat/chainstat.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".chainstat", "chainstat.yaml"), nil
}

// Load ensures the config is loaded into the Global variable. An empty
// path means DefaultPath, which is created with defaults if missing.
func Load(path string) error {
	var err error
	once.Do(func() {
		var cfg ChainstatConfig
		cfg, err = loadInternal(path)
		if err == nil {
			Global = cfg
		}
	})
	return err
}

func loadInternal(path string) (ChainstatConfig, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return ChainstatConfig{}, err
		}
		// create it if it doesn't exist
		if _, err := os.Stat(path); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, " First run detected, creating the config at %s\n", path)
			if err := createDefault(path); err != nil {
				return ChainstatConfig{}, err
			}
		}
	}
	return ReadFile(path)
}

// ReadFile parses and validates the config at path. Missing sections keep
// their DefaultConfig values.
func ReadFile(path string) (ChainstatConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ChainstatConfig{}, fmt.Errorf("failed to read the config file %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return ChainstatConfig{}, fmt.Errorf("failed to parse the config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return ChainstatConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func createDefault(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create the config directory %w", err)
	}
	defaultCfg := DefaultConfig()
	data, err := yaml.Marshal(defaultCfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
