// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the CLI configuration, layered lowest to highest:
// built-in defaults, an optional config file, then GENIAL_* environment
// variables.
type Config struct {
	// APIURL is the backend (or relay) root URL.
	APIURL string `yaml:"api_url"`
	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`
	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`
	// TurnTimeout bounds one conversational turn, stream included.
	TurnTimeout time.Duration `yaml:"turn_timeout"`
}

const defaultAPIURL = "http://localhost:8000"

// configPath returns ~/.config/genial/config.yaml, honoring
// XDG_CONFIG_HOME.
func configPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "genial", "config.yaml")
}

// LoadConfig resolves the effective configuration. A missing config
// file is fine; a malformed one is not.
func LoadConfig() (Config, error) {
	cfg := Config{
		APIURL:      defaultAPIURL,
		LogLevel:    "info",
		TurnTimeout: 5 * time.Minute,
	}

	path := configPath()
	raw, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("reading %s: %w", path, err)
	}

	if v := os.Getenv("GENIAL_API_URL"); v != "" {
		cfg.APIURL = v
	}
	if v := os.Getenv("GENIAL_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("GENIAL_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if v := os.Getenv("GENIAL_TURN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("GENIAL_TURN_TIMEOUT: %w", err)
		}
		cfg.TurnTimeout = d
	}
	return cfg, nil
}
