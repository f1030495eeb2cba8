// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/genial-ai/genial-go/pkg/logging"
)

// ErrNoCredential is returned when no bearer token is stored.
var ErrNoCredential = errors.New("no stored credential")

const credentialFileName = "credentials"

// memguardInitOnce ensures memguard interrupt handling is installed
// only once per process.
var memguardInitOnce sync.Once

// Credentials holds the bearer token in a memguard enclave while the
// process runs and mirrors it to a 0600 file so later invocations stay
// signed in. Token values are never logged.
//
// Safe for concurrent use.
type Credentials struct {
	mu      sync.Mutex
	enclave *memguard.Enclave
	path    string
	logger  *logging.Logger
}

// NewCredentials creates a store backed by the default path
// ~/.config/genial/credentials (honoring XDG_CONFIG_HOME).
func NewCredentials(logger *logging.Logger) *Credentials {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, ".config")
	}
	return NewCredentialsAt(filepath.Join(base, "genial", credentialFileName), logger)
}

// NewCredentialsAt creates a store backed by an explicit file path.
func NewCredentialsAt(path string, logger *logging.Logger) *Credentials {
	if logger == nil {
		logger = logging.Nop()
	}
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
	})
	return &Credentials{path: path, logger: logger}
}

// Save seals the token in memory and persists it with 0600 permissions.
func (c *Credentials) Save(token string) error {
	if token == "" {
		return errors.New("refusing to store empty token")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// NewEnclave wipes the byte slice it is given.
	c.enclave = memguard.NewEnclave([]byte(token))

	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("creating credential dir: %w", err)
	}
	if err := os.WriteFile(c.path, []byte(token+"\n"), 0o600); err != nil {
		return fmt.Errorf("persisting credential: %w", err)
	}
	c.logger.Debug("credential stored", "path", c.path)
	return nil
}

// Token returns the bearer token, loading it from disk on first use.
// Returns ErrNoCredential when none is stored.
func (c *Credentials) Token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.enclave == nil {
		raw, err := os.ReadFile(c.path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return "", ErrNoCredential
			}
			return "", fmt.Errorf("reading credential: %w", err)
		}
		token := strings.TrimSpace(string(raw))
		if token == "" {
			return "", ErrNoCredential
		}
		c.enclave = memguard.NewEnclave([]byte(token))
	}

	buf, err := c.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("opening credential enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// Purge drops the in-memory token and deletes the credential file.
// Called on logout and whenever the backend rejects the token.
func (c *Credentials) Purge() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enclave = nil
	err := os.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	c.logger.Debug("credential purged")
	return nil
}
