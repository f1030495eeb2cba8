// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package session manages the client side of a Genial session: the
session identifier, the stored credential, in-flight request
deduplication, and recovery of a prior conversation at startup.

# Session Identity

The backend keys all conversation state on an opaque session id sent in
the X-Session-Id header. The id is a UUID v4 generated client-side and
persisted under the user's runtime directory, so restarting the CLI
within the same login session resumes the same backend conversation.
Ending the session (logout or explicit reset) deletes the file.

# Credentials

The bearer token obtained at login is held in a memguard enclave while
the process runs and mirrored to a 0600 file under the user's config
directory so later invocations stay signed in.
*/
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/genial-ai/genial-go/pkg/logging"
)

const identityFileName = "session-id"

// Identity persists the session identifier across process restarts
// within one login session.
type Identity struct {
	path   string
	logger *logging.Logger
}

// NewIdentity creates an Identity backed by the default runtime path:
// $XDG_RUNTIME_DIR/genial/session-id, falling back to the OS temp
// directory when no runtime dir is set.
func NewIdentity(logger *logging.Logger) *Identity {
	base := os.Getenv("XDG_RUNTIME_DIR")
	if base == "" {
		base = os.TempDir()
	}
	return NewIdentityAt(filepath.Join(base, "genial", identityFileName), logger)
}

// NewIdentityAt creates an Identity backed by an explicit file path.
// Used by tests and by callers that manage their own state directory.
func NewIdentityAt(path string, logger *logging.Logger) *Identity {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Identity{path: path, logger: logger}
}

// Ensure returns the current session id, generating and persisting a
// fresh UUID v4 when none exists. The second return reports whether a
// new id was created.
func (id *Identity) Ensure() (string, bool, error) {
	current, err := id.Current()
	if err == nil && current != "" {
		return current, false, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", false, err
	}

	fresh := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(id.path), 0o700); err != nil {
		return "", false, fmt.Errorf("creating session dir: %w", err)
	}
	if err := os.WriteFile(id.path, []byte(fresh+"\n"), 0o600); err != nil {
		return "", false, fmt.Errorf("persisting session id: %w", err)
	}
	id.logger.Debug("generated new session id", "path", id.path)
	return fresh, true, nil
}

// Current returns the persisted session id without creating one.
// Returns fs.ErrNotExist when no id has been stored.
func (id *Identity) Current() (string, error) {
	raw, err := os.ReadFile(id.path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

// Clear removes the persisted id. The next Ensure starts a new backend
// conversation. Clearing an absent id is not an error.
func (id *Identity) Clear() error {
	err := os.Remove(id.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clearing session id: %w", err)
	}
	return nil
}
