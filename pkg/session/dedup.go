// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import "sync"

// InflightRegistry suppresses duplicate concurrent requests by key.
//
// Unlike a singleflight group, a losing caller does not wait for and
// share the winner's result: it is told the request is already running
// and skips its own silently. This matches the UI contract where a
// double-triggered fetch must cause exactly one network request and no
// duplicate state mutation.
type InflightRegistry struct {
	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewInflightRegistry creates an empty registry.
func NewInflightRegistry() *InflightRegistry {
	return &InflightRegistry{inflight: make(map[string]struct{})}
}

// TryAcquire marks key as in flight. Returns false when another caller
// already holds it, in which case the caller must not proceed and must
// not Release.
func (r *InflightRegistry) TryAcquire(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[key]; busy {
		return false
	}
	r.inflight[key] = struct{}{}
	return true
}

// Release clears key so a later request may run. Callers pair it with a
// successful TryAcquire, typically via defer, on success and failure
// paths alike.
func (r *InflightRegistry) Release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inflight, key)
}
