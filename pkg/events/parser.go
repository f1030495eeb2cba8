// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Parsers for the SSE record format. Parsers ONLY parse: no I/O, no
// rendering, no state. This separation keeps them trivially testable
// and lets the reader own buffering policy.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Parser Interface
// =============================================================================

// Parser converts a single SSE line into a StreamEvent.
//
// Line handling:
//   - Empty lines: event delimiters, skipped (nil, nil)
//   - Comment lines (":" prefix): skipped (nil, nil)
//   - Lines without the "data:" prefix: skipped (nil, nil)
//   - "data:" lines: JSON payload decoded by type tag
//   - Unknown type tags: skipped (nil, nil) for forward compatibility
//
// A decode error on one record must never abort the stream; callers
// log it and move to the next line.
//
// Implementations must be stateless and safe for concurrent use.
type Parser interface {
	// ParseLine parses one line (without trailing newline). Returns
	// (nil, nil) for lines that carry no event.
	ParseLine(line string) (*StreamEvent, error)
}

// =============================================================================
// SSE Parser Implementation
// =============================================================================

// sseParser implements Parser for the backend's SSE format. Stateless.
type sseParser struct{}

// NewParser creates a stateless SSE record parser. The returned parser
// can be shared across goroutines and requests.
func NewParser() Parser {
	return &sseParser{}
}

func (p *sseParser) ParseLine(line string) (*StreamEvent, error) {
	line = strings.TrimSpace(line)

	if line == "" {
		return nil, nil
	}

	// SSE comments.
	if strings.HasPrefix(line, ":") {
		return nil, nil
	}

	// Only data records carry events. Anything else on the wire is
	// transport noise and is skipped rather than rejected.
	var payload string
	switch {
	case strings.HasPrefix(line, "data: "):
		payload = strings.TrimPrefix(line, "data: ")
	case strings.HasPrefix(line, "data:"):
		payload = strings.TrimPrefix(line, "data:")
	default:
		return nil, nil
	}

	return p.parseRecord([]byte(payload))
}

// parseRecord decodes one JSON record into a typed event.
func (p *sseParser) parseRecord(data []byte) (*StreamEvent, error) {
	var raw struct {
		Type    EventType       `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}

	event := &StreamEvent{Type: raw.Type}

	switch raw.Type {
	case EventProgress:
		event.Progress = &ProgressPayload{}
		if err := json.Unmarshal(raw.Payload, event.Progress); err != nil {
			return nil, fmt.Errorf("decode progress payload: %w", err)
		}
	case EventReportUpdate:
		event.Report = &Report{}
		if err := json.Unmarshal(raw.Payload, event.Report); err != nil {
			return nil, fmt.Errorf("decode report payload: %w", err)
		}
	case EventDiagnosisUpdate:
		event.Diagnosis = &DiagnosisPayload{}
		if err := json.Unmarshal(raw.Payload, event.Diagnosis); err != nil {
			return nil, fmt.Errorf("decode diagnosis payload: %w", err)
		}
	case EventResult:
		event.Result = &ResultPayload{}
		if err := json.Unmarshal(raw.Payload, event.Result); err != nil {
			return nil, fmt.Errorf("decode result payload: %w", err)
		}
	case EventError:
		event.Err = &ErrorPayload{}
		if err := json.Unmarshal(raw.Payload, event.Err); err != nil {
			return nil, fmt.Errorf("decode error payload: %w", err)
		}
	default:
		// Unknown tags are ignored, not rejected: a newer backend may
		// emit event kinds this client does not understand yet.
		return nil, nil
	}

	return event, nil
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Parser = (*sseParser)(nil)
