// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// The condition-detail chat endpoint streams a simpler record shape
// than the main chat turn: each data line is a bare JSON object with
// either a "content" chunk or an "error" message, no type tag.
//
//	data: {"content":"Migraine is"}
//	data: {"content":" a neurological..."}

// ContentCallback receives each text chunk as it arrives.
type ContentCallback func(chunk string) error

// ServerError is an error record the backend sent inside the stream, as
// opposed to a transport failure. Its message is the backend's own.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string { return e.Message }

// ContentReader consumes a condition-detail chat stream and returns the
// accumulated reply text. Single-use, like StreamReader.
type ContentReader struct {
	used bool
}

// NewContentReader creates a single-use content-chunk reader.
func NewContentReader() *ContentReader {
	return &ContentReader{}
}

// ReadAll consumes the stream until EOF or a server-sent error record,
// invoking callback (may be nil) per chunk. The caller closes r.
func (cr *ContentReader) ReadAll(ctx context.Context, r io.Reader, callback ContentCallback) (string, error) {
	if cr.used {
		return "", ErrReaderReused
	}
	cr.used = true

	var answer strings.Builder
	var carry strings.Builder
	buf := make([]byte, 4096)

	handle := func(line string) error {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, ":") {
			return nil
		}
		if !strings.HasPrefix(line, "data:") {
			return nil
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var record struct {
			Content string `json:"content"`
			Error   string `json:"error"`
		}
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			// Same drop-and-continue policy as the main stream.
			return nil
		}
		if record.Error != "" {
			return &ServerError{Message: record.Error}
		}
		if record.Content != "" {
			answer.WriteString(record.Content)
			if callback != nil {
				if err := callback(record.Content); err != nil {
					return fmt.Errorf("content callback: %w", err)
				}
			}
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return answer.String(), ctx.Err()
		default:
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := carry.String() + string(buf[:n])
			carry.Reset()

			lines := strings.Split(chunk, "\n")
			carry.WriteString(lines[len(lines)-1])
			for _, line := range lines[:len(lines)-1] {
				if err := handle(line); err != nil {
					return answer.String(), err
				}
			}
		}

		if rerr == io.EOF {
			if carry.Len() > 0 {
				if err := handle(carry.String()); err != nil {
					return answer.String(), err
				}
			}
			return answer.String(), nil
		}
		if rerr != nil {
			return answer.String(), rerr
		}
	}
}
