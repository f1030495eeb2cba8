// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Stream readers consume io.Reader sources and emit parsed events via
// callbacks. Readers handle I/O and chunk reassembly; they delegate
// line parsing to a Parser and never interpret event semantics.
package events

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/genial-ai/genial-go/pkg/logging"
)

// ErrReaderReused is returned when Read is called twice on the same
// StreamReader. A turn stream is not restartable; create a fresh reader
// per request.
var ErrReaderReused = errors.New("stream reader already consumed")

// Callback is invoked for each decoded event, in wire order. Returning
// a non-nil error stops the read and propagates the error.
type Callback func(event StreamEvent) error

// =============================================================================
// Stream Reader
// =============================================================================

// StreamReader decodes a chunked SSE byte stream into discrete events.
//
// The reader maintains a carry buffer across chunk boundaries: each
// chunk is appended, complete lines are split off and parsed, and the
// trailing partial line (no terminator yet) is retained for the next
// chunk. Any splitting of the byte stream therefore yields the exact
// same event sequence as the unsplit stream.
//
// Malformed records are logged and skipped; a later record may still be
// valid, so one bad line never aborts the stream.
//
// A StreamReader is single-use. It is not safe for concurrent use.
type StreamReader struct {
	parser Parser
	logger *logging.Logger
	used   bool
}

// NewStreamReader creates a single-use reader. logger may be nil.
func NewStreamReader(parser Parser, logger *logging.Logger) *StreamReader {
	if logger == nil {
		logger = logging.Nop()
	}
	return &StreamReader{parser: parser, logger: logger}
}

// Read consumes the stream until a terminal event, EOF, context
// cancellation, or a callback error. The caller owns r and must close
// it on every exit path; Read never closes it.
func (sr *StreamReader) Read(ctx context.Context, r io.Reader, callback Callback) error {
	if sr.used {
		return ErrReaderReused
	}
	sr.used = true

	var carry strings.Builder
	buf := make([]byte, 4096)
	index := 0

	emit := func(line string) (done bool, err error) {
		event, perr := sr.parser.ParseLine(line)
		if perr != nil {
			// Explicit policy, not an oversight: the record is dropped
			// and consumption continues.
			sr.logger.Warn("skipping malformed stream record", "error", perr)
			return false, nil
		}
		if event == nil {
			return false, nil
		}
		event.Index = index
		index++
		if err := callback(*event); err != nil {
			return true, err
		}
		return event.IsTerminal(), nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := carry.String() + string(buf[:n])
			carry.Reset()

			lines := strings.Split(chunk, "\n")
			// The final element has no terminator yet; hold it back.
			carry.WriteString(lines[len(lines)-1])
			for _, line := range lines[:len(lines)-1] {
				done, err := emit(line)
				if done || err != nil {
					return err
				}
			}
		}

		if rerr == io.EOF {
			// Flush a trailing record the server sent without a final
			// newline before closing.
			if carry.Len() > 0 {
				if _, err := emit(carry.String()); err != nil {
					return err
				}
			}
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
