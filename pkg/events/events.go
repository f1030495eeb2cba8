// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package events implements the streaming wire protocol spoken by the
// Genial backend's chat endpoints.
//
// A chat turn is delivered as a newline-delimited SSE stream. Each
// non-blank, non-comment line carries a "data:" prefixed JSON record
// with a "type" discriminator and a type-specific payload:
//
//	data: {"type":"progress","payload":{"message":"Reading your message...","node":"start"}}
//	data: {"type":"report_update","payload":{"evidences":{...},"summary":"..."}}
//	data: {"type":"diagnosis_update","payload":{"diseases":[...]}}
//	data: {"type":"result","payload":{"message":"...","suggestedActions":[...]}}
//
// Exactly one result (or one error) terminates a logical turn.
//
// The package follows a layered design:
//
//	HTTP Response Body → StreamReader → Parser → StreamEvent → callback
//
// Parsers only parse; readers handle I/O and chunk reassembly; event
// interpretation belongs to the state store and the turn driver.
package events

// =============================================================================
// Event Types
// =============================================================================

// EventType discriminates stream records.
type EventType string

const (
	// EventProgress is a transient status update for UI display only.
	EventProgress EventType = "progress"

	// EventReportUpdate carries a full replacement of the medical report.
	EventReportUpdate EventType = "report_update"

	// EventDiagnosisUpdate carries a full replacement of the ranked
	// condition list.
	EventDiagnosisUpdate EventType = "diagnosis_update"

	// EventResult carries the assistant's final reply for the turn.
	// Terminal.
	EventResult EventType = "result"

	// EventError aborts the turn with a user-facing message. Terminal.
	EventError EventType = "error"
)

// IsTerminal reports whether this event type ends a logical turn.
func (t EventType) IsTerminal() bool {
	return t == EventResult || t == EventError
}

// =============================================================================
// Domain Payloads
// =============================================================================

// Disease is one candidate condition with a likelihood score and the
// clinical reasoning behind the match. Ranking order as delivered by
// the backend is authoritative; clients never re-sort or break ties.
type Disease struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Likelihood float64 `json:"likelihood"` // 0-100
	Reason     string  `json:"reason"`
}

// Symptom is one piece of structured evidence extracted from the
// conversation.
type Symptom struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Severity string `json:"severity"` // mild, moderate, severe
	Duration string `json:"duration"`
	Notes    string `json:"notes,omitempty"`
}

// Report is the structured medical report accumulated over a session.
// Each report_update replaces the previous report wholesale; fields are
// never merged individually.
type Report struct {
	// Evidences maps evidence titles to collected values.
	Evidences map[string]string `json:"evidences"`

	// Images maps user-friendly image titles to server-side filenames.
	Images map[string]string `json:"images"`

	// ImagesAnalyses maps image titles to narrative analysis text.
	ImagesAnalyses map[string]string `json:"images_analyses"`

	// Summary is a brief narrative of the session so far.
	Summary string `json:"summary"`
}

// ProgressPayload is the body of a progress event.
type ProgressPayload struct {
	Message string `json:"message"`
	Node    string `json:"node,omitempty"`
}

// DiagnosisPayload is the body of a diagnosis_update event.
type DiagnosisPayload struct {
	Diseases []Disease `json:"diseases"`
}

// ResultPayload is the body of a result event.
type ResultPayload struct {
	Message           string    `json:"message"`
	ExtractedSymptoms []Symptom `json:"extractedSymptoms"`
	SuggestedActions  []string  `json:"suggestedActions"`
}

// ErrorPayload is the body of an error event.
type ErrorPayload struct {
	Message string `json:"message"`
}

// =============================================================================
// Stream Event
// =============================================================================

// StreamEvent is one decoded record from a chat turn stream. Exactly
// one payload field is non-nil, matching Type.
type StreamEvent struct {
	// Type discriminates which payload field is set.
	Type EventType

	// Index is the zero-based position of this event within its stream,
	// assigned by the reader.
	Index int

	Progress  *ProgressPayload
	Report    *Report
	Diagnosis *DiagnosisPayload
	Result    *ResultPayload
	Err       *ErrorPayload
}

// IsTerminal reports whether this event ends the turn.
func (e *StreamEvent) IsTerminal() bool {
	return e.Type.IsTerminal()
}
