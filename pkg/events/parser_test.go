// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package events

import (
	"testing"
)

// =============================================================================
// ParseLine Tests - Data Lines
// =============================================================================

func TestParser_ParseLine_ProgressEvent(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(`data: {"type":"progress","payload":{"message":"Reading your message...","node":"start"}}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil {
		t.Fatal("expected event, got nil")
	}
	if event.Type != EventProgress {
		t.Errorf("expected Type %v, got %v", EventProgress, event.Type)
	}
	if event.Progress == nil || event.Progress.Message != "Reading your message..." {
		t.Errorf("unexpected progress payload: %+v", event.Progress)
	}
	if event.Progress.Node != "start" {
		t.Errorf("expected node 'start', got %q", event.Progress.Node)
	}
}

func TestParser_ParseLine_ReportUpdateEvent(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(`data: {"type":"report_update","payload":{"evidences":{"Headache":"3 days"},"images":{},"images_analyses":{},"summary":"Patient reports headaches."}}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventReportUpdate {
		t.Errorf("expected Type %v, got %v", EventReportUpdate, event.Type)
	}
	if event.Report == nil {
		t.Fatal("expected report payload")
	}
	if event.Report.Evidences["Headache"] != "3 days" {
		t.Errorf("unexpected evidences: %v", event.Report.Evidences)
	}
	if event.Report.Summary != "Patient reports headaches." {
		t.Errorf("unexpected summary: %q", event.Report.Summary)
	}
}

func TestParser_ParseLine_DiagnosisUpdateEvent(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(`data: {"type":"diagnosis_update","payload":{"diseases":[{"id":"0","name":"Migraine","likelihood":70,"reason":"Recurrent unilateral headache"}]}}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventDiagnosisUpdate {
		t.Errorf("expected Type %v, got %v", EventDiagnosisUpdate, event.Type)
	}
	if event.Diagnosis == nil || len(event.Diagnosis.Diseases) != 1 {
		t.Fatalf("unexpected diagnosis payload: %+v", event.Diagnosis)
	}
	d := event.Diagnosis.Diseases[0]
	if d.Name != "Migraine" || d.Likelihood != 70 {
		t.Errorf("unexpected disease: %+v", d)
	}
}

func TestParser_ParseLine_ResultEvent(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(`data: {"type":"result","payload":{"message":"done","extractedSymptoms":null,"suggestedActions":["Yes","No"]}}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventResult {
		t.Errorf("expected Type %v, got %v", EventResult, event.Type)
	}
	if event.Result == nil || event.Result.Message != "done" {
		t.Fatalf("unexpected result payload: %+v", event.Result)
	}
	if len(event.Result.SuggestedActions) != 2 {
		t.Errorf("expected 2 suggested actions, got %v", event.Result.SuggestedActions)
	}
	if !event.IsTerminal() {
		t.Error("result must be terminal")
	}
}

func TestParser_ParseLine_ErrorEvent(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(`data: {"type":"error","payload":{"message":"Assistant failed! Please try again."}}`)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != EventError {
		t.Errorf("expected Type %v, got %v", EventError, event.Type)
	}
	if event.Err == nil || event.Err.Message != "Assistant failed! Please try again." {
		t.Errorf("unexpected error payload: %+v", event.Err)
	}
	if !event.IsTerminal() {
		t.Error("error must be terminal")
	}
}

// =============================================================================
// ParseLine Tests - Skipped Lines
// =============================================================================

func TestParser_ParseLine_EmptyLine(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != nil {
		t.Errorf("expected nil event for empty line, got %+v", event)
	}
}

func TestParser_ParseLine_CommentLine(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(": keep-alive")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != nil {
		t.Errorf("expected nil event for comment, got %+v", event)
	}
}

func TestParser_ParseLine_NonDataLine(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine("event: message")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event != nil {
		t.Errorf("expected nil event for non-data line, got %+v", event)
	}
}

func TestParser_ParseLine_DataPrefixWithoutSpace(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(`data:{"type":"progress","payload":{"message":"ok"}}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil || event.Type != EventProgress {
		t.Fatalf("expected progress event, got %+v", event)
	}
}

func TestParser_ParseLine_UnknownTypeIgnored(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(`data: {"type":"telemetry","payload":{"x":1}}`)
	if err != nil {
		t.Fatalf("unknown types must not error: %v", err)
	}
	if event != nil {
		t.Errorf("expected unknown type to be skipped, got %+v", event)
	}
}

func TestParser_ParseLine_MalformedJSON(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine(`data: {"type":"result","payload":`)
	if err == nil {
		t.Fatal("expected decode error for truncated JSON")
	}
	if event != nil {
		t.Errorf("expected nil event on decode error, got %+v", event)
	}
}

func TestParser_ParseLine_TrailingCarriageReturn(t *testing.T) {
	parser := NewParser()

	event, err := parser.ParseLine("data: {\"type\":\"progress\",\"payload\":{\"message\":\"ok\"}}\r")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event == nil || event.Progress == nil || event.Progress.Message != "ok" {
		t.Fatalf("CRLF line not handled: %+v", event)
	}
}
