// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/genial-ai/genial-go/pkg/events"
	"github.com/genial-ai/genial-go/pkg/state"
)

func TestRenderMessage_BadgesAndQuickReplies(t *testing.T) {
	var buf bytes.Buffer
	renderMessage(&buf, state.Message{
		Role:             state.RoleAssistant,
		Content:          "It sounds like a migraine.",
		ReportUpdated:    true,
		DiagnosisUpdated: true,
		SuggestedActions: []string{"Yes", "No"},
	})

	out := buf.String()
	assert.Contains(t, out, "It sounds like a migraine.")
	assert.Contains(t, out, "report updated")
	assert.Contains(t, out, "conditions updated")
	assert.Contains(t, out, "/1 Yes")
	assert.Contains(t, out, "/2 No")
}

func TestRenderConditions_BackendOrderPreserved(t *testing.T) {
	var buf bytes.Buffer
	renderConditions(&buf, []events.Disease{
		{ID: "1", Name: "Tension headache", Likelihood: 20, Reason: "r1"},
		{ID: "0", Name: "Migraine", Likelihood: 70, Reason: "r2"},
	})

	out := buf.String()
	assert.Less(t, strings.Index(out, "Tension headache"), strings.Index(out, "Migraine"),
		"conditions must render in delivered order")
	assert.Contains(t, out, "not a diagnosis")
}

func TestRenderConditions_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderConditions(&buf, nil)
	assert.Contains(t, buf.String(), "No possible conditions")
}

func TestRenderReport_Empty(t *testing.T) {
	var buf bytes.Buffer
	renderReport(&buf, nil, nil)
	assert.Contains(t, buf.String(), "No report yet")
}

func TestReportMarkdown(t *testing.T) {
	md := reportMarkdown(&GeneratedReportView{
		PatientSummary:  "You likely have a migraine.",
		ClinicalSummary: "Recurrent unilateral cephalalgia.",
		Evidences:       map[string]string{"Headache": "3 days", "Aura": "present"},
		Ranked:          []events.Disease{{Name: "Migraine", Likelihood: 70, Reason: "r"}},
	})

	assert.Contains(t, md, "# Genial Medical Report")
	assert.Contains(t, md, "You likely have a migraine.")
	assert.Contains(t, md, "Recurrent unilateral cephalalgia.")
	assert.Contains(t, md, "- **Aura**: present")
	assert.Contains(t, md, "1. **Migraine** (70%)")
	assert.Contains(t, md, "not a diagnosis")

	// Findings are sorted for a stable artifact.
	assert.Less(t, strings.Index(md, "**Aura**"), strings.Index(md, "**Headache**"))
}
