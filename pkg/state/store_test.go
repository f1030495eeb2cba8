// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package state

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genial-ai/genial-go/pkg/events"
)

// =============================================================================
// Messages
// =============================================================================

func TestStore_AppendAndPatchMessage(t *testing.T) {
	store := NewStore()

	msg := NewAssistantMessage("thinking...")
	store.AppendMessage(msg)

	final := "here is your answer"
	reportFlag := true
	ok := store.PatchMessage(msg.ID, MessagePatch{
		Content:          &final,
		ReportUpdated:    &reportFlag,
		UpdatedDiseases:  []events.Disease{{ID: "0", Name: "Migraine", Likelihood: 70}},
		SuggestedActions: []string{"Yes", "No"},
	})
	require.True(t, ok)

	msgs := store.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, final, msgs[0].Content)
	assert.True(t, msgs[0].ReportUpdated)
	assert.False(t, msgs[0].DiagnosisUpdated)
	assert.Len(t, msgs[0].UpdatedDiseases, 1)
	assert.Equal(t, []string{"Yes", "No"}, msgs[0].SuggestedActions)
}

func TestStore_PatchMessage_UnknownID(t *testing.T) {
	store := NewStore()
	content := "x"
	assert.False(t, store.PatchMessage("nope", MessagePatch{Content: &content}))
}

func TestStore_EnsureWelcome_PrependsOnce(t *testing.T) {
	store := NewStore()
	store.AppendMessage(NewUserMessage("I have a headache", ""))

	store.EnsureWelcome()
	store.EnsureWelcome()

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, WelcomeMessageID, msgs[0].ID)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
	assert.Equal(t, RoleUser, msgs[1].Role)
}

func TestStore_EnsureWelcome_AlreadyPresent(t *testing.T) {
	store := NewStore()
	store.LoadMessages([]Message{WelcomeMessage(), NewUserMessage("hi", "")})

	store.EnsureWelcome()

	assert.Len(t, store.Messages(), 2)
}

func TestStore_LoadMessages_Replaces(t *testing.T) {
	store := NewStore()
	store.AppendMessage(NewUserMessage("old", ""))

	store.LoadMessages([]Message{NewUserMessage("a", ""), NewAssistantMessage("b")})

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Content)
	assert.True(t, store.HasMessages())
}

// =============================================================================
// Symptoms
// =============================================================================

func TestStore_UpsertSymptom_CaseInsensitiveKeepsID(t *testing.T) {
	store := NewStore()

	store.UpsertSymptom(events.Symptom{ID: "s1", Name: "Headache", Severity: "mild"})
	store.UpsertSymptom(events.Symptom{ID: "s2", Name: "headache", Severity: "severe", Duration: "3 days"})

	symptoms := store.Symptoms()
	require.Len(t, symptoms, 1)
	assert.Equal(t, "s1", symptoms[0].ID)
	assert.Equal(t, "severe", symptoms[0].Severity)
	assert.Equal(t, "3 days", symptoms[0].Duration)
}

func TestStore_UpsertSymptom_DistinctNamesAccumulate(t *testing.T) {
	store := NewStore()

	store.UpsertSymptom(events.Symptom{ID: "s1", Name: "Headache"})
	store.UpsertSymptom(events.Symptom{ID: "s2", Name: "Fever"})

	assert.Len(t, store.Symptoms(), 2)
}

// =============================================================================
// Report / Ranked Conditions
// =============================================================================

func TestStore_ReplaceReport_SetsUnread(t *testing.T) {
	store := NewStore()
	require.Nil(t, store.Report())
	require.False(t, store.ReportUnread())

	store.ReplaceReport(&events.Report{Summary: "first"})
	assert.True(t, store.ReportUnread())

	store.AcknowledgeReport()
	assert.False(t, store.ReportUnread())

	// Replacement is wholesale, never a merge.
	store.ReplaceReport(&events.Report{Summary: "second"})
	assert.Equal(t, "second", store.Report().Summary)
	assert.Empty(t, store.Report().Evidences)
	assert.True(t, store.ReportUnread())
}

func TestStore_ReplaceRankedConditions_KeepsBackendOrder(t *testing.T) {
	store := NewStore()

	store.ReplaceRankedConditions([]events.Disease{
		{ID: "1", Name: "B", Likelihood: 20},
		{ID: "0", Name: "A", Likelihood: 70},
	})

	ranked := store.RankedConditions()
	require.Len(t, ranked, 2)
	assert.Equal(t, "B", ranked[0].Name)
	assert.True(t, store.DiagnosisUnread())

	store.AcknowledgeDiagnosis()
	assert.False(t, store.DiagnosisUnread())
}

func TestStore_SnapshotRestoreClinical(t *testing.T) {
	store := NewStore()
	store.ReplaceReport(&events.Report{Summary: "before"})
	store.ReplaceRankedConditions([]events.Disease{{ID: "0", Name: "A"}})
	store.AcknowledgeReport()
	store.AcknowledgeDiagnosis()

	snap := store.SnapshotClinical()

	// A turn folds interim updates, then the backend aborts.
	store.ReplaceReport(&events.Report{Summary: "interim"})
	store.ReplaceRankedConditions([]events.Disease{{ID: "1", Name: "B"}, {ID: "2", Name: "C"}})

	store.RestoreClinical(snap)

	assert.Equal(t, "before", store.Report().Summary)
	require.Len(t, store.RankedConditions(), 1)
	assert.Equal(t, "A", store.RankedConditions()[0].Name)
	assert.False(t, store.ReportUnread())
	assert.False(t, store.DiagnosisUnread())
}

// =============================================================================
// Condition Detail
// =============================================================================

func TestStore_SelectCondition_ResetsThread(t *testing.T) {
	store := NewStore()
	migraine := &events.Disease{ID: "0", Name: "Migraine"}

	store.SelectCondition(migraine)
	store.AppendConditionMessage("0", NewUserMessage("is it hereditary?", ""))
	require.Len(t, store.ConditionThread("0"), 1)

	// Re-entering the detail view starts a fresh sub-conversation.
	store.SelectCondition(migraine)
	assert.Empty(t, store.ConditionThread("0"))
	assert.Equal(t, "Migraine", store.SelectedCondition().Name)

	store.SelectCondition(nil)
	assert.Nil(t, store.SelectedCondition())
}

func TestStore_ConditionThreads_Independent(t *testing.T) {
	store := NewStore()

	store.AppendConditionMessage("0", NewUserMessage("a", ""))
	store.AppendConditionMessage("1", NewUserMessage("b", ""))

	assert.Len(t, store.ConditionThread("0"), 1)
	assert.Len(t, store.ConditionThread("1"), 1)
	assert.Empty(t, store.ConditionThread("2"))
}

// =============================================================================
// Reset / Concurrency
// =============================================================================

func TestStore_Reset(t *testing.T) {
	store := NewStore()
	store.AppendMessage(NewUserMessage("hi", ""))
	store.UpsertSymptom(events.Symptom{ID: "s1", Name: "Fever"})
	store.ReplaceReport(&events.Report{Summary: "x"})
	store.ReplaceRankedConditions([]events.Disease{{ID: "0"}})
	store.SelectCondition(&events.Disease{ID: "0"})
	store.AppendConditionMessage("0", NewUserMessage("q", ""))

	store.Reset()

	assert.False(t, store.HasMessages())
	assert.Empty(t, store.Symptoms())
	assert.Nil(t, store.Report())
	assert.Empty(t, store.RankedConditions())
	assert.False(t, store.ReportUnread())
	assert.False(t, store.DiagnosisUnread())
	assert.Nil(t, store.SelectedCondition())
	assert.Empty(t, store.ConditionThread("0"))
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				store.AppendMessage(NewUserMessage("m", ""))
				store.ReplaceRankedConditions([]events.Disease{{ID: "0"}})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = store.Messages()
				_ = store.RankedConditions()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, store.Messages(), 8*50)
}
