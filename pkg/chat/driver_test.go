// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genial-ai/genial-go/pkg/api"
	"github.com/genial-ai/genial-go/pkg/events"
	"github.com/genial-ai/genial-go/pkg/session"
	"github.com/genial-ai/genial-go/pkg/state"
)

// fakeBackend scripts stream responses and records calls.
type fakeBackend struct {
	mu            sync.Mutex
	chatCalls     int
	diseaseCalls  int
	chatStream    io.ReadCloser
	chatErr       error
	diseaseStream io.ReadCloser
	diseaseErr    error
	lastDisease   api.DiseaseChatRequest
	// block, when non-nil, holds Chat open until closed.
	block chan struct{}
}

func (f *fakeBackend) Chat(_ context.Context, _, _, _ string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.chatCalls++
	stream, err, block := f.chatStream, f.chatErr, f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return stream, err
}

func (f *fakeBackend) DiseaseChat(_ context.Context, _ string, req api.DiseaseChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diseaseCalls++
	f.lastDisease = req
	return f.diseaseStream, f.diseaseErr
}

func stream(s string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(s))
}

// failingReader yields its data, then a transport error.
type failingReader struct {
	data string
	pos  int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, errors.New("connection reset")
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

func (r *failingReader) Close() error { return nil }

func newDriver(backend Backend, store *state.Store, hooks Hooks) *Driver {
	return NewDriver(Config{
		Backend:   backend,
		Store:     store,
		SessionID: "sid-1",
		Inflight:  session.NewInflightRegistry(),
		Hooks:     hooks,
	})
}

// =============================================================================
// Full Turn
// =============================================================================

const fullTurnStream = "data: {\"type\":\"progress\",\"payload\":{\"message\":\"Reading your message...\",\"node\":\"start\"}}\n\n" +
	"data: {\"type\":\"report_update\",\"payload\":{\"evidences\":{\"Headache\":\"3 days\"},\"images\":{},\"images_analyses\":{},\"summary\":\"s\"}}\n\n" +
	"data: {\"type\":\"diagnosis_update\",\"payload\":{\"diseases\":[{\"id\":\"0\",\"name\":\"Migraine\",\"likelihood\":70,\"reason\":\"r\"}]}}\n\n" +
	"data: {\"type\":\"result\",\"payload\":{\"message\":\"It sounds like a migraine.\",\"extractedSymptoms\":[{\"id\":\"s1\",\"name\":\"Headache\",\"severity\":\"moderate\",\"duration\":\"3 days\"}],\"suggestedActions\":[\"Yes\",\"No\"]}}\n\n"

func TestTurn_FullScenario(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{chatStream: stream(fullTurnStream)}

	var progress []string
	driver := newDriver(backend, store, Hooks{
		OnProgress: func(m string) { progress = append(progress, m) },
	})

	require.NoError(t, driver.Turn(context.Background(), "I have a headache", ""))

	msgs := store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, state.RoleUser, msgs[0].Role)
	assert.Equal(t, "I have a headache", msgs[0].Content)

	final := msgs[1]
	assert.Equal(t, state.RoleAssistant, final.Role)
	assert.Equal(t, "It sounds like a migraine.", final.Content)
	assert.True(t, final.ReportUpdated)
	assert.True(t, final.DiagnosisUpdated)
	require.Len(t, final.UpdatedDiseases, 1)
	assert.Equal(t, "Migraine", final.UpdatedDiseases[0].Name)
	assert.Equal(t, []string{"Yes", "No"}, final.SuggestedActions)

	require.NotNil(t, store.Report())
	assert.Equal(t, "3 days", store.Report().Evidences["Headache"])
	assert.True(t, store.ReportUnread())
	require.Len(t, store.RankedConditions(), 1)
	assert.True(t, store.DiagnosisUnread())

	symptoms := store.Symptoms()
	require.Len(t, symptoms, 1)
	assert.Equal(t, "Headache", symptoms[0].Name)

	assert.Equal(t, []string{"Reading your message..."}, progress)
}

func TestTurn_ResultWithoutUpdatesLeavesFlagsFalse(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{chatStream: stream(
		"data: {\"type\":\"result\",\"payload\":{\"message\":\"Could you tell me more?\"}}\n\n")}
	driver := newDriver(backend, store, Hooks{})

	require.NoError(t, driver.Turn(context.Background(), "hi", ""))

	final := store.Messages()[1]
	assert.False(t, final.ReportUpdated)
	assert.False(t, final.DiagnosisUpdated)
	assert.Empty(t, final.UpdatedDiseases)
	assert.Nil(t, store.Report())
}

// =============================================================================
// Error Taxonomy
// =============================================================================

func TestTurn_BackendErrorEventRollsBackClinicalState(t *testing.T) {
	store := state.NewStore()
	store.ReplaceReport(&events.Report{Summary: "before"})
	store.AcknowledgeReport()

	backend := &fakeBackend{chatStream: stream(
		"data: {\"type\":\"report_update\",\"payload\":{\"evidences\":{},\"images\":{},\"images_analyses\":{},\"summary\":\"interim\"}}\n\n" +
			"data: {\"type\":\"diagnosis_update\",\"payload\":{\"diseases\":[{\"id\":\"9\",\"name\":\"X\"}]}}\n\n" +
			"data: {\"type\":\"error\",\"payload\":{\"message\":\"Assistant failed! Please try again.\"}}\n\n")}
	driver := newDriver(backend, store, Hooks{})

	require.NoError(t, driver.Turn(context.Background(), "hi", ""))

	// Verbatim backend message, no update flags.
	final := store.Messages()[1]
	assert.Equal(t, "Assistant failed! Please try again.", final.Content)
	assert.False(t, final.ReportUpdated)
	assert.False(t, final.DiagnosisUpdated)

	// Interim folds rolled back.
	assert.Equal(t, "before", store.Report().Summary)
	assert.False(t, store.ReportUnread())
	assert.Empty(t, store.RankedConditions())
}

func TestTurn_TransportFailureShowsApology(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{chatErr: errors.New("connection refused")}
	driver := newDriver(backend, store, Hooks{})

	require.NoError(t, driver.Turn(context.Background(), "hi", ""))

	final := store.Messages()[1]
	assert.Equal(t, apologyText, final.Content)
}

func TestTurn_MidStreamFailureKeepsFoldedState(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{chatStream: &failingReader{
		data: "data: {\"type\":\"report_update\",\"payload\":{\"evidences\":{},\"images\":{},\"images_analyses\":{},\"summary\":\"partial\"}}\n\n",
	}}
	driver := newDriver(backend, store, Hooks{})

	require.NoError(t, driver.Turn(context.Background(), "hi", ""))

	// Apology in the history, but interim state survives: the stream
	// died after the fold, and that is what the user saw happen.
	final := store.Messages()[1]
	assert.Equal(t, apologyText, final.Content)
	require.NotNil(t, store.Report())
	assert.Equal(t, "partial", store.Report().Summary)
}

func TestTurn_MissingTerminalEventShowsApology(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{chatStream: stream(
		"data: {\"type\":\"progress\",\"payload\":{\"message\":\"working\"}}\n\n")}
	driver := newDriver(backend, store, Hooks{})

	require.NoError(t, driver.Turn(context.Background(), "hi", ""))

	assert.Equal(t, apologyText, store.Messages()[1].Content)
}

func TestTurn_UnauthorizedPropagates(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{chatErr: api.ErrUnauthorized}
	driver := newDriver(backend, store, Hooks{})

	err := driver.Turn(context.Background(), "hi", "")
	assert.ErrorIs(t, err, api.ErrUnauthorized)
}

// =============================================================================
// Deduplication
// =============================================================================

func TestTurn_DuplicateConcurrentTurnSkipped(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{
		chatStream: stream("data: {\"type\":\"result\",\"payload\":{\"message\":\"done\"}}\n\n"),
		block:      make(chan struct{}),
	}
	driver := newDriver(backend, store, Hooks{})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		driver.Turn(context.Background(), "first", "")
	}()

	// Wait until the first turn holds the slot, then fire a duplicate.
	require.Eventually(t, func() bool {
		return len(store.Messages()) == 2
	}, time.Second, time.Millisecond)
	require.NoError(t, driver.Turn(context.Background(), "duplicate", ""))

	close(backend.block)
	wg.Wait()

	backend.mu.Lock()
	calls := backend.chatCalls
	backend.mu.Unlock()
	assert.Equal(t, 1, calls, "duplicate turn must not reach the backend")
	assert.Len(t, store.Messages(), 2, "duplicate turn must not touch the history")
}

// =============================================================================
// Condition Detail
// =============================================================================

func TestOpenCondition_FetchesInitialExplanation(t *testing.T) {
	store := state.NewStore()
	store.ReplaceReport(&events.Report{Evidences: map[string]string{"Headache": "3 days"}})
	backend := &fakeBackend{diseaseStream: stream(
		"data: {\"content\":\"Migraine is\"}\n\ndata: {\"content\":\" common.\"}\n\n")}

	var chunks []string
	driver := newDriver(backend, store, Hooks{
		OnConditionChunk: func(c string) { chunks = append(chunks, c) },
	})

	migraine := events.Disease{ID: "0", Name: "Migraine", Likelihood: 70}
	require.NoError(t, driver.OpenCondition(context.Background(), migraine))

	require.NotNil(t, store.SelectedCondition())
	assert.Equal(t, "Migraine", store.SelectedCondition().Name)

	thread := store.ConditionThread("0")
	require.Len(t, thread, 2)
	assert.Equal(t, state.RoleUser, thread[0].Role)
	assert.Equal(t, "Migraine is common.", thread[1].Content)
	assert.Len(t, chunks, 2)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, "3 days", backend.lastDisease.Evidences["Headache"])
	assert.Equal(t, "Migraine", backend.lastDisease.Disease.Name)
}

func TestAskCondition_ServerErrorVerbatim(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{diseaseStream: stream(
		"data: {\"error\":\"model unavailable\"}\n\n")}
	driver := newDriver(backend, store, Hooks{})

	condition := events.Disease{ID: "0", Name: "Migraine"}
	require.NoError(t, driver.AskCondition(context.Background(), condition, "is it serious?"))

	thread := store.ConditionThread("0")
	require.Len(t, thread, 2)
	assert.Equal(t, "model unavailable", thread[1].Content)
}

func TestAskCondition_TransportFailureApology(t *testing.T) {
	store := state.NewStore()
	backend := &fakeBackend{diseaseErr: errors.New("connection refused")}
	driver := newDriver(backend, store, Hooks{})

	condition := events.Disease{ID: "0", Name: "Migraine"}
	require.NoError(t, driver.AskCondition(context.Background(), condition, "q"))

	thread := store.ConditionThread("0")
	require.Len(t, thread, 2)
	assert.Equal(t, apologyText, thread[1].Content)
}
