// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package chat drives conversational turns: it submits the user's input,
consumes the event stream, and folds each event into the conversation
store as it arrives.

# Folding Rules

Interim events mutate shared state immediately so observers see live
progress: report_update replaces the report, diagnosis_update replaces
the ranked conditions, progress reaches the UI through a hook and
touches no state. The terminal result commits the assistant message
with the turn's accumulated flags; a terminal error restores the
clinical state captured before the turn, so an aborted turn leaves no
half-applied report or ranking behind.

# Error Taxonomy

Three failure classes, three behaviors: a transport failure shows a
generic apology and keeps whatever interim state was already folded; a
malformed record is skipped inside pkg/events; a backend error event
shows its message verbatim and rolls the clinical state back. Only an
authentication failure propagates to the caller.
*/
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/genial-ai/genial-go/pkg/api"
	"github.com/genial-ai/genial-go/pkg/events"
	"github.com/genial-ai/genial-go/pkg/logging"
	"github.com/genial-ai/genial-go/pkg/session"
	"github.com/genial-ai/genial-go/pkg/state"
)

// DefaultTurnTimeout bounds one turn end to end, including the stream.
// A backend stuck emitting progress forever gets cut off here.
const DefaultTurnTimeout = 5 * time.Minute

// apologyText is shown in place of the assistant's reply when the
// backend could not be reached or the stream died mid-turn.
const apologyText = "Sorry, something went wrong while contacting the assistant. Please try again."

// signInText is shown when the stored credential was rejected.
const signInText = "Your session has expired. Please sign in again."

// Deduplication keys. One conversational turn and one initial
// condition fetch per condition may run at a time.
const (
	dedupKeyTurn            = "chat-turn"
	dedupKeyConditionPrefix = "condition-initial:"
)

// Backend is the slice of the API client the driver needs.
type Backend interface {
	Chat(ctx context.Context, sessionID, message, imageBase64 string) (io.ReadCloser, error)
	DiseaseChat(ctx context.Context, sessionID string, req api.DiseaseChatRequest) (io.ReadCloser, error)
}

var _ Backend = (*api.Client)(nil)

// Hooks let a UI observe a turn without coupling the driver to a
// renderer. All hooks are optional and are called from the goroutine
// running the turn.
type Hooks struct {
	// OnProgress receives each progress message, for spinners.
	OnProgress func(message string)
	// OnConditionChunk receives each text chunk of a condition answer
	// as it streams in.
	OnConditionChunk func(chunk string)
}

// =============================================================================
// Driver
// =============================================================================

// Config carries Driver construction parameters.
type Config struct {
	Backend   Backend
	Store     *state.Store
	SessionID string
	// Inflight suppresses duplicate concurrent requests. Required.
	Inflight *session.InflightRegistry
	Logger   *logging.Logger
	// TurnTimeout defaults to DefaultTurnTimeout when zero.
	TurnTimeout time.Duration
	Hooks       Hooks
}

// Driver runs conversational turns against one session.
type Driver struct {
	backend   Backend
	store     *state.Store
	sessionID string
	inflight  *session.InflightRegistry
	logger    *logging.Logger
	timeout   time.Duration
	hooks     Hooks
}

// NewDriver builds a Driver from cfg.
func NewDriver(cfg Config) *Driver {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	timeout := cfg.TurnTimeout
	if timeout <= 0 {
		timeout = DefaultTurnTimeout
	}
	inflight := cfg.Inflight
	if inflight == nil {
		inflight = session.NewInflightRegistry()
	}
	return &Driver{
		backend:   cfg.Backend,
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		inflight:  inflight,
		logger:    logger,
		timeout:   timeout,
		hooks:     cfg.Hooks,
	}
}

// turnAccumulator collects what a turn saw, to be committed only on the
// terminal result.
type turnAccumulator struct {
	sawReport    bool
	sawDiagnosis bool
	latestRanked []events.Disease
	result       *events.ResultPayload
	errMessage   string
	sawError     bool
}

// Turn runs one conversational turn: appends the user message, streams
// the backend's response, folds interim events, and commits or rolls
// back on the terminal event.
//
// A second Turn arriving while one is in flight is skipped silently.
// Degraded outcomes (transport failure, backend error event) are
// recorded in the conversation itself and return nil; only an
// authentication failure is returned.
func (d *Driver) Turn(ctx context.Context, text, imageBase64 string) error {
	if !d.inflight.TryAcquire(dedupKeyTurn) {
		d.logger.Debug("turn already in flight, skipping duplicate")
		return nil
	}
	defer d.inflight.Release(dedupKeyTurn)

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	userMsg := state.NewUserMessage(text, "")
	if imageBase64 != "" {
		userMsg.ImageURL = "(attached image)"
	}
	d.store.AppendMessage(userMsg)

	placeholder := state.NewAssistantMessage("")
	d.store.AppendMessage(placeholder)

	snapshot := d.store.SnapshotClinical()

	body, err := d.backend.Chat(ctx, d.sessionID, text, imageBase64)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			d.patchContent(placeholder.ID, signInText)
			return err
		}
		d.logger.Error("chat request failed", "error", err)
		d.patchContent(placeholder.ID, apologyText)
		return nil
	}
	defer body.Close()

	var acc turnAccumulator
	reader := events.NewStreamReader(events.NewParser(), d.logger)
	err = reader.Read(ctx, body, func(event events.StreamEvent) error {
		d.fold(event, &acc)
		return nil
	})
	if err != nil {
		d.logger.Error("chat stream failed", "error", err, "events_folded", acc.sawReport || acc.sawDiagnosis)
		d.patchContent(placeholder.ID, apologyText)
		return nil
	}

	switch {
	case acc.sawError:
		// The backend aborted the turn: its message verbatim, and no
		// trace of the turn's interim clinical updates.
		d.store.RestoreClinical(snapshot)
		d.patchContent(placeholder.ID, acc.errMessage)
	case acc.result != nil:
		d.commitResult(placeholder.ID, &acc)
	default:
		// Stream ended without a terminal event; same contract as a
		// dropped connection.
		d.logger.Warn("stream ended without terminal event")
		d.patchContent(placeholder.ID, apologyText)
	}
	return nil
}

// fold applies one event to shared state per the folding rules.
func (d *Driver) fold(event events.StreamEvent, acc *turnAccumulator) {
	switch event.Type {
	case events.EventProgress:
		if d.hooks.OnProgress != nil && event.Progress != nil {
			d.hooks.OnProgress(event.Progress.Message)
		}
	case events.EventReportUpdate:
		if event.Report != nil {
			d.store.ReplaceReport(event.Report)
			acc.sawReport = true
		}
	case events.EventDiagnosisUpdate:
		if event.Diagnosis != nil {
			d.store.ReplaceRankedConditions(event.Diagnosis.Diseases)
			acc.sawDiagnosis = true
			acc.latestRanked = event.Diagnosis.Diseases
		}
	case events.EventResult:
		acc.result = event.Result
	case events.EventError:
		acc.sawError = true
		if event.Err != nil {
			acc.errMessage = event.Err.Message
		}
	}
}

// commitResult finalizes the assistant message and absorbs extracted
// symptoms.
func (d *Driver) commitResult(messageID string, acc *turnAccumulator) {
	patch := state.MessagePatch{
		Content:          &acc.result.Message,
		ReportUpdated:    &acc.sawReport,
		DiagnosisUpdated: &acc.sawDiagnosis,
	}
	if acc.sawDiagnosis {
		patch.UpdatedDiseases = acc.latestRanked
	}
	if len(acc.result.SuggestedActions) > 0 {
		patch.SuggestedActions = acc.result.SuggestedActions
	}
	d.store.PatchMessage(messageID, patch)

	for _, symptom := range acc.result.ExtractedSymptoms {
		d.store.UpsertSymptom(symptom)
	}
}

func (d *Driver) patchContent(messageID, content string) {
	d.store.PatchMessage(messageID, state.MessagePatch{Content: &content})
}

// =============================================================================
// Condition Detail
// =============================================================================

// OpenCondition enters the detail view for a condition and fetches its
// initial explanation. Duplicate concurrent opens of the same
// condition trigger exactly one fetch; the loser returns immediately.
func (d *Driver) OpenCondition(ctx context.Context, condition events.Disease) error {
	d.store.SelectCondition(&condition)

	key := dedupKeyConditionPrefix + condition.ID
	if !d.inflight.TryAcquire(key) {
		d.logger.Debug("initial condition fetch already in flight", "condition", condition.ID)
		return nil
	}
	defer d.inflight.Release(key)

	question := fmt.Sprintf("Tell me more about %s and why it might match my symptoms.", condition.Name)
	return d.conditionTurn(ctx, condition, question)
}

// AskCondition submits a follow-up question inside a condition's detail
// view.
func (d *Driver) AskCondition(ctx context.Context, condition events.Disease, question string) error {
	return d.conditionTurn(ctx, condition, question)
}

func (d *Driver) conditionTurn(ctx context.Context, condition events.Disease, question string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	history := d.store.ConditionThread(condition.ID)
	d.store.AppendConditionMessage(condition.ID, state.NewUserMessage(question, ""))

	evidences := map[string]string{}
	if report := d.store.Report(); report != nil {
		evidences = report.Evidences
	}

	body, err := d.backend.DiseaseChat(ctx, d.sessionID, api.DiseaseChatRequest{
		Message:   question,
		Disease:   condition,
		Evidences: evidences,
		History:   history,
	})
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return err
		}
		d.logger.Error("condition chat request failed", "condition", condition.ID, "error", err)
		d.store.AppendConditionMessage(condition.ID, state.NewAssistantMessage(apologyText))
		return nil
	}
	defer body.Close()

	reader := events.NewContentReader()
	answer, err := reader.ReadAll(ctx, body, func(chunk string) error {
		if d.hooks.OnConditionChunk != nil {
			d.hooks.OnConditionChunk(chunk)
		}
		return nil
	})
	if err != nil {
		// Server-sent error records carry the backend's own message;
		// anything else gets the generic apology.
		message := apologyText
		var serverErr *events.ServerError
		if errors.As(err, &serverErr) {
			message = serverErr.Message
		}
		d.logger.Error("condition chat stream failed", "condition", condition.ID, "error", err)
		d.store.AppendConditionMessage(condition.ID, state.NewAssistantMessage(message))
		return nil
	}

	d.store.AppendConditionMessage(condition.ID, state.NewAssistantMessage(answer))
	return nil
}
