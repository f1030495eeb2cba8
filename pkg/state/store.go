// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package state holds the canonical conversation state for one Genial
// session: the message history, collected symptoms, the latest medical
// report, and the ranked condition list.
//
// A single Store is constructed at process start, lives for the process
// lifetime, and is passed by reference to every consumer. UI surfaces
// are read-only observers; mutation happens only through the exported
// operations, which are each atomic.
//
// The message sequence is append-only, with two exceptions: in-place
// patches by message id (used for in-progress assistant turns) and a
// single welcome placeholder that may be prepended once when a
// recovered session lacks it.
package state

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genial-ai/genial-go/pkg/events"
)

// Role identifies a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// WelcomeMessageID marks the static greeting so recovery can detect
// whether a restored history already contains it.
const WelcomeMessageID = "welcome"

const welcomeText = "Hello! I'm Genial, your medical information assistant. " +
	"Tell me what's bothering you — you can also attach a photo of a visible " +
	"symptom or a lab report. I'll collect the details and show you possible " +
	"conditions as we go. I provide information, not a diagnosis; for medical " +
	"emergencies contact a healthcare professional immediately."

// Message is one entry in the conversation history.
type Message struct {
	ID        string `json:"id"`
	Role      Role   `json:"role"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	ImageURL  string `json:"imageUrl,omitempty"`

	// ReportUpdated and DiagnosisUpdated tag an assistant message whose
	// turn changed the report or the ranked conditions, so the UI can
	// badge it.
	ReportUpdated    bool `json:"reportUpdated,omitempty"`
	DiagnosisUpdated bool `json:"diagnosisUpdated,omitempty"`

	// UpdatedDiseases is the display summary of the turn's last
	// diagnosis_update, attached to the result message.
	UpdatedDiseases []events.Disease `json:"updatedDiseases,omitempty"`

	// SuggestedActions are quick-reply options for the next user turn.
	SuggestedActions []string `json:"suggestedActions,omitempty"`
}

// MessagePatch updates selected fields of an existing message in place.
// Nil fields are left unchanged.
type MessagePatch struct {
	Content          *string
	ReportUpdated    *bool
	DiagnosisUpdated *bool
	UpdatedDiseases  []events.Disease
	SuggestedActions []string
}

// WelcomeMessage builds the static greeting shown at the start of a
// fresh conversation.
func WelcomeMessage() Message {
	return Message{
		ID:        WelcomeMessageID,
		Role:      RoleAssistant,
		Content:   welcomeText,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewUserMessage builds a user message with a fresh id and timestamp.
func NewUserMessage(content, imageURL string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
		ImageURL:  imageURL,
	}
}

// NewAssistantMessage builds an assistant message with a fresh id and
// timestamp.
func NewAssistantMessage(content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// =============================================================================
// Store
// =============================================================================

// Store is the process-wide conversation state container.
//
// Store is safe for concurrent use. Each exported operation takes the
// store lock, so reads observe either the state before or after any
// concurrent operation, never a torn intermediate.
type Store struct {
	mu sync.Mutex

	messages []Message
	symptoms []events.Symptom
	report   *events.Report
	ranked   []events.Disease

	reportUnread    bool
	diagnosisUnread bool

	selected *events.Disease
	// threads holds the private sub-conversation per condition id.
	threads map[string][]Message
}

// NewStore creates an empty state container.
func NewStore() *Store {
	return &Store{threads: make(map[string][]Message)}
}

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

// AppendMessage adds a message to the end of the history.
func (s *Store) AppendMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// PatchMessage applies a partial update to the message with the given
// id. Returns false when no message matches.
func (s *Store) PatchMessage(id string, patch MessagePatch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID != id {
			continue
		}
		if patch.Content != nil {
			s.messages[i].Content = *patch.Content
		}
		if patch.ReportUpdated != nil {
			s.messages[i].ReportUpdated = *patch.ReportUpdated
		}
		if patch.DiagnosisUpdated != nil {
			s.messages[i].DiagnosisUpdated = *patch.DiagnosisUpdated
		}
		if patch.UpdatedDiseases != nil {
			s.messages[i].UpdatedDiseases = patch.UpdatedDiseases
		}
		if patch.SuggestedActions != nil {
			s.messages[i].SuggestedActions = patch.SuggestedActions
		}
		return true
	}
	return false
}

// Messages returns a copy of the conversation history.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// HasMessages reports whether any history exists yet.
func (s *Store) HasMessages() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages) > 0
}

// LoadMessages replaces the history wholesale. Used by session recovery
// to install messages fetched from the backend.
func (s *Store) LoadMessages(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = make([]Message, len(msgs))
	copy(s.messages, msgs)
}

// EnsureWelcome prepends the static greeting when the history lacks it.
// This is the single permitted exception to append-only ordering.
func (s *Store) EnsureWelcome() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range s.messages {
		if msg.ID == WelcomeMessageID {
			return
		}
	}
	s.messages = append([]Message{WelcomeMessage()}, s.messages...)
}

// -----------------------------------------------------------------------------
// Symptoms
// -----------------------------------------------------------------------------

// UpsertSymptom inserts or replaces a symptom, matching on name
// case-insensitively. A replacement keeps the original identifier so
// UI references stay stable.
func (s *Store) UpsertSymptom(symptom events.Symptom) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.symptoms {
		if strings.EqualFold(s.symptoms[i].Name, symptom.Name) {
			symptom.ID = s.symptoms[i].ID
			s.symptoms[i] = symptom
			return
		}
	}
	s.symptoms = append(s.symptoms, symptom)
}

// Symptoms returns a copy of the collected symptoms.
func (s *Store) Symptoms() []events.Symptom {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Symptom, len(s.symptoms))
	copy(out, s.symptoms)
	return out
}

// -----------------------------------------------------------------------------
// Report and Ranked Conditions
// -----------------------------------------------------------------------------

// ReplaceReport installs a new report wholesale and flags the report
// surface unread. Fields are never merged with the previous report.
func (s *Store) ReplaceReport(report *events.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = report
	s.reportUnread = true
}

// Report returns the latest report, or nil before the first update.
func (s *Store) Report() *events.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.report
}

// ReportUnread reports whether a report update has not yet been viewed.
func (s *Store) ReportUnread() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportUnread
}

// AcknowledgeReport clears the report unread flag.
func (s *Store) AcknowledgeReport() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportUnread = false
}

// ReplaceRankedConditions installs a new ranked condition list
// wholesale, in backend order, and flags the conditions surface unread.
// Interim rankings are never merged with prior ones.
func (s *Store) ReplaceRankedConditions(list []events.Disease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranked = make([]events.Disease, len(list))
	copy(s.ranked, list)
	s.diagnosisUnread = true
}

// RankedConditions returns a copy of the latest ranking.
func (s *Store) RankedConditions() []events.Disease {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]events.Disease, len(s.ranked))
	copy(out, s.ranked)
	return out
}

// DiagnosisUnread reports whether a diagnosis update has not yet been
// viewed.
func (s *Store) DiagnosisUnread() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diagnosisUnread
}

// AcknowledgeDiagnosis clears the diagnosis unread flag.
func (s *Store) AcknowledgeDiagnosis() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnosisUnread = false
}

// ClinicalSnapshot captures report and ranking state so a turn driver
// can roll back when the backend aborts a turn with an error event.
type ClinicalSnapshot struct {
	report          *events.Report
	ranked          []events.Disease
	reportUnread    bool
	diagnosisUnread bool
}

// SnapshotClinical captures the current report/ranking state.
func (s *Store) SnapshotClinical() ClinicalSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := ClinicalSnapshot{
		report:          s.report,
		reportUnread:    s.reportUnread,
		diagnosisUnread: s.diagnosisUnread,
	}
	snap.ranked = make([]events.Disease, len(s.ranked))
	copy(snap.ranked, s.ranked)
	return snap
}

// RestoreClinical reinstates a snapshot taken before a failed turn,
// without touching unread flags beyond their snapshotted values.
func (s *Store) RestoreClinical(snap ClinicalSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = snap.report
	s.ranked = make([]events.Disease, len(snap.ranked))
	copy(s.ranked, snap.ranked)
	s.reportUnread = snap.reportUnread
	s.diagnosisUnread = snap.diagnosisUnread
}

// -----------------------------------------------------------------------------
// Condition Detail
// -----------------------------------------------------------------------------

// SelectCondition enters (or leaves, with nil) the detail view for one
// condition. Entering resets that condition's private sub-conversation.
func (s *Store) SelectCondition(d *events.Disease) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = d
	if d != nil {
		s.threads[d.ID] = nil
	}
}

// SelectedCondition returns the condition currently in detail view.
func (s *Store) SelectedCondition() *events.Disease {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// AppendConditionMessage adds a message to one condition's private
// sub-conversation.
func (s *Store) AppendConditionMessage(conditionID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[conditionID] = append(s.threads[conditionID], msg)
}

// ConditionThread returns a copy of one condition's sub-conversation.
func (s *Store) ConditionThread(conditionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	thread := s.threads[conditionID]
	out := make([]Message, len(thread))
	copy(out, thread)
	return out
}

// -----------------------------------------------------------------------------
// Reset
// -----------------------------------------------------------------------------

// Reset restores every field to its initial empty value. Used on
// explicit "new session".
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.symptoms = nil
	s.report = nil
	s.ranked = nil
	s.reportUnread = false
	s.diagnosisUnread = false
	s.selected = nil
	s.threads = make(map[string][]Message)
}
