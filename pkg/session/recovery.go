// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/genial-ai/genial-go/pkg/api"
	"github.com/genial-ai/genial-go/pkg/logging"
	"github.com/genial-ai/genial-go/pkg/state"
)

// Outcome reports how startup recovery resolved.
type Outcome int

const (
	// OutcomeFresh means the conversation starts empty with the welcome
	// greeting.
	OutcomeFresh Outcome = iota
	// OutcomeResumed means a prior conversation was restored from the
	// backend.
	OutcomeResumed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFresh:
		return "fresh"
	case OutcomeResumed:
		return "resumed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Fetcher retrieves the server-side conversation for a session id.
// *api.Client satisfies this.
type Fetcher interface {
	FetchSession(ctx context.Context, sessionID string) (*api.Session, error)
}

// ResumeDecider asks whether to resume a found conversation of the
// given length. The default implementation prompts interactively.
type ResumeDecider func(messageCount int) (bool, error)

// Coordinator drives startup recovery: it ensures a session id exists,
// probes the backend for prior history, and either restores it into the
// store or starts fresh.
type Coordinator struct {
	identity *Identity
	store    *state.Store
	fetcher  Fetcher
	logger   *logging.Logger

	// interactive gates the resume prompt. Non-interactive runs resume
	// automatically, since there is nobody to ask.
	interactive bool
	decide      ResumeDecider
}

// NewCoordinator wires a recovery coordinator. decide may be nil, in
// which case an interactive terminal prompt is used.
func NewCoordinator(identity *Identity, store *state.Store, fetcher Fetcher, logger *logging.Logger, interactive bool, decide ResumeDecider) *Coordinator {
	if logger == nil {
		logger = logging.Nop()
	}
	if decide == nil {
		decide = promptResume
	}
	return &Coordinator{
		identity:    identity,
		store:       store,
		fetcher:     fetcher,
		logger:      logger,
		interactive: interactive,
		decide:      decide,
	}
}

// Recover resolves the startup state and returns the active session id.
//
// A freshly generated id, an empty server history, or an unreachable
// backend all resolve to a fresh conversation; only an authentication
// failure propagates, so the caller can route the user to login. When
// history exists and the run is interactive, the user chooses; choosing
// fresh discards the old id and generates a new one.
func (c *Coordinator) Recover(ctx context.Context) (string, Outcome, error) {
	sessionID, created, err := c.identity.Ensure()
	if err != nil {
		return "", OutcomeFresh, err
	}
	if created {
		c.startFresh()
		return sessionID, OutcomeFresh, nil
	}

	snapshot, err := c.fetcher.FetchSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, api.ErrUnauthorized) {
			return "", OutcomeFresh, err
		}
		// A dead backend must not strand the user at startup.
		c.logger.Warn("session recovery fetch failed, starting fresh", "error", err)
		c.startFresh()
		return sessionID, OutcomeFresh, nil
	}

	if snapshot == nil || len(snapshot.Messages) == 0 {
		c.startFresh()
		return sessionID, OutcomeFresh, nil
	}

	resume := true
	if c.interactive {
		resume, err = c.decide(len(snapshot.Messages))
		if err != nil {
			return "", OutcomeFresh, fmt.Errorf("resume prompt: %w", err)
		}
	}

	if !resume {
		if err := c.identity.Clear(); err != nil {
			return "", OutcomeFresh, err
		}
		sessionID, _, err = c.identity.Ensure()
		if err != nil {
			return "", OutcomeFresh, err
		}
		c.startFresh()
		return sessionID, OutcomeFresh, nil
	}

	c.restore(snapshot)
	c.logger.Info("resumed previous conversation",
		"messages", len(snapshot.Messages))
	return sessionID, OutcomeResumed, nil
}

func (c *Coordinator) startFresh() {
	c.store.Reset()
	c.store.EnsureWelcome()
}

// restore installs a fetched snapshot. Restored report and ranking are
// acknowledged immediately: they are history, not news.
func (c *Coordinator) restore(snapshot *api.Session) {
	c.store.LoadMessages(snapshot.Messages)
	c.store.EnsureWelcome()
	if snapshot.Report != nil {
		c.store.ReplaceReport(snapshot.Report)
		c.store.AcknowledgeReport()
	}
	if len(snapshot.Ranked) > 0 {
		c.store.ReplaceRankedConditions(snapshot.Ranked)
		c.store.AcknowledgeDiagnosis()
	}
}

func promptResume(messageCount int) (bool, error) {
	resume := true
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[bool]().
			Title(fmt.Sprintf("Found a previous conversation (%d messages).", messageCount)).
			Options(
				huh.NewOption("Resume it", true),
				huh.NewOption("Start fresh", false),
			).
			Value(&resume),
	))
	if err := form.Run(); err != nil {
		return false, err
	}
	return resume, nil
}
