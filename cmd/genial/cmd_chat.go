// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/genial-ai/genial-go/pkg/api"
	"github.com/genial-ai/genial-go/pkg/chat"
	"github.com/genial-ai/genial-go/pkg/events"
	"github.com/genial-ai/genial-go/pkg/session"
	"github.com/genial-ai/genial-go/pkg/state"
)

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start or resume a conversation with the assistant",
		Long: `Starts an interactive conversation. A previous conversation found on
the backend can be resumed or discarded. Inside the chat:

  /conditions      show the ranked possible conditions
  /open <n>        ask about one condition in detail
  /report          show the collected medical report
  /image <path>    attach an image to your next message
  /new             discard the conversation and start over
  /1, /2, ...      pick a suggested quick reply
  /quit            leave (the conversation stays resumable)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newChatApp(cmd.Context())
			if err != nil {
				return err
			}
			return app.run(cmd.Context())
		},
	}
}

// chatApp wires the engine for one interactive chat run.
type chatApp struct {
	out       io.Writer
	input     InputReader
	store     *state.Store
	identity  *session.Identity
	creds     *session.Credentials
	client    *api.Client
	driver    *chat.Driver
	inflight  *session.InflightRegistry
	sessionID string
	// lastReplies are the quick replies of the newest assistant
	// message, addressable as /1, /2, ...
	lastReplies []string
}

func newChatApp(ctx context.Context) (*chatApp, error) {
	creds := session.NewCredentials(logger)
	client := api.NewClient(api.Config{
		BaseURL: cfg.APIURL,
		Token:   creds.Token,
		Logger:  logger,
	})

	app := &chatApp{
		out:      os.Stdout,
		input:    NewInteractiveInputReader(),
		store:    state.NewStore(),
		identity: session.NewIdentity(logger),
		creds:    creds,
		client:   client,
		inflight: session.NewInflightRegistry(),
	}

	interactive := isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
	coordinator := session.NewCoordinator(app.identity, app.store, client, logger, interactive, nil)

	sessionID, outcome, err := coordinator.Recover(ctx)
	if errors.Is(err, api.ErrUnauthorized) {
		// Stored token went stale; sign in and try once more.
		if err := app.reauthenticate(ctx); err != nil {
			return nil, err
		}
		sessionID, outcome, err = coordinator.Recover(ctx)
	}
	if err != nil {
		return nil, err
	}
	app.sessionID = sessionID

	if outcome == session.OutcomeResumed {
		fmt.Fprintln(app.out, progressStyle.Render("Resumed your previous conversation."))
	}
	app.rebuildDriver()
	return app, nil
}

// rebuildDriver (re)creates the turn driver for the current session id.
func (app *chatApp) rebuildDriver() {
	app.driver = chat.NewDriver(chat.Config{
		Backend:     app.client,
		Store:       app.store,
		SessionID:   app.sessionID,
		Inflight:    app.inflight,
		Logger:      logger,
		TurnTimeout: cfg.TurnTimeout,
		Hooks: chat.Hooks{
			OnProgress: func(message string) {
				renderProgress(app.out, message)
			},
			OnConditionChunk: func(chunk string) {
				fmt.Fprint(app.out, chunk)
			},
		},
	})
}

func (app *chatApp) run(ctx context.Context) error {
	for _, msg := range app.store.Messages() {
		renderMessage(app.out, msg)
	}

	for {
		if p, ok := app.input.(PromptingInputReader); ok {
			p.SetPrompt("> ")
		} else {
			fmt.Fprint(app.out, "> ")
		}
		line, err := app.input.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(app.out, "\nTake care! Your conversation is saved.")
				return nil
			}
			return err
		}
		if line == "" {
			continue
		}

		done, err := app.dispatch(ctx, line)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// dispatch handles one input line. Returns done=true to leave the chat.
func (app *chatApp) dispatch(ctx context.Context, line string) (bool, error) {
	if !strings.HasPrefix(line, "/") {
		return false, app.turn(ctx, line, "")
	}

	cmd, rest, _ := strings.Cut(line[1:], " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "quit", "exit", "q":
		fmt.Fprintln(app.out, "Take care! Your conversation is saved.")
		return true, nil
	case "new":
		return false, app.startOver()
	case "conditions":
		renderConditions(app.out, app.store.RankedConditions())
		app.store.AcknowledgeDiagnosis()
		return false, nil
	case "report":
		renderReport(app.out, app.store.Report(), app.store.Symptoms())
		app.store.AcknowledgeReport()
		return false, nil
	case "open":
		return false, app.openCondition(ctx, rest)
	case "image":
		return false, app.sendImage(ctx, rest)
	case "help":
		fmt.Fprintln(app.out, "/conditions  /open <n>  /report  /image <path> [message]  /new  /quit")
		return false, nil
	default:
		// /1, /2, ... pick a quick reply from the latest answer.
		if n, err := strconv.Atoi(cmd); err == nil {
			if n >= 1 && n <= len(app.lastReplies) {
				return false, app.turn(ctx, app.lastReplies[n-1], "")
			}
			fmt.Fprintln(app.out, "No such quick reply.")
			return false, nil
		}
		fmt.Fprintf(app.out, "Unknown command %q. Try /help.\n", "/"+cmd)
		return false, nil
	}
}

// turn runs one conversational turn and renders its outcome.
func (app *chatApp) turn(ctx context.Context, text, imageBase64 string) error {
	err := app.driver.Turn(ctx, text, imageBase64)
	if errors.Is(err, api.ErrUnauthorized) {
		if err := app.reauthenticate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(app.out, "Signed in. Please resend your message.")
		return nil
	}
	if err != nil {
		return err
	}

	msgs := app.store.Messages()
	final := msgs[len(msgs)-1]
	renderMessage(app.out, final)
	app.lastReplies = final.SuggestedActions

	app.renderUnreadNotices()
	return nil
}

func (app *chatApp) renderUnreadNotices() {
	if app.store.ReportUnread() {
		fmt.Fprintln(app.out, badgeStyle.Render("  Your report changed — /report to view."))
	}
	if app.store.DiagnosisUnread() {
		fmt.Fprintln(app.out, badgeStyle.Render("  Possible conditions changed — /conditions to view."))
	}
}

// startOver discards the conversation on this client and rotates the
// session id, so the backend starts from scratch too.
func (app *chatApp) startOver() error {
	if err := app.identity.Clear(); err != nil {
		return err
	}
	sessionID, _, err := app.identity.Ensure()
	if err != nil {
		return err
	}
	app.sessionID = sessionID
	app.store.Reset()
	app.store.EnsureWelcome()
	app.lastReplies = nil
	app.rebuildDriver()

	fmt.Fprintln(app.out, "Started a new conversation.")
	renderMessage(app.out, app.store.Messages()[0])
	return nil
}

// sendImage attaches a local image file to a turn. Usage:
// /image <path> [message]
func (app *chatApp) sendImage(ctx context.Context, rest string) error {
	path, caption, _ := strings.Cut(rest, " ")
	if path == "" {
		fmt.Fprintln(app.out, "Usage: /image <path> [message]")
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(app.out, "Could not read %s: %v\n", path, err)
		return nil
	}
	caption = strings.TrimSpace(caption)
	if caption == "" {
		caption = "I've attached an image of my symptom."
	}
	return app.turn(ctx, caption, base64.StdEncoding.EncodeToString(raw))
}

// openCondition enters the detail view for one ranked condition.
func (app *chatApp) openCondition(ctx context.Context, arg string) error {
	conditions := app.store.RankedConditions()
	if len(conditions) == 0 {
		fmt.Fprintln(app.out, "No conditions to open yet.")
		return nil
	}
	index, err := strconv.Atoi(arg)
	if err != nil || index < 1 || index > len(conditions) {
		renderConditions(app.out, conditions)
		fmt.Fprintln(app.out, "Usage: /open <number>")
		return nil
	}
	condition := conditions[index-1]

	fmt.Fprintln(app.out, headingStyle.Render(condition.Name))
	if err := app.conditionCall(ctx, func() error {
		return app.driver.OpenCondition(ctx, condition)
	}); err != nil {
		return err
	}

	return app.conditionLoop(ctx, condition)
}

// conditionLoop is the sub-conversation inside one condition's detail
// view. /back returns to the main conversation.
func (app *chatApp) conditionLoop(ctx context.Context, condition events.Disease) error {
	defer app.store.SelectCondition(nil)

	for {
		if p, ok := app.input.(PromptingInputReader); ok {
			p.SetPrompt(condition.Name + "> ")
		} else {
			fmt.Fprint(app.out, condition.Name+"> ")
		}
		line, err := app.input.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch strings.TrimSpace(line) {
		case "":
			continue
		case "/back", "/b", "/quit":
			return nil
		}

		if err := app.conditionCall(ctx, func() error {
			return app.driver.AskCondition(ctx, condition, line)
		}); err != nil {
			return err
		}
	}
}

// conditionCall runs one condition-detail request. The answer streams
// through OnConditionChunk; the trailing newline closes it off.
func (app *chatApp) conditionCall(ctx context.Context, call func() error) error {
	err := call()
	if errors.Is(err, api.ErrUnauthorized) {
		if err := app.reauthenticate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(app.out, "Signed in. Please ask again.")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(app.out)
	return nil
}

// reauthenticate purges the stale credential and runs the login flow.
func (app *chatApp) reauthenticate(ctx context.Context) error {
	if err := app.creds.Purge(); err != nil {
		logger.Warn("purging stale credential failed", "error", err)
	}
	return promptAndLogin(ctx, app.client, app.creds, app.out)
}
