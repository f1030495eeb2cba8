// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

/*
Package api is the HTTP client for the Genial backend.

Every response except the two streaming endpoints arrives in a uniform
envelope:

	{"success": true, "data": {...}, "error": null}

The client unwraps the envelope, maps HTTP 401 from any endpoint to
ErrUnauthorized, and converts wire shapes into the domain types of
pkg/events and pkg/state. The two streaming endpoints (Chat and
DiseaseChat) hand the raw response body to the caller, who owns closing
it; decoding belongs to pkg/events.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/genial-ai/genial-go/pkg/events"
	"github.com/genial-ai/genial-go/pkg/logging"
	"github.com/genial-ai/genial-go/pkg/state"
)

// ErrUnauthorized is returned whenever the backend rejects the bearer
// token, regardless of endpoint. Callers purge the stored credential
// and route the user back to login.
var ErrUnauthorized = errors.New("authentication required")

// TokenSource supplies the bearer token per request. A nil source or an
// empty token sends the request unauthenticated.
type TokenSource func() (string, error)

// =============================================================================
// Client
// =============================================================================

// Config carries Client construction parameters.
type Config struct {
	// BaseURL is the backend root, e.g. "http://localhost:8000".
	BaseURL string
	// HTTPClient overrides the transport. The default has no client
	// timeout; per-call deadlines come from the context, which keeps
	// long-lived streams usable.
	HTTPClient *http.Client
	// Token supplies the bearer token. May be nil.
	Token TokenSource
	// Logger may be nil.
	Logger *logging.Logger
}

// Client talks to the Genial backend. Safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	token   TokenSource
	logger  *logging.Logger
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		token:   cfg.Token,
		logger:  logger,
	}
}

// =============================================================================
// Wire Types
// =============================================================================

type wireMessage struct {
	ID        string  `json:"id"`
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
	ImageURL  string  `json:"imageUrl"`
}

// wireReport is the structured report as the backend stores it; the
// ranked conditions ride along in most_likely_disease.
type wireReport struct {
	Evidences         map[string]string `json:"evidences"`
	Images            map[string]string `json:"images"`
	ImagesAnalyses    map[string]string `json:"images_analyses"`
	Summary           string            `json:"summary"`
	MostLikelyDisease []events.Disease  `json:"most_likely_disease"`
}

func (w *wireReport) toDomain() (*events.Report, []events.Disease) {
	if w == nil {
		return nil, nil
	}
	report := &events.Report{
		Evidences:      w.Evidences,
		Images:         w.Images,
		ImagesAnalyses: w.ImagesAnalyses,
		Summary:        w.Summary,
	}
	return report, w.MostLikelyDisease
}

// AuthResult is the outcome of a login or identity check.
type AuthResult struct {
	Username    string
	Message     string
	AccessToken string
}

// Session is the server-side conversation snapshot used for recovery.
type Session struct {
	Messages []state.Message
	Report   *events.Report
	Ranked   []events.Disease
}

// GeneratedReport is the rendered medical report: two narrative
// summaries plus the structured data they were generated from.
type GeneratedReport struct {
	PatientSummary  string
	ClinicalSummary string
	Data            events.Report
	Ranked          []events.Disease
	ImagesBase64    map[string]string
}

// DiseaseChatRequest asks a question about one ranked condition, with
// enough context for the backend to answer without session state.
type DiseaseChatRequest struct {
	Message   string
	Disease   events.Disease
	Evidences map[string]string
	History   []state.Message
}

// =============================================================================
// Auth
// =============================================================================

// Login exchanges credentials for a bearer token. The caller stores the
// token; the client never persists it.
func (c *Client) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	body := map[string]string{"username": username, "password": password}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/login", body, "")
	if err != nil {
		return nil, err
	}

	var data struct {
		Username    string `json:"username"`
		Message     string `json:"message"`
		AccessToken string `json:"access_token"`
	}
	if err := c.doEnvelope(req, &data); err != nil {
		return nil, err
	}
	return &AuthResult{Username: data.Username, Message: data.Message, AccessToken: data.AccessToken}, nil
}

// Logout tells the backend the session is over. Token invalidation is
// client-side; this is a courtesy call and its failure is non-fatal.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/auth/logout", map[string]string{}, "")
	if err != nil {
		return err
	}
	var data struct {
		Message string `json:"message"`
	}
	return c.doEnvelope(req, &data)
}

// Me returns the username the current token belongs to.
func (c *Client) Me(ctx context.Context) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/auth/me", nil, "")
	if err != nil {
		return "", err
	}
	var data struct {
		Username string `json:"username"`
	}
	if err := c.doEnvelope(req, &data); err != nil {
		return "", err
	}
	return data.Username, nil
}

// =============================================================================
// Session
// =============================================================================

// FetchSession retrieves the conversation stored under sessionID.
func (c *Client) FetchSession(ctx context.Context, sessionID string) (*Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/session", nil, sessionID)
	if err != nil {
		return nil, err
	}

	var data struct {
		Messages      []wireMessage `json:"messages"`
		MedicalReport *wireReport   `json:"medicalReport"`
	}
	if err := c.doEnvelope(req, &data); err != nil {
		return nil, err
	}

	session := &Session{Messages: make([]state.Message, 0, len(data.Messages))}
	for _, m := range data.Messages {
		session.Messages = append(session.Messages, state.Message{
			ID:        m.ID,
			Role:      state.Role(m.Role),
			Content:   m.Content,
			Timestamp: int64(m.Timestamp),
			ImageURL:  m.ImageURL,
		})
	}
	session.Report, session.Ranked = data.MedicalReport.toDomain()
	return session, nil
}

// =============================================================================
// Streaming
// =============================================================================

// Chat submits one conversational turn and returns the event stream.
// The caller must close the returned body on every exit path.
func (c *Client) Chat(ctx context.Context, sessionID, message, imageBase64 string) (io.ReadCloser, error) {
	body := map[string]any{"message": message}
	if imageBase64 != "" {
		body["imageBase64"] = imageBase64
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", body, sessionID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	return c.doStream(req)
}

// DiseaseChat asks a question about one condition and returns the
// content-chunk stream. The caller must close the returned body.
func (c *Client) DiseaseChat(ctx context.Context, sessionID string, dcr DiseaseChatRequest) (io.ReadCloser, error) {
	history := make([]wireMessage, 0, len(dcr.History))
	for _, m := range dcr.History {
		history = append(history, wireMessage{
			ID:        m.ID,
			Role:      string(m.Role),
			Content:   m.Content,
			Timestamp: float64(m.Timestamp),
			ImageURL:  m.ImageURL,
		})
	}
	body := map[string]any{
		"message":             dcr.Message,
		"disease":             dcr.Disease,
		"evidences":           dcr.Evidences,
		"conversationHistory": history,
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/disease-chat", body, sessionID)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	return c.doStream(req)
}

// =============================================================================
// Report
// =============================================================================

// GenerateReport renders the full medical report for the session.
func (c *Client) GenerateReport(ctx context.Context, sessionID string) (*GeneratedReport, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/report/generate", nil, sessionID)
	if err != nil {
		return nil, err
	}

	var data struct {
		Content struct {
			PatientSummary  string `json:"patient_summary"`
			ClinicalSummary string `json:"clinical_summary"`
		} `json:"content"`
		StructuredData *wireReport       `json:"structured_data"`
		ImagesBase64   map[string]string `json:"images_base64"`
	}
	if err := c.doEnvelope(req, &data); err != nil {
		return nil, err
	}

	out := &GeneratedReport{
		PatientSummary:  data.Content.PatientSummary,
		ClinicalSummary: data.Content.ClinicalSummary,
		ImagesBase64:    data.ImagesBase64,
	}
	if report, ranked := data.StructuredData.toDomain(); report != nil {
		out.Data = *report
		out.Ranked = ranked
	}
	return out, nil
}

// =============================================================================
// Internals
// =============================================================================

func (c *Client) newRequest(ctx context.Context, method, path string, body any, sessionID string) (*http.Request, error) {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sessionID != "" {
		req.Header.Set("X-Session-Id", sessionID)
	}
	if c.token != nil {
		token, err := c.token()
		if err == nil && token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

// doEnvelope executes req and decodes the standard response envelope
// into data.
func (c *Client) doEnvelope(req *http.Request, data any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive
		resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", req.Method, req.URL.Path, err)
	}
	if !env.Success {
		if env.Error == "" {
			env.Error = "request failed"
		}
		return fmt.Errorf("%s %s: %s", req.Method, req.URL.Path, env.Error)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			return fmt.Errorf("%s %s: decoding payload: %w", req.Method, req.URL.Path, err)
		}
	}
	return nil
}

// doStream executes req and hands the body to the caller unconsumed.
func (c *Client) doStream(req *http.Request) (io.ReadCloser, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
		return nil, fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	return resp.Body, nil
}
