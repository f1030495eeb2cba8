// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/genial-ai/genial-go/pkg/events"
	"github.com/genial-ai/genial-go/pkg/state"
)

var (
	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	assistantStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true)

	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Italic(true)

	badgeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	headingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13")).
			Bold(true).
			Underline(true)

	likelihoodStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	quickReplyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6"))
)

// renderMessage prints one history entry.
func renderMessage(w io.Writer, msg state.Message) {
	label := assistantStyle.Render("Genial")
	if msg.Role == state.RoleUser {
		label = userStyle.Render("You")
	}
	fmt.Fprintf(w, "%s: %s\n", label, msg.Content)
	if msg.ImageURL != "" {
		fmt.Fprintf(w, "  %s\n", progressStyle.Render(msg.ImageURL))
	}

	var badges []string
	if msg.ReportUpdated {
		badges = append(badges, "report updated")
	}
	if msg.DiagnosisUpdated {
		badges = append(badges, "conditions updated")
	}
	if len(badges) > 0 {
		fmt.Fprintf(w, "  %s\n", badgeStyle.Render("["+strings.Join(badges, ", ")+"]"))
	}
	if len(msg.SuggestedActions) > 0 {
		fmt.Fprintf(w, "  %s\n", quickReplyStyle.Render(renderQuickReplies(msg.SuggestedActions)))
	}
}

// renderQuickReplies formats suggested actions as numbered choices the
// user can pick with /1, /2, ...
func renderQuickReplies(actions []string) string {
	parts := make([]string, 0, len(actions))
	for i, action := range actions {
		parts = append(parts, fmt.Sprintf("/%d %s", i+1, action))
	}
	return "Quick replies: " + strings.Join(parts, "  ")
}

// renderProgress prints a transient status line.
func renderProgress(w io.Writer, message string) {
	fmt.Fprintf(w, "  %s\n", progressStyle.Render(message))
}

// renderConditions prints the ranked condition list in backend order.
func renderConditions(w io.Writer, conditions []events.Disease) {
	if len(conditions) == 0 {
		fmt.Fprintln(w, "No possible conditions identified yet. Keep describing your symptoms.")
		return
	}
	fmt.Fprintln(w, headingStyle.Render("Possible conditions"))
	for i, c := range conditions {
		fmt.Fprintf(w, "%2d. %s %s\n", i+1, c.Name,
			likelihoodStyle.Render(fmt.Sprintf("(%.0f%%)", c.Likelihood)))
		if c.Reason != "" {
			fmt.Fprintf(w, "    %s\n", c.Reason)
		}
	}
	fmt.Fprintln(w, progressStyle.Render("These are informational matches, not a diagnosis."))
}

// renderReport prints the structured report.
func renderReport(w io.Writer, report *events.Report, symptoms []events.Symptom) {
	if report == nil && len(symptoms) == 0 {
		fmt.Fprintln(w, "No report yet. Tell the assistant about your symptoms first.")
		return
	}
	fmt.Fprintln(w, headingStyle.Render("Medical report"))
	if report != nil {
		if report.Summary != "" {
			fmt.Fprintf(w, "%s\n\n", report.Summary)
		}
		for _, title := range sortedKeys(report.Evidences) {
			fmt.Fprintf(w, "  - %s: %s\n", title, report.Evidences[title])
		}
		for _, title := range sortedKeys(report.ImagesAnalyses) {
			fmt.Fprintf(w, "  - %s (image): %s\n", title, report.ImagesAnalyses[title])
		}
	}
	if len(symptoms) > 0 {
		fmt.Fprintln(w, headingStyle.Render("Reported symptoms"))
		for _, s := range symptoms {
			line := fmt.Sprintf("  - %s (%s, %s)", s.Name, s.Severity, s.Duration)
			if s.Notes != "" {
				line += " — " + s.Notes
			}
			fmt.Fprintln(w, line)
		}
	}
}

// reportMarkdown renders a generated report as a portable Markdown
// document.
func reportMarkdown(report *GeneratedReportView) string {
	var b strings.Builder
	b.WriteString("# Genial Medical Report\n\n")
	b.WriteString("> Generated by the Genial assistant. Informational only — not a diagnosis.\n\n")

	b.WriteString("## Summary for you\n\n")
	b.WriteString(report.PatientSummary + "\n\n")

	b.WriteString("## Summary for your clinician\n\n")
	b.WriteString(report.ClinicalSummary + "\n\n")

	if len(report.Evidences) > 0 {
		b.WriteString("## Findings\n\n")
		for _, title := range sortedKeys(report.Evidences) {
			b.WriteString(fmt.Sprintf("- **%s**: %s\n", title, report.Evidences[title]))
		}
		b.WriteString("\n")
	}

	if len(report.Ranked) > 0 {
		b.WriteString("## Possible conditions\n\n")
		for i, c := range report.Ranked {
			b.WriteString(fmt.Sprintf("%d. **%s** (%.0f%%) — %s\n", i+1, c.Name, c.Likelihood, c.Reason))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GeneratedReportView is the renderable subset of a generated report.
type GeneratedReportView struct {
	PatientSummary  string
	ClinicalSummary string
	Evidences       map[string]string
	Ranked          []events.Disease
}
