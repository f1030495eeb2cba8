// Copyright (C) 2025 Genial AI (dev@genial.health)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// =============================================================================
// InputReader Interface
// =============================================================================

// InputReader abstracts user input so the chat loop can be driven by a
// terminal, a pipe, or a test script.
//
// ReadLine blocks until a full line is available and returns it
// trimmed. io.EOF means the input source is exhausted.
type InputReader interface {
	ReadLine() (string, error)
}

// PromptingInputReader is implemented by readers that render their own
// prompt. The chat loop checks for it to avoid double-prompting.
type PromptingInputReader interface {
	InputReader
	SetPrompt(prompt string)
}

// =============================================================================
// StdinReader
// =============================================================================

// StdinReader reads newline-terminated input from stdin. Used for
// piped input and CI runs; no history, no line editing.
type StdinReader struct {
	reader *bufio.Reader
}

// NewStdinReader wraps os.Stdin.
func NewStdinReader() *StdinReader {
	return &StdinReader{reader: bufio.NewReader(os.Stdin)}
}

func (r *StdinReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && strings.TrimSpace(line) != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// =============================================================================
// InteractiveInputReader
// =============================================================================

const maxInputHistory = 50

// InteractiveInputReader provides line editing and up-arrow history via
// bubbletea. Not safe for concurrent use; one reader per terminal.
type InteractiveInputReader struct {
	history []string
	prompt  string
}

// NewInteractiveInputReader returns a history-capable reader on a TTY
// and falls back to StdinReader when stdin is piped.
func NewInteractiveInputReader() InputReader {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return NewStdinReader()
	}
	return &InteractiveInputReader{}
}

// SetPrompt sets the prompt rendered by the input component.
func (r *InteractiveInputReader) SetPrompt(prompt string) {
	r.prompt = prompt
}

func (r *InteractiveInputReader) ReadLine() (string, error) {
	ti := textinput.New()
	ti.Prompt = r.prompt
	ti.Focus()
	ti.CharLimit = 4096

	model := inputModel{
		textInput: ti,
		history:   r.history,
		histIndex: len(r.history),
	}

	p := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return "", err
	}

	m := final.(inputModel)
	if m.aborted {
		return "", io.EOF
	}
	line := strings.TrimSpace(m.textInput.Value())
	if line != "" {
		r.addToHistory(line)
	}
	return line, nil
}

func (r *InteractiveInputReader) addToHistory(input string) {
	if len(r.history) > 0 && r.history[len(r.history)-1] == input {
		return
	}
	r.history = append(r.history, input)
	if len(r.history) > maxInputHistory {
		r.history = r.history[len(r.history)-maxInputHistory:]
	}
}

// inputModel is the bubbletea model behind one ReadLine call.
type inputModel struct {
	textInput textinput.Model
	history   []string
	histIndex int
	// draft preserves partially typed input while browsing history.
	draft   string
	aborted bool
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyUp:
			if m.histIndex > 0 {
				if m.histIndex == len(m.history) {
					m.draft = m.textInput.Value()
				}
				m.histIndex--
				m.textInput.SetValue(m.history[m.histIndex])
				m.textInput.CursorEnd()
			}
			return m, nil
		case tea.KeyDown:
			if m.histIndex < len(m.history) {
				m.histIndex++
				if m.histIndex == len(m.history) {
					m.textInput.SetValue(m.draft)
				} else {
					m.textInput.SetValue(m.history[m.histIndex])
				}
				m.textInput.CursorEnd()
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	return m.textInput.View()
}

// =============================================================================
// MockInputReader
// =============================================================================

// MockInputReader returns scripted lines, then io.EOF. Test-only.
type MockInputReader struct {
	lines []string
	pos   int
}

// NewMockInputReader scripts the given lines.
func NewMockInputReader(lines ...string) *MockInputReader {
	return &MockInputReader{lines: lines}
}

func (r *MockInputReader) ReadLine() (string, error) {
	if r.pos >= len(r.lines) {
		return "", io.EOF
	}
	line := r.lines[r.pos]
	r.pos++
	return strings.TrimSpace(line), nil
}
