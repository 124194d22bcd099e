package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message block.
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// Message is a multi-line diagnostic with optional suggestions and hints.
type Message struct {
	Level       Level
	Context     string
	Problem     string
	Detail      string
	Suggestions []string
	Hints       []string
	NoColor     bool
}

// Format renders m.
//
// Example output:
//
//	✗ DEFINITION NOT FOUND: PostAPI
//
//	   Did you mean: PostsAPI?
//
//	   → List definitions: restdecl inspect
func (m Message) Format() string {
	var b strings.Builder

	header, body := m.colors()
	symbol := [...]string{LevelError: "✗", LevelWarning: "!", LevelInfo: "i"}[m.Level]

	if m.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(m.Context), m.Problem)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, m.Problem)
	}

	if m.Detail != "" {
		b.WriteString("\n")
		for _, line := range strings.Split(strings.TrimRight(m.Detail, "\n"), "\n") {
			body.Fprintf(&b, "   %s\n", line)
		}
	}

	if len(m.Suggestions) > 0 {
		b.WriteString("\n")
		paint(m.NoColor, color.FgYellow).Fprintf(&b, "   Did you mean: %s?\n", strings.Join(m.Suggestions, ", "))
	}

	if len(m.Hints) > 0 {
		b.WriteString("\n")
		cyan := paint(m.NoColor, color.FgCyan)
		for _, hint := range m.Hints {
			cyan.Fprintf(&b, "   → %s\n", hint)
		}
	}

	return b.String()
}

func (m Message) colors() (header, body *color.Color) {
	fg := color.FgRed
	switch m.Level {
	case LevelWarning:
		fg = color.FgYellow
	case LevelInfo:
		fg = color.FgCyan
	}
	return paint(m.NoColor, fg, color.Bold), paint(m.NoColor, fg)
}

// Write renders m to w.
func (m Message) Write(w io.Writer) {
	fmt.Fprint(w, m.Format())
}

// Success renders a one-line success message.
func Success(message string, noColor bool) string {
	return paint(noColor, color.FgGreen, color.Bold).Sprintf("✓ %s", message)
}

// DefinitionNotFound reports an unknown REST definition.
func DefinitionNotFound(name string, suggestions []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     "definition not found",
		Problem:     name,
		Suggestions: suggestions,
		Hints: []string{
			"List definitions: restdecl inspect",
		},
		NoColor: noColor,
	}
}

// OperationNotFound reports an unknown demo operation.
func OperationNotFound(name string, suggestions []string, noColor bool) Message {
	return Message{
		Level:       LevelError,
		Context:     "unknown operation",
		Problem:     name,
		Suggestions: suggestions,
		Hints: []string{
			"See operations: restdecl call --help",
		},
		NoColor: noColor,
	}
}

// RequestFailed reports a failed REST call. kind is the error category
// (configuration, assembly or transport).
func RequestFailed(op, kind string, err error, noColor bool) Message {
	m := Message{
		Level:   LevelError,
		Context: kind + " error",
		Problem: op,
		Detail:  err.Error(),
		NoColor: noColor,
	}
	if kind == "configuration" {
		m.Hints = []string{
			"Check base_urls in restdecl.yml or pass --base-url",
		}
	}
	return m
}

// ConfigError reports an invalid configuration file.
func ConfigError(err error, noColor bool) Message {
	return Message{
		Level:   LevelError,
		Context: "configuration error",
		Problem: err.Error(),
		Hints: []string{
			"View config: cat restdecl.yml",
			"Get help: restdecl --help",
		},
		NoColor: noColor,
	}
}
