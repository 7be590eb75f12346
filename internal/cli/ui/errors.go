package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level is the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
)

// Problem is a multi-line message with optional suggestions and hints
//
// Example output:
//
//	❌ ENTITY NOT FOUND: Custmer
//	   Did you mean: Customer?
//
//	   → List entities: tuplizer inspect
type Problem struct {
	Level       Level
	Context     string
	Message     string
	Details     []string
	Suggestions []string
	Hints       []string
}

// Format renders the problem
func (p Problem) Format(noColor bool) string {
	var b strings.Builder

	header := color.New(color.FgRed, color.Bold)
	body := color.New(color.FgRed)
	symbol := "❌"
	if p.Level == LevelWarning {
		header = color.New(color.FgYellow, color.Bold)
		body = color.New(color.FgYellow)
		symbol = "⚠️"
	}
	hint := color.New(color.FgCyan)
	if noColor {
		header.DisableColor()
		body.DisableColor()
		hint.DisableColor()
	}

	if p.Context != "" {
		header.Fprintf(&b, "%s %s: %s\n", symbol, strings.ToUpper(p.Context), p.Message)
	} else {
		header.Fprintf(&b, "%s %s\n", symbol, p.Message)
	}
	for _, d := range p.Details {
		body.Fprintf(&b, "   %s\n", d)
	}
	if len(p.Suggestions) > 0 {
		body.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(p.Suggestions, ", "))
	}
	if len(p.Hints) > 0 {
		b.WriteString("\n")
		for _, h := range p.Hints {
			hint.Fprintf(&b, "   → %s\n", h)
		}
	}
	return b.String()
}

// Write renders the problem to w
func (p Problem) Write(w io.Writer, noColor bool) {
	fmt.Fprint(w, p.Format(noColor))
}

// WriteSuccess writes a success line
func WriteSuccess(w io.Writer, message string, noColor bool) {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	green.Fprintf(w, "✓ %s\n", message)
}
