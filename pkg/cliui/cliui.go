// Package cliui provides reusable terminal UI helpers (styles, step
// indicators, markdown rendering) for parley CLI commands.
package cliui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	SuccessMark  = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	StepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))

	HeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252")).Bold(true)
	RankStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	ScoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	KeyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	WarnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Step prints an animated spinner while fn runs, then replaces it with
// a ✓ or ✗ checkmark and elapsed time. When w is not a terminal only the
// final line is written.
func Step(w io.Writer, msg string, fn func() error) error {
	if f, ok := w.(*os.File); !ok || !IsTerminal(f) {
		start := time.Now()
		err := fn()
		writeStepResult(w, msg, err, time.Since(start), "")
		return err
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	var mu sync.Mutex

	go func() {
		defer close(stopped)
		frame := 0
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for {
			mu.Lock()
			fmt.Fprintf(w, "\r  %s %s",
				spinnerStyle.Render(spinnerFrames[frame%len(spinnerFrames)]),
				msg,
			)
			mu.Unlock()

			select {
			case <-done:
				return
			case <-ticker.C:
				frame++
			}
		}
	}()

	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	close(done)
	<-stopped

	writeStepResult(w, msg, err, elapsed, "\r")

	return err
}

func writeStepResult(w io.Writer, msg string, err error, elapsed time.Duration, prefix string) {
	fmt.Fprintf(w, "%s  %s %s %s\n",
		prefix,
		Mark(err),
		msg,
		StepStyle.Render(fmt.Sprintf("(%s)", FormatDuration(elapsed))),
	)
}

// KeyValue is one row printed by KeyValues.
type KeyValue struct {
	Key   string
	Value string
}

// KeyValues prints rows as an aligned, styled key/value block.
func KeyValues(w io.Writer, rows []KeyValue) {
	width := 0
	for _, row := range rows {
		width = max(width, lipgloss.Width(row.Key))
	}
	for _, row := range rows {
		pad := strings.Repeat(" ", width-lipgloss.Width(row.Key))
		fmt.Fprintf(w, "  %s%s %s\n", KeyStyle.Render(row.Key), pad, ValueStyle.Render(row.Value))
	}
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// RenderMarkdown renders markdown content for terminal display using glamour.
// On error the content is returned unchanged alongside the error.
func RenderMarkdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return content, err
	}

	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}

	return rendered, nil
}
