package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// StatusRenderer draws a single updating status line on a terminal,
// rewriting it in place with carriage returns.
type StatusRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	styles  Styles
	lastLen int
	errors  []ErrorEvent
	stopped bool
}

// NewStatusRenderer creates a terminal status-line renderer.
func NewStatusRenderer(cfg Config) *StatusRenderer {
	styles := DefaultStyles()
	if cfg.NoColor {
		styles = NoColorStyles()
	}
	return &StatusRenderer{
		out:    cfg.Output,
		styles: styles,
	}
}

// Start implements Renderer.
func (r *StatusRenderer) Start(ctx context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *StatusRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	stage := r.styles.Stage.Render(fmt.Sprintf("[%s]", event.Stage.Icon()))

	var detail string
	switch {
	case event.Total > 0 && event.CurrentFile != "":
		detail = fmt.Sprintf("%d/%d %s", event.Current, event.Total, event.CurrentFile)
	case event.Total > 0:
		detail = fmt.Sprintf("%d/%d", event.Current, event.Total)
	case event.Message != "":
		detail = event.Message
	case event.CurrentFile != "":
		detail = event.CurrentFile
	}

	r.rewriteLine(stage + " " + r.styles.Label.Render(detail))
}

// AddError implements Renderer. Errors break out of the status line so
// they stay visible.
func (r *StatusRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	style := r.styles.Error
	prefix := "ERROR"
	if event.IsWarn {
		style = r.styles.Warning
		prefix = "WARN"
	}

	r.clearLine()
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s %s: %v\n", style.Render(prefix), event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s %v\n", style.Render(prefix), event.Err)
	}
}

// Complete implements Renderer.
func (r *StatusRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clearLine()

	if stats.Failed {
		headline := fmt.Sprintf("Aborted: %d files scanned, %d records upserted to %q in %s",
			stats.Files, stats.Records, stats.Collection, stats.Duration.Round(100*time.Millisecond))
		_, _ = fmt.Fprintln(r.out, r.styles.Error.Render(headline))
	} else {
		headline := fmt.Sprintf("Indexed %d files into %q (%d records) in %s",
			stats.Files, stats.Collection, stats.Records, stats.Duration.Round(100*time.Millisecond))
		_, _ = fmt.Fprintln(r.out, r.styles.Header.Render(headline))
	}

	if stats.Skipped > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Label.Render(fmt.Sprintf("  skipped   %d files", stats.Skipped)))
	}
	_, _ = fmt.Fprintln(r.out, r.styles.Label.Render(fmt.Sprintf("  chunks    %d", stats.Chunks)))
	if stats.Embedder.Model != "" {
		_, _ = fmt.Fprintln(r.out, r.styles.Label.Render(fmt.Sprintf("  embedder  %s (%d dims)",
			stats.Embedder.Model, stats.Embedder.Dimensions)))
	}
	if stats.Stages.Embed > 0 && stats.Chunks > 0 {
		chunksPerSec := float64(stats.Chunks) / stats.Stages.Embed.Seconds()
		_, _ = fmt.Fprintln(r.out, r.styles.Label.Render(fmt.Sprintf("  embed     %s (%.1f chunks/sec)",
			stats.Stages.Embed.Round(100*time.Millisecond), chunksPerSec)))
	}

	if stats.Warnings > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Warning.Render(fmt.Sprintf("  %d warnings", stats.Warnings)))
	}
	if stats.Errors > 0 {
		_, _ = fmt.Fprintln(r.out, r.styles.Error.Render(fmt.Sprintf("  %d errors", stats.Errors)))
	}
}

// Stop implements Renderer.
func (r *StatusRenderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	r.clearLine()
	return nil
}

// rewriteLine redraws the status line in place.
func (r *StatusRenderer) rewriteLine(line string) {
	pad := ""
	if n := r.lastLen - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	_, _ = fmt.Fprintf(r.out, "\r%s%s", line, pad)
	r.lastLen = len(line)
}

// clearLine erases the status line before printing full lines.
func (r *StatusRenderer) clearLine() {
	if r.lastLen == 0 {
		return
	}
	_, _ = fmt.Fprintf(r.out, "\r%s\r", strings.Repeat(" ", r.lastLen))
	r.lastLen = 0
}
