// Package ui provides terminal progress and summary display for
// indexing runs.
package ui

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Stage represents a pipeline stage.
type Stage int

const (
	// StageScanning is the file discovery stage.
	StageScanning Stage = iota
	// StageChunking is the document splitting stage.
	StageChunking
	// StageEmbedding is the embedding generation stage.
	StageEmbedding
	// StageUpserting is the vector store write stage.
	StageUpserting
	// StageComplete indicates the run is complete.
	StageComplete
)

// String returns the human-readable stage name.
func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "Scanning"
	case StageChunking:
		return "Chunking"
	case StageEmbedding:
		return "Embedding"
	case StageUpserting:
		return "Upserting"
	case StageComplete:
		return "Complete"
	default:
		return "Unknown"
	}
}

// Icon returns the short stage icon for plain text output.
func (s Stage) Icon() string {
	switch s {
	case StageScanning:
		return "SCAN"
	case StageChunking:
		return "CHUNK"
	case StageEmbedding:
		return "EMBED"
	case StageUpserting:
		return "UPSERT"
	case StageComplete:
		return "DONE"
	default:
		return "???"
	}
}

// ProgressEvent represents a progress update.
type ProgressEvent struct {
	Stage       Stage
	Current     int
	Total       int
	CurrentFile string
	Message     string
}

// ErrorEvent represents an error during processing.
type ErrorEvent struct {
	File   string
	Err    error
	IsWarn bool
}

// StageTimings tracks duration for each pipeline stage.
type StageTimings struct {
	Scan   time.Duration
	Chunk  time.Duration
	Embed  time.Duration
	Upsert time.Duration
}

// EmbedderInfo describes the embedding backend used for the run.
type EmbedderInfo struct {
	Model      string
	Dimensions int
}

// CompletionStats contains final run statistics. Failed marks a run
// that aborted partway; the counts then describe partial progress.
type CompletionStats struct {
	Failed     bool
	Files      int
	Skipped    int
	Chunks     int
	Records    int
	Collection string
	Duration   time.Duration
	Errors     int
	Warnings   int
	Stages     StageTimings
	Embedder   EmbedderInfo
}

// Renderer defines the interface for progress display.
type Renderer interface {
	// Start initializes the renderer.
	Start(ctx context.Context) error

	// UpdateProgress updates progress display.
	UpdateProgress(event ProgressEvent)

	// AddError adds an error to display.
	AddError(event ErrorEvent)

	// Complete marks rendering as complete with summary.
	Complete(stats CompletionStats)

	// Stop stops the renderer and cleans up.
	Stop() error
}

// Config configures the UI renderer.
type Config struct {
	Output     io.Writer
	ForcePlain bool
	NoColor    bool
}

// NewRenderer picks a renderer for the environment: a line-updating
// display on a terminal, plain line output for CI and pipes.
func NewRenderer(cfg Config) Renderer {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}

	if cfg.ForcePlain || !isTerminal(cfg.Output) {
		return NewPlainRenderer(cfg)
	}
	return NewStatusRenderer(cfg)
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
