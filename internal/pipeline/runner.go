// Package pipeline wires the loader, chunker, embedder and vector
// store into one indexing run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/chromadex/chromadex/internal/chunker"
	"github.com/chromadex/chromadex/internal/config"
	"github.com/chromadex/chromadex/internal/embed"
	cerrors "github.com/chromadex/chromadex/internal/errors"
	"github.com/chromadex/chromadex/internal/loader"
	"github.com/chromadex/chromadex/internal/store"
	"github.com/chromadex/chromadex/internal/ui"
)

// Dependencies contains the injected collaborators for a Runner.
type Dependencies struct {
	// Renderer for progress display (required).
	Renderer ui.Renderer

	// Config is the validated run configuration (required).
	Config *config.Config

	// Embedder generates vectors for chunk text (required).
	Embedder embed.Embedder

	// Store receives the upserted records (required).
	Store store.VectorStore
}

// Result contains the outcome of an indexing run.
type Result struct {
	// Files is the number of documents read and chunked.
	Files int

	// Skipped is the number of files passed over by the loader.
	Skipped int

	// Chunks is the number of chunks produced.
	Chunks int

	// Records is the number of records upserted.
	Records int

	// Batches is the number of embed/upsert batches processed.
	Batches int

	// Duration is the total run time.
	Duration time.Duration

	// Warnings is the count of non-fatal per-file problems.
	Warnings int
}

// Runner executes the index pipeline with progress reporting. It
// accepts injected dependencies for testability.
type Runner struct {
	renderer ui.Renderer
	config   *config.Config
	embedder embed.Embedder
	store    store.VectorStore
	chunker  *chunker.Chunker
}

// NewRunner creates a Runner with injected dependencies.
func NewRunner(deps Dependencies) (*Runner, error) {
	if deps.Renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	ck, err := chunker.New(chunker.Policy{
		Size:              deps.Config.ChunkSize,
		Overlap:           deps.Config.ChunkOverlap,
		BoundaryTolerance: deps.Config.BoundaryTolerance,
	})
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeChunkPolicy, err.Error(), err)
	}

	return &Runner{
		renderer: deps.Renderer,
		config:   deps.Config,
		embedder: deps.Embedder,
		store:    deps.Store,
		chunker:  ck,
	}, nil
}

// stageTiming tracks wall durations for the pipeline stages. The
// embed and upsert figures are cumulative across workers.
type stageTiming struct {
	mu     sync.Mutex
	scan   time.Duration
	chunk  time.Duration
	embed  time.Duration
	upsert time.Duration
}

func (t *stageTiming) add(d *time.Duration, since time.Time) {
	elapsed := time.Since(since)
	t.mu.Lock()
	*d += elapsed
	t.mu.Unlock()
}

// Run executes the full pipeline: walk, chunk, embed, upsert. It holds
// the run lock for the duration and fails fast if another run is
// active on the same root. A failed run still renders a summary of the
// partial progress (documents loaded, chunks produced, records
// upserted) before the error is returned.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	startTime := time.Now()

	lock := NewRunLock(r.config.RootDir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}
	defer func() { _ = lock.Release() }()

	var timing stageTiming
	result := &Result{}

	abort := func(err error) (*Result, error) {
		if ctx.Err() != nil {
			err = cerrors.New(cerrors.ErrCodeInterrupted,
				fmt.Sprintf("indexing interrupted after %d batches", result.Batches),
				ctx.Err())
		}
		result.Duration = time.Since(startTime)
		r.complete(result, &timing, true)
		return result, err
	}

	// Fail before any file I/O if the store is down.
	if err := r.store.Heartbeat(ctx); err != nil {
		return abort(err)
	}

	dims := r.embedder.Dimensions()
	model := r.embedder.ModelName()
	if err := r.store.EnsureCollection(ctx, dims, model); err != nil {
		return abort(err)
	}

	slog.Info("index_started",
		slog.String("root", r.config.RootDir),
		slog.String("collection", r.config.Collection),
		slog.String("model", model),
		slog.Int("dimensions", dims))

	// Stage 1+2: walk the tree and split documents as they stream in.
	scanStart := time.Now()
	chunks, loadStats, err := r.collectChunks(ctx, &timing)
	timing.add(&timing.scan, scanStart)

	result.Files = int(loadStats.Loaded)
	result.Skipped = int(loadStats.TotalSkipped())
	result.Chunks = len(chunks)
	result.Warnings = int(loadStats.Skipped[loader.SkipUnreadable])

	if err != nil {
		return abort(err)
	}

	if len(chunks) == 0 {
		result.Duration = time.Since(startTime)
		r.complete(result, &timing, false)
		return result, nil
	}

	// Stage 3+4: embed and upsert, batch by batch.
	upserted, batches, err := r.embedAndUpsert(ctx, chunks, &timing)
	result.Records = upserted
	result.Batches = batches
	if err != nil {
		return abort(err)
	}

	result.Duration = time.Since(startTime)

	r.complete(result, &timing, false)

	slog.Info("index_complete",
		slog.Int("files", result.Files),
		slog.Int("skipped", result.Skipped),
		slog.Int("chunks", result.Chunks),
		slog.Int("records", result.Records),
		slog.Int64("duration_ms", result.Duration.Milliseconds()),
		slog.String("collection", r.config.Collection))

	return result, nil
}

// collectChunks streams documents from the loader and splits them.
// File reads run concurrently inside the loader; splitting happens
// here on the consuming side.
func (r *Runner) collectChunks(ctx context.Context, timing *stageTiming) ([]chunker.Chunk, loader.Stats, error) {
	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage:   ui.StageScanning,
		Message: fmt.Sprintf("Scanning %s...", r.config.RootDir),
	})

	ld, err := loader.New(loader.Options{
		RootDir:         r.config.RootDir,
		Extensions:      r.config.Extensions,
		ExcludePatterns: r.config.ExcludePatterns,
		MaxFileSize:     r.config.MaxFileSize,
		Workers:         r.config.Workers,
	})
	if err != nil {
		return nil, loader.Stats{}, err
	}

	var chunks []chunker.Chunk
	files := 0
	for res := range ld.Load(ctx) {
		if res.Err != nil {
			return nil, ld.Stats(), fmt.Errorf("walk failed: %w", res.Err)
		}

		files++
		r.renderer.UpdateProgress(ui.ProgressEvent{
			Stage:       ui.StageChunking,
			Current:     files,
			CurrentFile: res.Doc.Path,
		})

		splitStart := time.Now()
		chunks = append(chunks, r.chunker.Split(res.Doc.Path, res.Doc.Content)...)
		timing.add(&timing.chunk, splitStart)
	}
	if ctx.Err() != nil {
		return nil, ld.Stats(), ctx.Err()
	}

	stats := ld.Stats()
	slog.Info("scan_complete",
		slog.Int64("files", stats.Loaded),
		slog.Int64("seen", stats.Seen),
		slog.Int64("skipped", stats.TotalSkipped()),
		slog.Int("chunks", len(chunks)))
	return chunks, stats, nil
}

// embedAndUpsert processes chunks in batches. Each worker embeds a
// batch and upserts the resulting records before taking the next, so
// a store failure stops the run after at most Workers in-flight
// batches. Returns the number of chunks upserted and of batches
// committed, both valid on error for the partial-run summary.
func (r *Runner) embedAndUpsert(ctx context.Context, chunks []chunker.Chunk, timing *stageTiming) (int, int, error) {
	total := len(chunks)
	batchSize := r.config.BatchSize

	r.renderer.UpdateProgress(ui.ProgressEvent{
		Stage: ui.StageEmbedding,
		Total: total,
	})

	var mu sync.Mutex
	done := 0
	batches := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Workers)

	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		batch := chunks[start:end]

		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}

			embedStart := time.Now()
			vecs, err := r.embedder.EmbedBatch(gctx, texts)
			timing.add(&timing.embed, embedStart)
			if err != nil {
				return fmt.Errorf("failed to embed batch of %d chunks: %w", len(batch), err)
			}
			if len(vecs) != len(batch) {
				return cerrors.New(cerrors.ErrCodeEmbedService,
					fmt.Sprintf("embedder returned %d vectors for %d chunks", len(vecs), len(batch)), nil)
			}

			records := make([]store.Record, len(batch))
			for i, c := range batch {
				records[i] = store.Record{
					ID:     c.ID,
					Vector: vecs[i],
					Text:   c.Text,
					Metadata: map[string]any{
						"source_path":    c.SourcePath,
						"sequence_index": c.Index,
						"start_offset":   c.Start,
						"end_offset":     c.End,
					},
				}
			}

			upsertStart := time.Now()
			err = r.store.Upsert(gctx, records)
			timing.add(&timing.upsert, upsertStart)
			if err != nil {
				return err
			}

			mu.Lock()
			done += len(batch)
			batches++
			current := done
			mu.Unlock()

			r.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:   ui.StageUpserting,
				Current: current,
				Total:   total,
			})
			return nil
		})
	}

	err := g.Wait()
	mu.Lock()
	defer mu.Unlock()
	return done, batches, err
}

// complete pushes the final summary to the renderer.
func (r *Runner) complete(result *Result, timing *stageTiming, failed bool) {
	timing.mu.Lock()
	stages := ui.StageTimings{
		Scan:   timing.scan,
		Chunk:  timing.chunk,
		Embed:  timing.embed,
		Upsert: timing.upsert,
	}
	timing.mu.Unlock()

	errs := 0
	if failed {
		errs = 1
	}

	r.renderer.Complete(ui.CompletionStats{
		Failed:     failed,
		Files:      result.Files,
		Skipped:    result.Skipped,
		Chunks:     result.Chunks,
		Records:    result.Records,
		Collection: r.config.Collection,
		Duration:   result.Duration,
		Warnings:   result.Warnings,
		Errors:     errs,
		Stages:     stages,
		Embedder: ui.EmbedderInfo{
			Model:      r.embedder.ModelName(),
			Dimensions: r.embedder.Dimensions(),
		},
	})
}
