package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/chromadex/chromadex/internal/config"
	"github.com/chromadex/chromadex/internal/embed"
	cerrors "github.com/chromadex/chromadex/internal/errors"
	"github.com/chromadex/chromadex/internal/pipeline"
	"github.com/chromadex/chromadex/internal/store"
	"github.com/chromadex/chromadex/internal/ui"
)

// indexOptions carries the flag overrides for one indexing run. Zero
// values mean "use the config file / env / defaults".
type indexOptions struct {
	plain      bool
	noColor    bool
	collection string
	model      string
	batchSize  int
	workers    int
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory into ChromaDB",
		Long: `Index a directory tree into a ChromaDB collection.

Files are filtered by extension allow-list and exclude patterns, split
into overlapping chunks, embedded in batches, and upserted with
deterministic record IDs. Interrupting with Ctrl+C leaves already
upserted records in place; the next run overwrites them.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.plain, "plain", false, "Plain line output (no status line)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&opts.collection, "collection", "", "Target collection name (default \"codebase\")")
	cmd.Flags().StringVar(&opts.model, "model", "", "Embedding model (default \"text-embedding-3-small\")")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "Chunks per embedding batch")
	cmd.Flags().IntVar(&opts.workers, "workers", 0, "Concurrent embed/upsert workers")

	return cmd
}

func runIndex(cmd *cobra.Command, path string, opts indexOptions) error {
	// Ctrl+C cancels the context so in-flight batches stop instead of
	// racing the process exit.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	cfg, err := config.Load(absPath)
	if err != nil {
		return failWith(cmd, err)
	}
	if opts.collection != "" {
		cfg.Collection = opts.collection
	}
	if opts.model != "" {
		cfg.Model = opts.model
	}
	if opts.batchSize > 0 {
		cfg.BatchSize = opts.batchSize
	}
	if opts.workers > 0 {
		cfg.Workers = opts.workers
	}
	if err := cfg.Validate(); err != nil {
		return failWith(cmd, err)
	}

	if !debugMode {
		slog.SetDefault(newRunLogger(cmd.ErrOrStderr(), cfg.LogLevel))
	}

	renderer := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: opts.plain,
		NoColor:    opts.noColor,
	})

	embedder, err := embed.NewOpenAIEmbedder(ctx, embed.OpenAIConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		BatchSize: cfg.BatchSize,
		Timeout:   cfg.HTTPTimeout,
	})
	if err != nil {
		return failWith(cmd, err)
	}
	cached, err := embed.NewCachedEmbedder(embedder, embed.DefaultCacheSize)
	if err != nil {
		embedder.Close()
		return failWith(cmd, err)
	}
	defer cached.Close()

	vectorStore, err := store.NewChromaStore(store.ChromaConfig{
		Host:       cfg.StoreHost,
		Port:       cfg.StorePort,
		Collection: cfg.Collection,
		Timeout:    cfg.HTTPTimeout,
	})
	if err != nil {
		return failWith(cmd, err)
	}
	defer vectorStore.Close()

	runner, err := pipeline.NewRunner(pipeline.Dependencies{
		Renderer: renderer,
		Config:   cfg,
		Embedder: cached,
		Store:    vectorStore,
	})
	if err != nil {
		return failWith(cmd, err)
	}

	if _, err := runner.Run(ctx); err != nil {
		return failWith(cmd, err)
	}
	return nil
}

// failWith prints a formatted pipeline error to stderr and returns the
// error for the non-zero exit code.
func failWith(cmd *cobra.Command, err error) error {
	fmt.Fprint(cmd.ErrOrStderr(), cerrors.FormatForCLI(err))
	return err
}
