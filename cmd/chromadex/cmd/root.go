// Package cmd provides the CLI commands for chromadex.
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/chromadex/chromadex/internal/config"
	"github.com/chromadex/chromadex/internal/logging"
	"github.com/chromadex/chromadex/pkg/version"
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the chromadex CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chromadex",
		Short: "Index a codebase into ChromaDB for retrieval",
		Long: `Chromadex walks a directory tree, splits text files into
overlapping chunks, embeds each chunk with the OpenAI embeddings API,
and upserts the vectors into a ChromaDB collection.

Record IDs are derived from file path, chunk index and chunk text, so
re-running the indexer over unchanged files is idempotent.

Configuration comes from .chromadex.yaml in the project root, overridden
by environment variables (OPENAI_API_KEY, CHROMADB_HOST, CHROMADB_PORT,
CHROMADEX_*). A .env file in the working directory is loaded if present.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Bare invocation indexes the enclosing project.
			root, err := config.FindProjectRoot(".")
			if err != nil {
				root, _ = os.Getwd()
			}
			return runIndex(cmd, root, indexOptions{})
		},
	}

	cmd.SetVersionTemplate("chromadex version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.chromadex/logs/")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging loads .env and sets up debug logging if the flag is set.
func startLogging(_ *cobra.Command, _ []string) error {
	// Missing .env is fine; explicit env vars always win because
	// godotenv never overwrites variables that are already set.
	_ = godotenv.Load()

	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("Debug logging enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Short()))
	}

	return nil
}

// stopLogging flushes and closes the debug log if it was opened.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// newRunLogger builds the stderr logger for an indexing run at the
// configured level. --debug replaces it with file logging instead.
func newRunLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: logging.LevelFromString(level),
	}))
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
