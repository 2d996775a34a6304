package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chromadex/chromadex/internal/config"
	"github.com/chromadex/chromadex/internal/embed"
	"github.com/chromadex/chromadex/internal/store"
)

// checkResult is one line of the check report.
type checkResult struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

func newCheckCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify connectivity before indexing",
		Long: `Check that everything an indexing run needs is in place:

  - OPENAI_API_KEY is set
  - the OpenAI API accepts the key
  - the ChromaDB server answers its heartbeat

Exits non-zero if any check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runCheck(ctx, cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, jsonOutput bool) error {
	root, err := config.FindProjectRoot(".")
	if err != nil {
		root, _ = os.Getwd()
	}
	cfg, err := config.Load(root)
	if err != nil {
		return failWith(cmd, err)
	}

	results := []checkResult{
		checkAPIKey(cfg),
		checkEmbedder(ctx, cfg),
		checkStore(ctx, cfg),
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			status := "OK"
			if !r.OK {
				status = "FAIL"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-4s  %s", status, r.Name)
			if r.Detail != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", r.Detail)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		}
	}

	for _, r := range results {
		if !r.OK {
			return fmt.Errorf("%d of %d checks failed", countFailed(results), len(results))
		}
	}
	return nil
}

func checkAPIKey(cfg *config.Config) checkResult {
	r := checkResult{Name: "OpenAI API key"}
	if cfg.APIKey == "" {
		r.Detail = config.EnvAPIKey + " is not set"
		return r
	}
	r.OK = true
	return r
}

func checkEmbedder(ctx context.Context, cfg *config.Config) checkResult {
	r := checkResult{Name: fmt.Sprintf("OpenAI API (%s)", cfg.Model)}
	if cfg.APIKey == "" {
		r.Detail = "skipped, no API key"
		return r
	}

	// SkipProbe keeps construction offline; Available does the one
	// network call we want here.
	embedder, err := embed.NewOpenAIEmbedder(ctx, embed.OpenAIConfig{
		APIKey:    cfg.APIKey,
		Model:     cfg.Model,
		Timeout:   10 * time.Second,
		SkipProbe: true,
	})
	if err != nil {
		r.Detail = err.Error()
		return r
	}
	defer embedder.Close()

	if !embedder.Available(ctx) {
		r.Detail = "API not reachable or key rejected"
		return r
	}
	r.OK = true
	return r
}

func checkStore(ctx context.Context, cfg *config.Config) checkResult {
	r := checkResult{Name: fmt.Sprintf("ChromaDB at %s", cfg.Endpoint())}

	chromaStore, err := store.NewChromaStore(store.ChromaConfig{
		Host:       cfg.StoreHost,
		Port:       cfg.StorePort,
		Collection: cfg.Collection,
		Timeout:    10 * time.Second,
	})
	if err != nil {
		r.Detail = err.Error()
		return r
	}
	defer chromaStore.Close()

	if err := chromaStore.Heartbeat(ctx); err != nil {
		r.Detail = "heartbeat failed"
		return r
	}
	r.OK = true
	return r
}

func countFailed(results []checkResult) int {
	n := 0
	for _, r := range results {
		if !r.OK {
			n++
		}
	}
	return n
}
