// Package store persists embedded chunks in a ChromaDB collection over
// its HTTP API.
package store

import "context"

// Record is one upsert row: a deterministic ID, the embedding vector,
// the chunk text, and its metadata.
type Record struct {
	ID       string
	Vector   []float32
	Text     string
	Metadata map[string]any
}

// VectorStore is the narrow surface the pipeline needs from the
// vector database.
type VectorStore interface {
	// Heartbeat verifies the store is reachable.
	Heartbeat(ctx context.Context) error

	// EnsureCollection creates or opens the target collection and
	// verifies its dimension matches dims. Must be called before
	// Upsert.
	EnsureCollection(ctx context.Context, dims int, model string) error

	// Upsert writes records by ID, replacing any existing rows with
	// the same IDs.
	Upsert(ctx context.Context, records []Record) error

	// Close releases resources.
	Close() error
}
