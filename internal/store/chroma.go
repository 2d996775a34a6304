package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	cerrors "github.com/chromadex/chromadex/internal/errors"
)

// API paths for the ChromaDB v1 HTTP interface.
const (
	heartbeatPath   = "/api/v1/heartbeat"
	collectionsPath = "/api/v1/collections"
)

// metadata keys recorded on the collection itself.
const (
	metaDimension = "dimension"
	metaModel     = "embedding_model"
)

// ChromaConfig configures a ChromaStore.
type ChromaConfig struct {
	// Host and Port locate the ChromaDB server.
	Host string
	Port int

	// Collection is the target collection name.
	Collection string

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Retry controls backoff for transient failures.
	Retry cerrors.RetryConfig
}

// ChromaStore talks to a ChromaDB server over HTTP.
type ChromaStore struct {
	client    *http.Client
	transport *http.Transport
	config    ChromaConfig
	baseURL   string

	mu           sync.RWMutex
	closed       bool
	collectionID string
}

var _ VectorStore = (*ChromaStore)(nil)

// NewChromaStore creates a client for the configured server. No network
// I/O happens until Heartbeat or EnsureCollection.
func NewChromaStore(cfg ChromaConfig) (*ChromaStore, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("store host is empty")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("store port out of range: %d", cfg.Port)
	}
	if cfg.Collection == "" {
		return nil, fmt.Errorf("collection name is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = cerrors.DefaultRetryConfig()
	}

	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     10 * time.Second,
	}

	host := cfg.Host
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}

	return &ChromaStore{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		baseURL:   fmt.Sprintf("%s:%d", strings.TrimSuffix(host, "/"), cfg.Port),
	}, nil
}

// Collection returns the configured collection name.
func (s *ChromaStore) Collection() string {
	return s.config.Collection
}

// Heartbeat verifies the server is reachable.
func (s *ChromaStore) Heartbeat(ctx context.Context) error {
	err := s.doJSON(ctx, http.MethodGet, heartbeatPath, nil, nil)
	if err != nil {
		return cerrors.New(cerrors.ErrCodeStoreUnavailable,
			fmt.Sprintf("ChromaDB is not reachable at %s", s.baseURL), err).
			WithSuggestion("check CHROMADB_HOST and CHROMADB_PORT, and that the server is running")
	}
	return nil
}

// createCollectionRequest is the body for POST /api/v1/collections.
type createCollectionRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

// collectionResponse is the server's collection representation.
type collectionResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata"`
}

// EnsureCollection opens the collection, creating it with dimension
// metadata if absent. A pre-existing collection whose recorded
// dimension differs from dims is a fatal mismatch: its vectors were
// produced by an incompatible model.
func (s *ChromaStore) EnsureCollection(ctx context.Context, dims int, model string) error {
	if dims <= 0 {
		return cerrors.New(cerrors.ErrCodeCollectionCreate,
			fmt.Sprintf("invalid embedding dimension %d", dims), nil)
	}

	req := createCollectionRequest{
		Name: s.config.Collection,
		Metadata: map[string]any{
			metaDimension: dims,
			metaModel:     model,
		},
		GetOrCreate: true,
	}

	var coll collectionResponse
	err := cerrors.Retry(ctx, s.config.Retry, func() error {
		return s.doJSON(ctx, http.MethodPost, collectionsPath, req, &coll)
	})
	if err != nil {
		if cerrors.GetCode(err) != "" {
			return err
		}
		return cerrors.New(cerrors.ErrCodeCollectionCreate,
			fmt.Sprintf("failed to create or open collection %q", s.config.Collection), err)
	}
	if coll.ID == "" {
		return cerrors.New(cerrors.ErrCodeCollectionCreate,
			fmt.Sprintf("server returned no ID for collection %q", s.config.Collection), nil)
	}

	// An existing collection reports its own metadata; compare
	// dimensions before writing anything into it.
	if existing, ok := dimensionFromMetadata(coll.Metadata); ok && existing != dims {
		return cerrors.New(cerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("collection %q holds %d-dimensional vectors but the embedder produces %d",
				s.config.Collection, existing, dims), nil).
			WithDetail("collection", s.config.Collection).
			WithSuggestion("change the collection name or re-create it for the new model")
	}

	s.mu.Lock()
	s.collectionID = coll.ID
	s.mu.Unlock()

	slog.Debug("collection ready",
		slog.String("name", coll.Name),
		slog.String("id", coll.ID),
		slog.Int("dimension", dims))
	return nil
}

// upsertRequest is the body for POST /api/v1/collections/{id}/upsert.
// Parallel arrays, one entry per record.
type upsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []map[string]any `json:"metadatas"`
	Documents  []string         `json:"documents"`
}

// Upsert writes records by ID. Requires a prior EnsureCollection.
func (s *ChromaStore) Upsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.RLock()
	collID := s.collectionID
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("store is closed")
	}
	if collID == "" {
		return cerrors.New(cerrors.ErrCodeStoreUpsert,
			"collection not initialized before upsert", nil)
	}

	req := upsertRequest{
		IDs:        make([]string, len(records)),
		Embeddings: make([][]float32, len(records)),
		Metadatas:  make([]map[string]any, len(records)),
		Documents:  make([]string, len(records)),
	}
	for i, rec := range records {
		req.IDs[i] = rec.ID
		req.Embeddings[i] = rec.Vector
		req.Metadatas[i] = rec.Metadata
		req.Documents[i] = rec.Text
	}

	path := fmt.Sprintf("%s/%s/upsert", collectionsPath, collID)
	err := cerrors.Retry(ctx, s.config.Retry, func() error {
		return s.doJSON(ctx, http.MethodPost, path, req, nil)
	})
	if err != nil {
		if cerrors.GetCode(err) == cerrors.ErrCodeStoreUnavailable {
			return err
		}
		return cerrors.New(cerrors.ErrCodeStoreUpsert,
			fmt.Sprintf("failed to upsert %d records", len(records)), err)
	}
	return nil
}

// doJSON issues one request and decodes the response into out when
// non-nil. Connection failures and 5xx responses come back as
// retryable store errors; other statuses are permanent.
func (s *ChromaStore) doJSON(ctx context.Context, method, path string, in, out any) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, s.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return cerrors.New(cerrors.ErrCodeStoreUnavailable,
			fmt.Sprintf("request to ChromaDB failed: %s %s", method, path), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		message := strings.TrimSpace(string(raw))
		if resp.StatusCode >= 500 {
			return cerrors.New(cerrors.ErrCodeStoreUnavailable,
				fmt.Sprintf("ChromaDB error (status %d): %s", resp.StatusCode, message), nil)
		}
		return fmt.Errorf("ChromaDB rejected request (status %d): %s", resp.StatusCode, message)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// dimensionFromMetadata extracts the recorded dimension, tolerating the
// number types JSON decoding may produce.
func dimensionFromMetadata(meta map[string]any) (int, bool) {
	v, ok := meta[metaDimension]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}

// Close releases resources.
func (s *ChromaStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.transport.CloseIdleConnections()
	return nil
}
