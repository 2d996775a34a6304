package store

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/chromadex/chromadex/internal/errors"
)

func fastRetry() cerrors.RetryConfig {
	return cerrors.RetryConfig{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2.0,
	}
}

// newTestStore points a ChromaStore at the given test server.
func newTestStore(t *testing.T, srv *httptest.Server) *ChromaStore {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	s, err := NewChromaStore(ChromaConfig{
		Host:       u.Hostname(),
		Port:       port,
		Collection: "codebase",
		Timeout:    5 * time.Second,
		Retry:      fastRetry(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// chromaHandler fakes the subset of the v1 API the store uses.
type chromaHandler struct {
	collectionMeta map[string]any
	upserts        atomic.Int32
	lastUpsert     upsertRequest
}

func (h *chromaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/heartbeat":
		_ = json.NewEncoder(w).Encode(map[string]int64{"nanosecond heartbeat": time.Now().UnixNano()})
	case r.URL.Path == "/api/v1/collections" && r.Method == http.MethodPost:
		var req createCollectionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		meta := req.Metadata
		if h.collectionMeta != nil {
			// Pre-existing collection keeps its own metadata
			meta = h.collectionMeta
		}
		_ = json.NewEncoder(w).Encode(collectionResponse{
			ID:       "coll-123",
			Name:     req.Name,
			Metadata: meta,
		})
	case r.URL.Path == "/api/v1/collections/coll-123/upsert" && r.Method == http.MethodPost:
		h.upserts.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&h.lastUpsert)
		_ = json.NewEncoder(w).Encode(true)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func TestNewChromaStore_Validation(t *testing.T) {
	_, err := NewChromaStore(ChromaConfig{Port: 8000, Collection: "c"})
	assert.Error(t, err)

	_, err = NewChromaStore(ChromaConfig{Host: "localhost", Collection: "c"})
	assert.Error(t, err)

	_, err = NewChromaStore(ChromaConfig{Host: "localhost", Port: 8000})
	assert.Error(t, err)
}

func TestHeartbeat(t *testing.T) {
	srv := httptest.NewServer(&chromaHandler{})
	defer srv.Close()

	s := newTestStore(t, srv)
	require.NoError(t, s.Heartbeat(context.Background()))
}

func TestHeartbeat_Unreachable(t *testing.T) {
	s, err := NewChromaStore(ChromaConfig{
		Host:       "127.0.0.1",
		Port:       1,
		Collection: "codebase",
		Timeout:    time.Second,
		Retry:      fastRetry(),
	})
	require.NoError(t, err)

	err = s.Heartbeat(context.Background())
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeStoreUnavailable, cerrors.GetCode(err))
}

func TestEnsureCollection_CreatesWithMetadata(t *testing.T) {
	h := &chromaHandler{}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := newTestStore(t, srv)
	require.NoError(t, s.EnsureCollection(context.Background(), 1536, "text-embedding-3-small"))
}

func TestEnsureCollection_DimensionMismatch(t *testing.T) {
	h := &chromaHandler{collectionMeta: map[string]any{
		"dimension":       768,
		"embedding_model": "old-model",
	}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := newTestStore(t, srv)
	err := s.EnsureCollection(context.Background(), 1536, "text-embedding-3-small")
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeDimensionMismatch, cerrors.GetCode(err))
	assert.Contains(t, err.Error(), "768")
}

func TestEnsureCollection_MatchingDimension(t *testing.T) {
	h := &chromaHandler{collectionMeta: map[string]any{
		"dimension": 1536,
	}}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := newTestStore(t, srv)
	require.NoError(t, s.EnsureCollection(context.Background(), 1536, "text-embedding-3-small"))
}

func TestUpsert(t *testing.T) {
	h := &chromaHandler{}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := newTestStore(t, srv)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, 2, "m"))

	records := []Record{
		{
			ID:     "abc123",
			Vector: []float32{0.1, 0.2},
			Text:   "package main",
			Metadata: map[string]any{
				"source_path":    "main.go",
				"sequence_index": 0,
			},
		},
		{
			ID:     "def456",
			Vector: []float32{0.3, 0.4},
			Text:   "func main() {}",
			Metadata: map[string]any{
				"source_path":    "main.go",
				"sequence_index": 1,
			},
		},
	}
	require.NoError(t, s.Upsert(ctx, records))

	assert.Equal(t, int32(1), h.upserts.Load())
	assert.Equal(t, []string{"abc123", "def456"}, h.lastUpsert.IDs)
	assert.Equal(t, []string{"package main", "func main() {}"}, h.lastUpsert.Documents)
	require.Len(t, h.lastUpsert.Metadatas, 2)
	assert.Equal(t, "main.go", h.lastUpsert.Metadatas[0]["source_path"])
	require.Len(t, h.lastUpsert.Embeddings, 2)
	assert.InDelta(t, 0.1, h.lastUpsert.Embeddings[0][0], 1e-6)
}

func TestUpsert_EmptyBatchIsNoop(t *testing.T) {
	h := &chromaHandler{}
	srv := httptest.NewServer(h)
	defer srv.Close()

	s := newTestStore(t, srv)
	require.NoError(t, s.EnsureCollection(context.Background(), 2, "m"))
	require.NoError(t, s.Upsert(context.Background(), nil))
	assert.Equal(t, int32(0), h.upserts.Load())
}

func TestUpsert_RequiresEnsureCollection(t *testing.T) {
	srv := httptest.NewServer(&chromaHandler{})
	defer srv.Close()

	s := newTestStore(t, srv)
	err := s.Upsert(context.Background(), []Record{{ID: "x"}})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeStoreUpsert, cerrors.GetCode(err))
}

func TestUpsert_RetriesServerErrors(t *testing.T) {
	var fails atomic.Int32
	fails.Store(2)
	inner := &chromaHandler{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/collections/coll-123/upsert" && fails.Add(-1) >= 0 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	s := newTestStore(t, srv)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, 2, "m"))
	require.NoError(t, s.Upsert(ctx, []Record{{ID: "x", Vector: []float32{1, 0}, Text: "t"}}))
	assert.Equal(t, int32(1), inner.upserts.Load())
}

func TestUpsert_BadRequestIsPermanent(t *testing.T) {
	var calls atomic.Int32
	inner := &chromaHandler{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/collections/coll-123/upsert" {
			calls.Add(1)
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"error":"InvalidDimension"}`))
			return
		}
		inner.ServeHTTP(w, r)
	}))
	defer srv.Close()

	s := newTestStore(t, srv)
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, 2, "m"))

	err := s.Upsert(ctx, []Record{{ID: "x", Vector: []float32{1}, Text: "t"}})
	require.Error(t, err)
	assert.Equal(t, cerrors.ErrCodeStoreUpsert, cerrors.GetCode(err))
	// Permanent rejection is not retried
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpsert_AfterClose(t *testing.T) {
	srv := httptest.NewServer(&chromaHandler{})
	defer srv.Close()

	s := newTestStore(t, srv)
	require.NoError(t, s.EnsureCollection(context.Background(), 2, "m"))
	require.NoError(t, s.Close())

	err := s.Upsert(context.Background(), []Record{{ID: "x"}})
	require.Error(t, err)
}

func TestDimensionFromMetadata(t *testing.T) {
	dims, ok := dimensionFromMetadata(map[string]any{"dimension": float64(1536)})
	assert.True(t, ok)
	assert.Equal(t, 1536, dims)

	_, ok = dimensionFromMetadata(map[string]any{})
	assert.False(t, ok)

	_, ok = dimensionFromMetadata(map[string]any{"dimension": "many"})
	assert.False(t, ok)
}
