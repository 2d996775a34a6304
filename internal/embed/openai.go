package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	cerrors "github.com/chromadex/chromadex/internal/errors"
)

// DefaultOpenAIBaseURL is the production API endpoint.
const DefaultOpenAIBaseURL = "https://api.openai.com"

// DefaultOpenAIModel is used when no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// knownModelDims maps OpenAI embedding models to their output dimension,
// avoiding a probe request for the common cases.
var knownModelDims = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL of the API. Defaults to the production endpoint;
	// overridable for proxies and tests.
	BaseURL string

	// APIKey is the bearer token. Required.
	APIKey string

	// Model is the embedding model identifier.
	Model string

	// BatchSize is the maximum texts per API request.
	BatchSize int

	// Timeout is the per-request timeout.
	Timeout time.Duration

	// Retry controls backoff for transient failures.
	Retry cerrors.RetryConfig

	// SkipProbe skips the dimension probe for unknown models;
	// Dimensions is then resolved lazily from the first response.
	SkipProbe bool
}

// OpenAIEmbedder generates embeddings using the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *http.Client
	transport *http.Transport
	config    OpenAIConfig

	mu     sync.RWMutex
	closed bool
	dims   int
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder for the configured model. For
// models with unknown dimensions it issues one probe request unless
// SkipProbe is set.
func NewOpenAIEmbedder(ctx context.Context, cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, cerrors.New(cerrors.ErrCodeMissingAPIKey,
			"OpenAI API key is not set", nil).
			WithSuggestion("export OPENAI_API_KEY before running")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = cerrors.DefaultRetryConfig()
	}

	// IdleConnTimeout is short because an indexing run is short-lived;
	// connections should not linger after Ctrl+C.
	transport := &http.Transport{
		MaxIdleConns:        8,
		MaxIdleConnsPerHost: 8,
		IdleConnTimeout:     10 * time.Second,
	}

	// No http.Client.Timeout: per-request context timeouts are applied
	// in doEmbed so cancellation stays in the caller's hands.
	e := &OpenAIEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
		dims:      knownModelDims[cfg.Model],
	}

	if e.dims == 0 && !cfg.SkipProbe {
		dims, err := e.probeDimensions(ctx)
		if err != nil {
			transport.CloseIdleConnections()
			return nil, err
		}
		e.dims = dims
	}

	return e, nil
}

// probeDimensions embeds a short text to learn the model's output
// dimension.
func (e *OpenAIEmbedder) probeDimensions(ctx context.Context) (int, error) {
	vecs, err := e.doEmbedWithRetry(ctx, []string{"dimension probe"})
	if err != nil {
		return 0, fmt.Errorf("failed to detect embedding dimensions: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return 0, cerrors.New(cerrors.ErrCodeEmbedService,
			"empty embedding returned during dimension probe", nil)
	}
	return len(vecs[0]), nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, cerrors.New(cerrors.ErrCodeEmbedService, "no embedding returned", nil)
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Inputs that are
// empty after trimming get zero vectors without an API call. Larger
// inputs are split into API requests of at most BatchSize texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	type indexedText struct {
		idx  int
		text string
	}
	var nonEmpty []indexedText
	results := make([][]float32, len(texts))

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			results[i] = make([]float32, e.Dimensions())
		} else {
			nonEmpty = append(nonEmpty, indexedText{i, text})
		}
	}

	for start := 0; start < len(nonEmpty); start += e.config.BatchSize {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		end := start + e.config.BatchSize
		if end > len(nonEmpty) {
			end = len(nonEmpty)
		}

		batch := nonEmpty[start:end]
		batchTexts := make([]string, len(batch))
		for i, it := range batch {
			batchTexts[i] = it.text
		}

		vecs, err := e.doEmbedWithRetry(ctx, batchTexts)
		if err != nil {
			return nil, err
		}
		for i, vec := range vecs {
			results[batch[i].idx] = vec
		}
	}

	return results, nil
}

// doEmbedWithRetry wraps doEmbed in the shared backoff policy.
// Permanent failures (auth, malformed request) abort immediately.
func (e *OpenAIEmbedder) doEmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	return cerrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
		return e.doEmbed(ctx, texts)
	})
}

// doEmbed performs a single embeddings request.
func (e *OpenAIEmbedder) doEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(openaiEmbedRequest{
		Model:          e.config.Model,
		Input:          texts,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := e.config.BaseURL + "/v1/embeddings"
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	slog.Debug("embedding request",
		slog.String("model", e.config.Model),
		slog.Int("texts", len(texts)))

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || reqCtx.Err() == context.DeadlineExceeded {
			return nil, cerrors.New(cerrors.ErrCodeEmbedTimeout,
				fmt.Sprintf("embedding request timed out after %s", e.config.Timeout), err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, cerrors.New(cerrors.ErrCodeEmbedService,
			"embedding request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, e.statusError(resp)
	}

	var result openaiEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeEmbedService,
			"failed to decode embeddings response", err)
	}
	if len(result.Data) != len(texts) {
		return nil, cerrors.New(cerrors.ErrCodeEmbedService,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(result.Data)), nil)
	}

	// The API documents order by index; honor the index field anyway.
	vecs := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, cerrors.New(cerrors.ErrCodeEmbedService,
				fmt.Sprintf("embedding index %d out of range", d.Index), nil)
		}
		vecs[d.Index] = normalizeVector(d.Embedding)
	}
	for i, v := range vecs {
		if v == nil {
			return nil, cerrors.New(cerrors.ErrCodeEmbedService,
				fmt.Sprintf("missing embedding for input %d", i), nil)
		}
	}

	e.mu.Lock()
	if e.dims == 0 && len(vecs[0]) > 0 {
		e.dims = len(vecs[0])
	}
	e.mu.Unlock()

	return vecs, nil
}

// statusError classifies a non-200 response. 429 and 5xx are
// transient; auth and request errors are permanent.
func (e *OpenAIEmbedder) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := strings.TrimSpace(string(raw))
	var apiErr openaiErrorResponse
	if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
		message = apiErr.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return cerrors.New(cerrors.ErrCodeEmbedAuth,
			fmt.Sprintf("OpenAI rejected the API key: %s", message), nil).
			WithSuggestion("check that OPENAI_API_KEY is valid and has embeddings access")
	case resp.StatusCode == http.StatusTooManyRequests:
		return cerrors.New(cerrors.ErrCodeEmbedRateLimited,
			fmt.Sprintf("rate limited by OpenAI: %s", message), nil)
	case resp.StatusCode >= 500:
		return cerrors.New(cerrors.ErrCodeEmbedService,
			fmt.Sprintf("OpenAI service error (status %d): %s", resp.StatusCode, message), nil)
	default:
		return cerrors.New(cerrors.ErrCodeEmbedRequest,
			fmt.Sprintf("embedding request rejected (status %d): %s", resp.StatusCode, message), nil)
	}
}

// Dimensions returns the embedding dimension, or 0 when the model is
// unknown and no request has completed yet.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the API is reachable with the configured
// key. Used by the check command.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, e.config.BaseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}
