// Package errors provides structured error handling for chromadex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Load errors (file, decode)
//   - 3XX: Embedding service errors
//   - 4XX: Vector store errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryLoad indicates document loading errors.
	CategoryLoad Category = "LOAD"
	// CategoryEmbed indicates embedding service errors.
	CategoryEmbed Category = "EMBED"
	// CategoryStore indicates vector store errors.
	CategoryStore Category = "STORE"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199). All fatal before any I/O happens.
	ErrCodeMissingAPIKey  = "ERR_101_MISSING_API_KEY"
	ErrCodeRootNotFound   = "ERR_102_ROOT_NOT_FOUND"
	ErrCodeChunkPolicy    = "ERR_103_INVALID_CHUNK_POLICY"
	ErrCodeConfigInvalid  = "ERR_104_CONFIG_INVALID"
	ErrCodeEmptyAllowlist = "ERR_105_EMPTY_ALLOWLIST"

	// Load errors (200-299). Non-fatal per file, counted in the summary.
	ErrCodeFileUnreadable = "ERR_201_FILE_UNREADABLE"
	ErrCodeFileNotText    = "ERR_202_FILE_NOT_TEXT"
	ErrCodeFileTooLarge   = "ERR_203_FILE_TOO_LARGE"

	// Embedding service errors (300-399).
	ErrCodeEmbedTimeout     = "ERR_301_EMBED_TIMEOUT"
	ErrCodeEmbedRateLimited = "ERR_302_EMBED_RATE_LIMITED"
	ErrCodeEmbedAuth        = "ERR_303_EMBED_AUTH"
	ErrCodeEmbedRequest     = "ERR_304_EMBED_BAD_REQUEST"
	ErrCodeEmbedService     = "ERR_305_EMBED_SERVICE"

	// Vector store errors (400-499).
	ErrCodeStoreUnavailable  = "ERR_401_STORE_UNAVAILABLE"
	ErrCodeStoreUpsert       = "ERR_402_STORE_UPSERT_FAILED"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeCollectionCreate  = "ERR_404_COLLECTION_CREATE_FAILED"

	// Internal errors (500-599).
	ErrCodeInternal    = "ERR_501_INTERNAL"
	ErrCodeRunLocked   = "ERR_502_RUN_LOCKED"
	ErrCodeInterrupted = "ERR_503_INTERRUPTED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract the hundreds digit (e.g., '1' from "ERR_101_MISSING_API_KEY").
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryLoad
	case '3':
		return CategoryEmbed
	case '4':
		return CategoryStore
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryLoad:
		// Individual file failures never abort the run.
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Auth rejections and malformed requests are permanent; everything that
// can be a transient network or service condition is retryable.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbedTimeout, ErrCodeEmbedRateLimited, ErrCodeEmbedService,
		ErrCodeStoreUnavailable, ErrCodeStoreUpsert:
		return true
	default:
		return false
	}
}
