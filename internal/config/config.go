// Package config provides the chromadex run configuration.
// Configuration is resolved once at startup, in order of increasing
// precedence: built-in defaults, the optional .chromadex.yaml project
// file, then environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	cerrors "github.com/chromadex/chromadex/internal/errors"
)

// Environment variables honored by Load. CHROMADB_HOST, CHROMADB_PORT and
// OPENAI_API_KEY form the external contract; CHROMADEX_* cover the rest.
const (
	EnvStoreHost  = "CHROMADB_HOST"
	EnvStorePort  = "CHROMADB_PORT"
	EnvAPIKey     = "OPENAI_API_KEY"
	EnvCollection = "CHROMADEX_COLLECTION"
	EnvModel      = "CHROMADEX_MODEL"
	EnvChunkSize  = "CHROMADEX_CHUNK_SIZE"
	EnvOverlap    = "CHROMADEX_CHUNK_OVERLAP"
	EnvBatchSize  = "CHROMADEX_BATCH_SIZE"
	EnvWorkers    = "CHROMADEX_WORKERS"
	EnvLogLevel   = "CHROMADEX_LOG_LEVEL"
)

// Default values for the indexing pipeline.
const (
	DefaultStoreHost    = "localhost"
	DefaultStorePort    = 8000
	DefaultCollection   = "codebase"
	DefaultModel        = "text-embedding-3-small"
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultBatchSize    = 32
	DefaultMaxFileSize  = 10 * 1024 * 1024
	DefaultHTTPTimeout  = 60 * time.Second
)

// defaultExtensions is the extension allow-list applied when neither the
// project file nor the environment provides one.
var defaultExtensions = []string{
	"go", "ts", "tsx", "js", "jsx", "py", "rb", "rs", "java", "c", "h",
	"cpp", "cs", "sh", "sql", "yaml", "yml", "toml", "json", "md", "txt",
}

// defaultExcludePatterns are always excluded from the walk.
var defaultExcludePatterns = []string{
	"node_modules",
	".git",
	"vendor",
	"__pycache__",
	"dist",
	"build",
	"target",
	".venv",
	".idea",
	".vscode",
}

// Config is the complete configuration for one indexing run.
// It is constructed once, validated once, and passed into the pipeline.
type Config struct {
	// RootDir is the directory tree to index.
	RootDir string `yaml:"root_dir"`

	// StoreHost and StorePort locate the ChromaDB endpoint.
	StoreHost string `yaml:"store_host"`
	StorePort int    `yaml:"store_port"`

	// Collection is the target collection name.
	Collection string `yaml:"collection"`

	// APIKey is the OpenAI API key. Never read from the project file.
	APIKey string `yaml:"-"`

	// Model is the embedding model identifier.
	Model string `yaml:"model"`

	// Extensions is the file extension allow-list (without leading dots).
	Extensions []string `yaml:"extensions"`

	// ExcludePatterns are directory/file names pruned during the walk.
	ExcludePatterns []string `yaml:"exclude"`

	// ChunkSize and ChunkOverlap define the window policy, in characters.
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`

	// BoundaryTolerance is how far (in characters) a chunk end may move
	// backward to land on a natural boundary. 0 disables snapping.
	BoundaryTolerance int `yaml:"boundary_tolerance"`

	// BatchSize is the number of chunks per embedding/upsert batch.
	BatchSize int `yaml:"batch_size"`

	// Workers bounds concurrent file reads and in-flight batches.
	Workers int `yaml:"workers"`

	// MaxFileSize is the largest file the loader will read, in bytes.
	MaxFileSize int64 `yaml:"max_file_size"`

	// HTTPTimeout is the per-request timeout for embedder and store calls.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	LogLevel string `yaml:"log_level"`
}

// New returns a Config populated with defaults. RootDir is left empty;
// callers set it from the CLI argument or project-root discovery.
func New() *Config {
	return &Config{
		StoreHost:       DefaultStoreHost,
		StorePort:       DefaultStorePort,
		Collection:      DefaultCollection,
		Model:           DefaultModel,
		Extensions:      append([]string(nil), defaultExtensions...),
		ExcludePatterns: append([]string(nil), defaultExcludePatterns...),
		ChunkSize:       DefaultChunkSize,
		ChunkOverlap:    DefaultChunkOverlap,
		BatchSize:       DefaultBatchSize,
		Workers:         runtime.NumCPU(),
		MaxFileSize:     DefaultMaxFileSize,
		HTTPTimeout:     DefaultHTTPTimeout,
		LogLevel:        "info",
	}
}

// Load resolves the configuration for an indexing run rooted at dir.
// Precedence, lowest to highest: defaults, .chromadex.yaml in dir,
// environment variables.
func Load(dir string) (*Config, error) {
	cfg := New()
	cfg.RootDir = dir

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}
	cfg.applyEnv()

	return cfg, nil
}

// loadFromFile merges the project config file if one exists.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{".chromadex.yaml", ".chromadex.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		c.mergeWith(&parsed)
		return nil
	}
	// No config file is fine - use defaults
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.StoreHost != "" {
		c.StoreHost = other.StoreHost
	}
	if other.StorePort != 0 {
		c.StorePort = other.StorePort
	}
	if other.Collection != "" {
		c.Collection = other.Collection
	}
	if other.Model != "" {
		c.Model = other.Model
	}
	if len(other.Extensions) > 0 {
		c.Extensions = other.Extensions
	}
	if len(other.ExcludePatterns) > 0 {
		// Merge with defaults rather than replace
		c.ExcludePatterns = append(c.ExcludePatterns, other.ExcludePatterns...)
	}
	if other.ChunkSize != 0 {
		c.ChunkSize = other.ChunkSize
	}
	if other.ChunkOverlap != 0 {
		c.ChunkOverlap = other.ChunkOverlap
	}
	if other.BoundaryTolerance != 0 {
		c.BoundaryTolerance = other.BoundaryTolerance
	}
	if other.BatchSize != 0 {
		c.BatchSize = other.BatchSize
	}
	if other.Workers != 0 {
		c.Workers = other.Workers
	}
	if other.MaxFileSize != 0 {
		c.MaxFileSize = other.MaxFileSize
	}
	if other.HTTPTimeout != 0 {
		c.HTTPTimeout = other.HTTPTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnv applies environment variable overrides (highest precedence).
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvStoreHost); v != "" {
		c.StoreHost = v
	}
	if v := os.Getenv(EnvStorePort); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.StorePort = p
		}
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvCollection); v != "" {
		c.Collection = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.Model = v
	}
	if v := os.Getenv(EnvChunkSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ChunkSize = n
		}
	}
	if v := os.Getenv(EnvOverlap); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.ChunkOverlap = n
		}
	}
	if v := os.Getenv(EnvBatchSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.BatchSize = n
		}
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Workers = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Endpoint returns the store endpoint as host:port.
func (c *Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.StoreHost, c.StorePort)
}

// Validate checks the configuration and returns an error if invalid.
// It runs once at startup, before any file or network I/O.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return cerrors.New(cerrors.ErrCodeMissingAPIKey,
			fmt.Sprintf("%s is not set", EnvAPIKey), nil).
			WithSuggestion(fmt.Sprintf("export %s or add it to a .env file", EnvAPIKey))
	}

	if c.RootDir == "" {
		return cerrors.New(cerrors.ErrCodeRootNotFound, "root directory is not set", nil)
	}
	info, err := os.Stat(c.RootDir)
	if err != nil {
		return cerrors.New(cerrors.ErrCodeRootNotFound,
			fmt.Sprintf("root directory %s", c.RootDir), err)
	}
	if !info.IsDir() {
		return cerrors.New(cerrors.ErrCodeRootNotFound,
			fmt.Sprintf("root path is not a directory: %s", c.RootDir), nil)
	}

	if c.ChunkSize <= 0 {
		return cerrors.New(cerrors.ErrCodeChunkPolicy,
			fmt.Sprintf("chunk_size must be positive, got %d", c.ChunkSize), nil)
	}
	if c.ChunkOverlap < 0 {
		return cerrors.New(cerrors.ErrCodeChunkPolicy,
			fmt.Sprintf("chunk_overlap must be non-negative, got %d", c.ChunkOverlap), nil)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return cerrors.New(cerrors.ErrCodeChunkPolicy,
			fmt.Sprintf("chunk_overlap (%d) must be smaller than chunk_size (%d)",
				c.ChunkOverlap, c.ChunkSize), nil)
	}
	if c.BoundaryTolerance < 0 {
		return cerrors.New(cerrors.ErrCodeChunkPolicy,
			fmt.Sprintf("boundary_tolerance must be non-negative, got %d", c.BoundaryTolerance), nil)
	}

	if len(c.Extensions) == 0 {
		return cerrors.New(cerrors.ErrCodeEmptyAllowlist, "extension allow-list is empty", nil)
	}

	if c.BatchSize <= 0 {
		return cerrors.ConfigError(fmt.Sprintf("batch_size must be positive, got %d", c.BatchSize), nil)
	}
	if c.Workers <= 0 {
		return cerrors.ConfigError(fmt.Sprintf("workers must be positive, got %d", c.Workers), nil)
	}

	if c.StoreHost == "" {
		return cerrors.ConfigError("store host is empty", nil)
	}
	if c.StorePort <= 0 || c.StorePort > 65535 {
		return cerrors.ConfigError(fmt.Sprintf("store port out of range: %d", c.StorePort), nil)
	}

	if c.Collection == "" {
		return cerrors.ConfigError("collection name is empty", nil)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return cerrors.ConfigError(
			fmt.Sprintf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel), nil)
	}

	return nil
}

// FindProjectRoot finds the project root directory by walking up from
// startDir looking for a .git directory or a .chromadex.yaml/.yml file.
// Returns the absolute start directory if no marker is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if fileExists(filepath.Join(currentDir, ".chromadex.yaml")) ||
			fileExists(filepath.Join(currentDir, ".chromadex.yml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// dirExists checks if a directory exists.
func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
