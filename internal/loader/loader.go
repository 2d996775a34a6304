// Package loader walks a directory tree and streams readable text
// documents matching an extension allow-list, pruning excluded
// directories without descending into them.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	cerrors "github.com/chromadex/chromadex/internal/errors"
)

// Options configure a Loader.
type Options struct {
	// RootDir is the tree to walk.
	RootDir string

	// Extensions is the allow-list, without leading dots. A file whose
	// extension is not listed is skipped. Matching is case-insensitive.
	Extensions []string

	// ExcludePatterns are names/patterns pruned during the walk. A
	// pattern matching a directory stops descent into it entirely.
	ExcludePatterns []string

	// MaxFileSize skips files larger than this many bytes. Zero means
	// no limit.
	MaxFileSize int64

	// Workers bounds concurrent file reads. Defaults to NumCPU.
	Workers int
}

// Loader discovers and reads indexable files under a root directory.
type Loader struct {
	root     string
	exts     map[string]struct{}
	excludes []string
	maxSize  int64
	workers  int

	mu    sync.Mutex
	stats Stats
}

// New creates a Loader. The root directory must exist.
func New(opts Options) (*Loader, error) {
	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, cerrors.New(cerrors.ErrCodeRootNotFound,
			fmt.Sprintf("root directory not found: %s", absRoot), err).
			WithSuggestion("check the path passed to the index command")
	}
	if !info.IsDir() {
		return nil, cerrors.New(cerrors.ErrCodeRootNotFound,
			fmt.Sprintf("root path is not a directory: %s", absRoot), nil)
	}

	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, e := range opts.Extensions {
		exts[strings.ToLower(strings.TrimPrefix(e, "."))] = struct{}{}
	}
	if len(exts) == 0 {
		return nil, cerrors.New(cerrors.ErrCodeEmptyAllowlist,
			"extension allow-list is empty", nil)
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &Loader{
		root:     absRoot,
		exts:     exts,
		excludes: opts.ExcludePatterns,
		maxSize:  opts.MaxFileSize,
		workers:  workers,
		stats:    Stats{Skipped: make(map[SkipReason]int64)},
	}, nil
}

// Root returns the absolute walk root.
func (l *Loader) Root() string {
	return l.root
}

// Load walks the tree and streams documents. The channel is closed when
// the walk and all reads are done. Unreadable or non-text files are
// counted and logged, never fatal. Walk-level failures arrive as a
// Result with Err set.
func (l *Loader) Load(ctx context.Context) <-chan Result {
	results := make(chan Result, l.workers*4)
	paths := make(chan string, l.workers*4)

	go func() {
		defer close(results)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(paths)
			return l.walk(gctx, paths)
		})

		for i := 0; i < l.workers; i++ {
			g.Go(func() error {
				for path := range paths {
					if err := l.read(gctx, path, results); err != nil {
						return err
					}
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			select {
			case results <- Result{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return results
}

// Stats returns a snapshot of the counters. Valid once the result
// channel from Load has been drained.
func (l *Loader) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := Stats{
		Seen:    l.stats.Seen,
		Loaded:  l.stats.Loaded,
		Skipped: make(map[SkipReason]int64, len(l.stats.Skipped)),
	}
	for k, v := range l.stats.Skipped {
		out.Skipped[k] = v
	}
	return out
}

func (l *Loader) count(fn func(*Stats)) {
	l.mu.Lock()
	fn(&l.stats)
	l.mu.Unlock()
}

// walk traverses the tree, pruning excluded directories, and sends
// candidate file paths to the workers.
func (l *Loader) walk(ctx context.Context, paths chan<- string) error {
	return filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil // Skip entries we can't access
		}

		relPath, err := filepath.Rel(l.root, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			return nil
		}

		if d.IsDir() {
			if l.excluded(relPath) {
				slog.Debug("pruned directory", slog.String("path", relPath))
				return filepath.SkipDir
			}
			return nil
		}

		// Never follow symlinks
		if d.Type()&fs.ModeSymlink != 0 {
			return nil
		}

		l.count(func(s *Stats) { s.Seen++ })

		if l.excluded(relPath) {
			l.count(func(s *Stats) { s.Skipped[SkipExcluded]++ })
			return nil
		}

		if !l.allowed(relPath) {
			l.count(func(s *Stats) { s.Skipped[SkipExtension]++ })
			return nil
		}

		if l.maxSize > 0 {
			info, err := d.Info()
			if err != nil {
				l.count(func(s *Stats) { s.Skipped[SkipUnreadable]++ })
				return nil
			}
			if info.Size() > l.maxSize {
				slog.Debug("skipping large file",
					slog.String("path", relPath),
					slog.Int64("size", info.Size()))
				l.count(func(s *Stats) { s.Skipped[SkipTooLarge]++ })
				return nil
			}
		}

		select {
		case paths <- path:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
}

// read loads a single file and emits it as a Document if it is text.
func (l *Loader) read(ctx context.Context, path string, results chan<- Result) error {
	relPath, err := filepath.Rel(l.root, path)
	if err != nil {
		relPath = path
	}
	relPath = filepath.ToSlash(relPath)

	info, err := os.Stat(path)
	if err != nil {
		slog.Warn("cannot stat file", slog.String("path", relPath), slog.String("error", err.Error()))
		l.count(func(s *Stats) { s.Skipped[SkipUnreadable]++ })
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("cannot read file", slog.String("path", relPath), slog.String("error", err.Error()))
		l.count(func(s *Stats) { s.Skipped[SkipUnreadable]++ })
		return nil
	}

	if !isText(data) {
		l.count(func(s *Stats) { s.Skipped[SkipBinary]++ })
		return nil
	}

	doc := &Document{
		Path:    relPath,
		AbsPath: path,
		Content: string(data),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	select {
	case results <- Result{Doc: doc}:
		l.count(func(s *Stats) { s.Loaded++ })
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// allowed reports whether the file's extension is on the allow-list.
func (l *Loader) allowed(relPath string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(relPath), "."))
	if ext == "" {
		return false
	}
	_, ok := l.exts[ext]
	return ok
}

// excluded reports whether the path matches any exclude pattern.
func (l *Loader) excluded(relPath string) bool {
	baseName := filepath.Base(relPath)
	for _, pattern := range l.excludes {
		if matchPattern(baseName, relPath, pattern) {
			return true
		}
	}
	return false
}

// matchPattern checks a path against one exclude pattern. Supported
// forms: bare names ("node_modules"), **/name/**, dir/**, *.ext and
// *substring* globs against the base name.
func matchPattern(baseName, relPath, pattern string) bool {
	// **/name/** and **/name match any path component
	if strings.HasPrefix(pattern, "**/") {
		suffix := strings.TrimSuffix(strings.TrimPrefix(pattern, "**/"), "/**")
		for _, part := range strings.Split(relPath, "/") {
			if part == suffix {
				return true
			}
		}
		return false
	}

	// dir/** matches the directory itself and anything under it
	if strings.HasSuffix(pattern, "/**") {
		prefix := strings.TrimSuffix(pattern, "/**")
		return relPath == prefix || strings.HasPrefix(relPath, prefix+"/")
	}

	// *substring*
	if strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*") && len(pattern) > 2 {
		middle := strings.TrimSuffix(strings.TrimPrefix(pattern, "*"), "*")
		return strings.Contains(strings.ToLower(baseName), strings.ToLower(middle))
	}

	// *.ext and other base-name globs
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		matched, err := filepath.Match(pattern, baseName)
		return err == nil && matched
	}

	// Bare name: match as a path component anywhere, so "node_modules"
	// prunes nested node_modules directories too
	if !strings.Contains(pattern, "/") {
		if baseName == pattern {
			return true
		}
		for _, part := range strings.Split(relPath, "/") {
			if part == pattern {
				return true
			}
		}
		return false
	}

	// Path-anchored pattern: exact prefix
	return relPath == pattern || strings.HasPrefix(relPath, pattern+"/")
}

// isText reports whether data looks like UTF-8 text. Files containing
// NUL bytes or invalid UTF-8 are treated as binary.
func isText(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	probe := data
	if len(probe) > 512 {
		probe = probe[:512]
	}
	if bytes.IndexByte(probe, 0) >= 0 {
		return false
	}
	return utf8.Valid(data)
}
