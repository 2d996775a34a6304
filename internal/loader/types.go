package loader

import "time"

// Document is one file read from the tree, ready for chunking.
type Document struct {
	// Path is relative to the walk root, using forward slashes.
	// It is the stable identifier recorded in the vector store.
	Path string

	// AbsPath is the absolute filesystem path.
	AbsPath string

	// Content is the full file text.
	Content string

	// Size is the file size in bytes.
	Size int64

	// ModTime is the file modification time.
	ModTime time.Time
}

// Result carries either a loaded document or a walk error.
type Result struct {
	Doc *Document
	Err error
}

// SkipReason classifies why a file was passed over.
type SkipReason string

const (
	SkipExtension SkipReason = "extension"
	SkipExcluded  SkipReason = "excluded"
	SkipTooLarge  SkipReason = "too_large"
	SkipBinary    SkipReason = "binary"
	SkipUnreadable SkipReason = "unreadable"
)

// Stats summarizes one Load pass. Read it only after the result
// channel has been drained.
type Stats struct {
	// Seen is the number of regular files visited by the walk.
	Seen int64

	// Loaded is the number of documents emitted.
	Loaded int64

	// Skipped counts passed-over files by reason.
	Skipped map[SkipReason]int64
}

// TotalSkipped returns the sum across all skip reasons.
func (s Stats) TotalSkipped() int64 {
	var total int64
	for _, n := range s.Skipped {
		total += n
	}
	return total
}
