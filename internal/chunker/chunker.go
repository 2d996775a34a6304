// Package chunker splits documents into overlapping character windows.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Defaults for the window policy, in characters.
const (
	DefaultSize    = 1000
	DefaultOverlap = 100
)

// Chunk is one window of a document, the unit that gets embedded and
// upserted.
type Chunk struct {
	// ID is derived deterministically from the source path, the chunk
	// index, and the text, so re-indexing unchanged content overwrites
	// rather than duplicates.
	ID string

	// SourcePath is the document path relative to the walk root.
	SourcePath string

	// Index is the 0-based position of this chunk within its document.
	Index int

	// Text is the window content.
	Text string

	// Start and End are rune offsets of the window within the document.
	// End is exclusive.
	Start int
	End   int
}

// Policy controls how documents are split.
type Policy struct {
	// Size is the window length in characters (runes).
	Size int

	// Overlap is how many characters each window shares with its
	// predecessor. Must be smaller than Size.
	Overlap int

	// BoundaryTolerance is how far a window end may move backward to
	// land after a newline or space instead of splitting mid-token.
	// 0 disables snapping and windows are cut at exact offsets.
	BoundaryTolerance int
}

// Chunker splits document text into overlapping windows.
type Chunker struct {
	policy Policy
}

// New creates a Chunker. Size must be positive and Overlap must be
// non-negative and smaller than Size.
func New(policy Policy) (*Chunker, error) {
	if policy.Size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", policy.Size)
	}
	if policy.Overlap < 0 {
		return nil, fmt.Errorf("chunk overlap must be non-negative, got %d", policy.Overlap)
	}
	if policy.Overlap >= policy.Size {
		return nil, fmt.Errorf("chunk overlap (%d) must be smaller than chunk size (%d)",
			policy.Overlap, policy.Size)
	}
	if policy.BoundaryTolerance < 0 {
		return nil, fmt.Errorf("boundary tolerance must be non-negative, got %d", policy.BoundaryTolerance)
	}
	return &Chunker{policy: policy}, nil
}

// Policy returns the chunker's window policy.
func (c *Chunker) Policy() Policy {
	return c.policy
}

// Split divides content into chunks. Empty content yields no chunks;
// content no longer than the window size yields exactly one. Offsets
// and sizes are measured in runes so multi-byte text never splits
// inside a code point.
func (c *Chunker) Split(sourcePath, content string) []Chunk {
	if content == "" {
		return nil
	}

	runes := []rune(content)
	size := c.policy.Size
	overlap := c.policy.Overlap

	if len(runes) <= size {
		text := string(runes)
		return []Chunk{{
			ID:         ChunkID(sourcePath, 0, text),
			SourcePath: sourcePath,
			Index:      0,
			Text:       text,
			Start:      0,
			End:        len(runes),
		}}
	}

	var chunks []Chunk
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			end = len(runes)
		} else if c.policy.BoundaryTolerance > 0 {
			// Never snap back past start+overlap or the next window
			// would not advance
			end = snapToBoundary(runes, end, c.policy.BoundaryTolerance, start+overlap)
		}

		text := string(runes[start:end])
		chunks = append(chunks, Chunk{
			ID:         ChunkID(sourcePath, len(chunks), text),
			SourcePath: sourcePath,
			Index:      len(chunks),
			Text:       text,
			Start:      start,
			End:        end,
		})

		if end == len(runes) {
			return chunks
		}
		start = end - overlap
	}
}

// snapToBoundary moves end backward (at most tolerance runes, never at
// or before minStart) so the cut lands just after a newline, or failing
// that just after a space. Returns the original end when no boundary is
// found within tolerance.
func snapToBoundary(runes []rune, end, tolerance, minStart int) int {
	limit := end - tolerance
	if limit <= minStart {
		limit = minStart + 1
	}
	spaceCut := -1
	for i := end - 1; i >= limit; i-- {
		switch runes[i] {
		case '\n':
			return i + 1
		case ' ', '\t':
			if spaceCut < 0 {
				spaceCut = i + 1
			}
		}
	}
	if spaceCut > minStart {
		return spaceCut
	}
	return end
}

// ChunkID returns the deterministic record key for a chunk: the first
// 16 hex characters of SHA-256 over the source path, the chunk index,
// and the text, NUL-separated.
func ChunkID(sourcePath string, index int, text string) string {
	h := sha256.New()
	h.Write([]byte(sourcePath))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", index)
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// CountChunks predicts how many chunks Split produces for a document of
// contentLen runes under the given policy, assuming no boundary
// snapping: ceil((L - overlap) / (size - overlap)) for L > size.
func CountChunks(contentLen int, policy Policy) int {
	if contentLen <= 0 {
		return 0
	}
	if contentLen <= policy.Size {
		return 1
	}
	stride := policy.Size - policy.Overlap
	return (contentLen - policy.Overlap + stride - 1) / stride
}

// Preview returns a short single-line excerpt of a chunk for logging.
func Preview(text string, max int) string {
	text = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return ' '
		}
		return r
	}, text)
	if utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "..."
}
