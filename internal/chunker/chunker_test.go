package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustNew(t *testing.T, p Policy) *Chunker {
	t.Helper()
	c, err := New(p)
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		ok     bool
	}{
		{"defaults", Policy{Size: DefaultSize, Overlap: DefaultOverlap}, true},
		{"zero overlap", Policy{Size: 100, Overlap: 0}, true},
		{"zero size", Policy{Size: 0, Overlap: 0}, false},
		{"negative size", Policy{Size: -1, Overlap: 0}, false},
		{"negative overlap", Policy{Size: 100, Overlap: -1}, false},
		{"overlap equals size", Policy{Size: 100, Overlap: 100}, false},
		{"overlap exceeds size", Policy{Size: 100, Overlap: 150}, false},
		{"negative tolerance", Policy{Size: 100, Overlap: 10, BoundaryTolerance: -1}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.policy)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestSplit_EmptyDocument(t *testing.T) {
	c := mustNew(t, Policy{Size: 100, Overlap: 20})
	assert.Empty(t, c.Split("a.go", ""))
}

func TestSplit_SmallDocument(t *testing.T) {
	c := mustNew(t, Policy{Size: 100, Overlap: 20})

	chunks := c.Split("a.go", "short content")
	require.Len(t, chunks, 1)
	assert.Equal(t, "short content", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len("short content"), chunks[0].End)
}

func TestSplit_ExactWindowSize(t *testing.T) {
	c := mustNew(t, Policy{Size: 100, Overlap: 20})

	chunks := c.Split("a.go", strings.Repeat("x", 100))
	require.Len(t, chunks, 1)
}

func TestSplit_WindowsAndOverlap(t *testing.T) {
	c := mustNew(t, Policy{Size: 100, Overlap: 20})
	content := strings.Repeat("x", 300)

	chunks := c.Split("a.go", content)
	// ceil((300-20)/(100-20)) = 4
	require.Len(t, chunks, 4)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 100, chunks[0].End)
	assert.Equal(t, 80, chunks[1].Start)
	assert.Equal(t, 180, chunks[1].End)
	assert.Equal(t, 160, chunks[2].Start)
	assert.Equal(t, 260, chunks[2].End)
	assert.Equal(t, 240, chunks[3].Start)
	assert.Equal(t, 300, chunks[3].End)

	// Consecutive chunks share exactly the overlap
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Equal(t, prev.End-20, cur.Start)
		assert.Equal(t, prev.Text[len(prev.Text)-20:], cur.Text[:20])
	}
}

func TestSplit_CoversWholeDocument(t *testing.T) {
	c := mustNew(t, Policy{Size: 64, Overlap: 16})
	content := strings.Repeat("abcdefgh", 50) // 400 chars

	chunks := c.Split("a.go", content)
	require.NotEmpty(t, chunks)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(content), chunks[len(chunks)-1].End)
	for i := 1; i < len(chunks); i++ {
		// No gaps
		assert.LessOrEqual(t, chunks[i].Start, chunks[i-1].End)
		assert.Greater(t, chunks[i].End, chunks[i-1].End)
	}
}

func TestSplit_CountMatchesFormula(t *testing.T) {
	c := mustNew(t, Policy{Size: 100, Overlap: 20})

	for _, length := range []int{1, 50, 100, 101, 180, 181, 260, 300, 1000} {
		content := strings.Repeat("y", length)
		chunks := c.Split("a.go", content)
		assert.Len(t, chunks, CountChunks(length, c.Policy()), "length %d", length)
	}
	assert.Equal(t, 0, CountChunks(0, c.Policy()))
}

func TestSplit_ZeroOverlap(t *testing.T) {
	c := mustNew(t, Policy{Size: 10, Overlap: 0})
	content := strings.Repeat("z", 25)

	chunks := c.Split("a.go", content)
	require.Len(t, chunks, 3)
	assert.Equal(t, 10, len(chunks[0].Text))
	assert.Equal(t, 10, len(chunks[1].Text))
	assert.Equal(t, 5, len(chunks[2].Text))
}

func TestSplit_MultiByteRunes(t *testing.T) {
	c := mustNew(t, Policy{Size: 10, Overlap: 2})
	content := strings.Repeat("héllo日本語", 5) // 40 runes, multi-byte

	chunks := c.Split("a.go", content)
	require.NotEmpty(t, chunks)

	// Every chunk is valid UTF-8 cut on rune boundaries
	var rebuilt []rune
	for i, ch := range chunks {
		runes := []rune(ch.Text)
		assert.Equal(t, ch.End-ch.Start, len(runes))
		if i == 0 {
			rebuilt = append(rebuilt, runes...)
		} else {
			rebuilt = append(rebuilt, runes[2:]...)
		}
	}
	assert.Equal(t, content, string(rebuilt))
}

func TestSplit_BoundarySnapping(t *testing.T) {
	c := mustNew(t, Policy{Size: 20, Overlap: 4, BoundaryTolerance: 8})
	content := "first line here\nsecond line text\nthird line words\n"

	chunks := c.Split("a.go", content)
	require.Greater(t, len(chunks), 1)

	// Non-final chunks end just after a newline when one is in range
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n"),
		"chunk %q should end at the newline", chunks[0].Text)
	// Full coverage is preserved
	assert.Equal(t, len([]rune(content)), chunks[len(chunks)-1].End)
}

func TestSplit_SnappingAlwaysAdvances(t *testing.T) {
	// Tolerance larger than the stride must not stall the walk
	c := mustNew(t, Policy{Size: 10, Overlap: 8, BoundaryTolerance: 50})
	content := strings.Repeat("word ", 40)

	chunks := c.Split("a.go", content)
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
	assert.Equal(t, len([]rune(content)), chunks[len(chunks)-1].End)
}

func TestChunkID_Deterministic(t *testing.T) {
	a := ChunkID("src/main.go", 0, "package main")
	b := ChunkID("src/main.go", 0, "package main")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestChunkID_DiscriminatesInputs(t *testing.T) {
	base := ChunkID("src/main.go", 0, "package main")
	assert.NotEqual(t, base, ChunkID("src/other.go", 0, "package main"))
	assert.NotEqual(t, base, ChunkID("src/main.go", 1, "package main"))
	assert.NotEqual(t, base, ChunkID("src/main.go", 0, "package other"))
}

func TestSplit_IdenticalContentDifferentFiles(t *testing.T) {
	c := mustNew(t, Policy{Size: 100, Overlap: 20})
	content := strings.Repeat("same", 10)

	a := c.Split("a.go", content)
	b := c.Split("b.go", content)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].ID, b[0].ID)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "short", Preview("short", 10))
	assert.Equal(t, "a b c", Preview("a\nb\tc", 10))
	assert.Equal(t, "0123456789...", Preview("0123456789abcdef", 10))
}
