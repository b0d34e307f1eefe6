package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notebook-rag/internal/models"
)

func TestSplitShortInputSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20)
	chunks := s.Split("The sky is blue.")

	require.Len(t, chunks, 1)
	assert.Equal(t, "The sky is blue.", chunks[0].Content)
	assert.Equal(t, 0, chunks[0].Index)
}

func TestSplitEmptyInput(t *testing.T) {
	s := NewSplitter(100, 20)
	assert.Nil(t, s.Split(""))
	assert.Nil(t, s.Split("   \n\t  "))
}

func TestSplitCoversEveryWord(t *testing.T) {
	var b strings.Builder
	words := []string{
		"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf",
		"hotel", "india", "juliett", "kilo", "lima", "mike", "november",
		"oscar", "papa", "quebec", "romeo", "sierra", "tango", "uniform",
	}
	for i := 0; i < 12; i++ {
		for _, w := range words {
			b.WriteString(w)
			b.WriteString(" ")
		}
		b.WriteString("\n\n")
	}
	text := strings.TrimSpace(b.String())

	s := NewSplitter(120, 30)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	joined := strings.Join(chunkContents(chunks), " ")
	for _, w := range words {
		assert.Contains(t, joined, w)
	}

	// First and last chunks anchor the start and end of the input.
	assert.True(t, strings.HasPrefix(text, chunks[0].Content[:10]))
	last := chunks[len(chunks)-1].Content
	assert.True(t, strings.HasSuffix(text, last[len(last)-10:]))
}

func TestSplitChunkSizeRespected(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet consectetur. ", 50)
	s := NewSplitter(200, 40)
	for _, c := range s.Split(text) {
		assert.LessOrEqual(t, len(c.Content), 200)
		assert.NotEmpty(t, strings.TrimSpace(c.Content))
	}
}

func TestSplitConsecutiveChunksOverlap(t *testing.T) {
	text := strings.Repeat("one two three four five six seven eight nine ten. ", 40)
	s := NewSplitter(150, 50)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 2)

	for i := 1; i < len(chunks); i++ {
		head := chunks[i].Content
		if len(head) > 20 {
			head = head[:20]
		}
		// The head of each chunk was already seen at the tail of the previous one.
		assert.Contains(t, chunks[i-1].Content, strings.TrimSpace(head),
			"chunk %d does not overlap its predecessor", i)
	}
}

func TestSplitDeterministic(t *testing.T) {
	text := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 30)
	s := NewSplitter(180, 60)
	assert.Equal(t, s.Split(text), s.Split(text))
}

func TestSplitPrefersSentenceBoundary(t *testing.T) {
	text := strings.Repeat("This is a full sentence that ends cleanly. ", 20)
	s := NewSplitter(100, 20)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)
	// All but the last chunk should end at a sentence boundary.
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c.Content, "."), "chunk %q cut mid-sentence", c.Content)
	}
}

func TestSplitIndexesAreSequential(t *testing.T) {
	text := strings.Repeat("word ", 500)
	chunks := NewSplitter(100, 10).Split(text)
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
	}
}

func TestSplitKeepsMultiByteRunesIntact(t *testing.T) {
	// No spaces and no ASCII sentence ends, so every cut is a hard cut that
	// would land mid-rune without boundary adjustment.
	text := strings.Repeat("日本語のテキストです", 20)
	s := NewSplitter(50, 10)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c.Content), "chunk %d is not valid UTF-8: %q", c.Index, c.Content)
		assert.Contains(t, text, c.Content)
	}
}

func TestNewSplitterClampsOverlap(t *testing.T) {
	s := NewSplitter(100, 100)
	assert.Equal(t, 50, s.ChunkOverlap)

	s = NewSplitter(100, -5)
	assert.Equal(t, 0, s.ChunkOverlap)
}

func chunkContents(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Content
	}
	return out
}
