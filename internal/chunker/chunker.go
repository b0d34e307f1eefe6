package chunker

import (
	"strings"
	"unicode/utf8"

	"notebook-rag/internal/models"
)

// Splitter cuts text into overlapping segments of at most ChunkSize
// characters, with consecutive segments sharing ChunkOverlap characters.
type Splitter struct {
	ChunkSize    int
	ChunkOverlap int
}

func NewSplitter(chunkSize, chunkOverlap int) Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return Splitter{ChunkSize: chunkSize, ChunkOverlap: chunkOverlap}
}

// Split produces the ordered chunk sequence for content. The output is
// deterministic: the same content and configuration always split identically.
// Content shorter than ChunkSize yields a single chunk.
func (s Splitter) Split(content string) []models.Chunk {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if len(content) <= s.ChunkSize {
		return []models.Chunk{{Content: content, Index: 0}}
	}

	var chunks []models.Chunk
	start := 0
	for start < len(content) {
		end := start + s.ChunkSize
		if end >= len(content) {
			end = len(content)
		} else {
			end = breakPoint(content, start, end)
			// A hard cut can land inside a multi-byte rune; back up to the
			// rune start so every chunk stays valid UTF-8.
			for end > start+1 && !utf8.RuneStart(content[end]) {
				end--
			}
		}

		piece := strings.TrimSpace(content[start:end])
		if piece != "" {
			chunks = append(chunks, models.Chunk{Content: piece, Index: len(chunks)})
		}
		if end == len(content) {
			break
		}

		// Advance from the actual cut so the overlap window never skips text,
		// even when the break point landed well before start+ChunkSize.
		next := end - s.ChunkOverlap
		if next <= start {
			next = start + 1
		}
		for next < len(content) && !utf8.RuneStart(content[next]) {
			next++
		}
		start = next
	}
	return chunks
}

// breakPoint searches backwards through the tail of the candidate chunk for a
// natural boundary: paragraph break first, then sentence end, then word
// boundary. Without one, the hard cut at end stands.
func breakPoint(content string, start, end int) int {
	lookBack := (end - start) / 5
	if lookBack < 1 {
		return end
	}
	floor := end - lookBack

	if i := strings.LastIndex(content[floor:end], "\n\n"); i >= 0 {
		return floor + i + 2
	}
	for i := end - 1; i >= floor && i > start; i-- {
		if isSentenceEnd(content, i) {
			return i + 1
		}
	}
	for i := end - 1; i >= floor && i > start; i-- {
		if content[i] == ' ' || content[i] == '\n' {
			return i + 1
		}
	}
	return end
}

func isSentenceEnd(content string, i int) bool {
	switch content[i] {
	case '.', '!', '?':
	default:
		return false
	}
	return i+1 >= len(content) || content[i+1] == ' ' || content[i+1] == '\n'
}
