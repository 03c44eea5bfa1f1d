package text

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunk is one overlapping slice of a longer text
type Chunk struct {
	Index   int
	Total   int
	Content string
	Start   int // rune offset into the source text
}

// Split cuts s into chunks of at most size runes, each starting overlap runes before the end
// of the previous one. Cuts prefer whitespace in the last fifth of a chunk. Text no longer
// than size is returned as a single chunk.
func Split(s string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	runes := []rune(s)
	if len(runes) <= size {
		return []Chunk{{Index: 0, Total: 1, Content: s}}
	}

	var chunks []Chunk
	start := 0
	for start < len(runes) {
		end := min(start+size, len(runes))
		if end < len(runes) {
			end = softBoundary(runes, start, end, size)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, Chunk{Index: len(chunks), Content: content, Start: start})
		}
		if end >= len(runes) {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}

func softBoundary(runes []rune, start, end, size int) int {
	floor := end - size/5
	for i := end; i > floor && i > start; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
