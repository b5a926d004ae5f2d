// Package chunk splits document text into fixed-size word windows.
package chunk

import (
	"strings"
)

// DefaultSize is the number of words per chunk when none is configured.
const DefaultSize = 150

// Chunk is one retrievable window of a document.
type Chunk struct {
	// Text is the window's words joined by single spaces. Never empty.
	Text string
	// Source names the originating document, relative to the corpus root.
	Source string
	// Position is the 0-based ordinal of the chunk within its document.
	Position int
}

// Split breaks text into consecutive, non-overlapping windows of size words.
// Line breaks count as whitespace. Empty or whitespace-only text yields no
// chunks; size <= 0 uses DefaultSize.
func Split(text string, size int) []string {
	if size <= 0 {
		size = DefaultSize
	}

	text = strings.NewReplacer("\r", " ", "\n", " ").Replace(text)
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	out := make([]string, 0, (len(words)+size-1)/size)
	for start := 0; start < len(words); start += size {
		end := min(start+size, len(words))
		out = append(out, strings.Join(words[start:end], " "))
	}
	return out
}

// Chunker splits documents and tags each window with its origin.
type Chunker struct {
	size int
}

// New returns a Chunker producing windows of size words.
func New(size int) *Chunker {
	if size <= 0 {
		size = DefaultSize
	}
	return &Chunker{size: size}
}

// Size returns the configured window size in words.
func (c *Chunker) Size() int {
	return c.size
}

// Chunk splits text and tags every window with source and its position.
func (c *Chunker) Chunk(source, text string) []Chunk {
	parts := Split(text, c.size)
	chunks := make([]Chunk, len(parts))
	for i, p := range parts {
		chunks[i] = Chunk{Text: p, Source: source, Position: i}
	}
	return chunks
}
