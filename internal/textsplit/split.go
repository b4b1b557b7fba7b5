// Package textsplit breaks summaries into overlapping chunks for embedding.
package textsplit

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// Defaults used for video summaries.
const (
	DefaultChunkSize    = 200
	DefaultChunkOverlap = 50
)

// DefaultSeparators are tried in order, from paragraph breaks down to single characters.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter is a recursive character splitter: text is cut on the first
// separator that yields pieces no longer than the chunk size, and adjacent
// chunks share up to the configured overlap.
type Splitter struct {
	rc textsplitter.RecursiveCharacter
}

// New builds a Splitter. Non-positive sizes fall back to the defaults and
// an overlap not smaller than the chunk size is clamped.
func New(chunkSize, chunkOverlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 4
	}

	return &Splitter{
		rc: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators(DefaultSeparators),
		),
	}
}

// Split returns the non-empty chunks of text. Blank input yields no chunks.
func (s *Splitter) Split(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	parts, err := s.rc.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	chunks := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			chunks = append(chunks, p)
		}
	}
	return chunks, nil
}
