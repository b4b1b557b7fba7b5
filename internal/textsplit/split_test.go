package textsplit

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitBlank(t *testing.T) {
	s := New(DefaultChunkSize, DefaultChunkOverlap)

	for _, in := range []string{"", "   ", "\n\n"} {
		chunks, err := s.Split(in)
		require.NoError(t, err)
		assert.Empty(t, chunks, "input %q", in)
	}
}

func TestSplitShortTextIsOneChunk(t *testing.T) {
	s := New(DefaultChunkSize, DefaultChunkOverlap)

	chunks, err := s.Split("A dog runs across a sunny park.")
	require.NoError(t, err)
	assert.Equal(t, []string{"A dog runs across a sunny park."}, chunks)
}

func TestSplitLongTextRespectsChunkSize(t *testing.T) {
	s := New(DefaultChunkSize, DefaultChunkOverlap)

	sentence := "The camera pans across a crowded market while vendors call out prices. "
	text := strings.Repeat(sentence, 20)
	n := utf8.RuneCountInString(text)

	chunks, err := s.Split(text)
	require.NoError(t, err)

	// Overlapping chunks advance by size-overlap runes at a time.
	stride := DefaultChunkSize - DefaultChunkOverlap
	want := (n + stride - 1) / stride
	assert.InDelta(t, want, len(chunks), 1, "%d runes split into %d chunks", n, len(chunks))

	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitPrefersParagraphBreaks(t *testing.T) {
	s := New(DefaultChunkSize, DefaultChunkOverlap)

	first := strings.Repeat("a", 120)
	second := strings.Repeat("b", 120)

	chunks, err := s.Split(first + "\n\n" + second)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, chunks)
}

func TestNewClampsInvalidSizes(t *testing.T) {
	s := New(0, 500)

	chunks, err := s.Split(strings.Repeat("word ", 200))
	require.NoError(t, err)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), DefaultChunkSize)
	}
}
