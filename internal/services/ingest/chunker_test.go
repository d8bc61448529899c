// File: internal/services/ingest/chunker_test.go
package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkText_ShortTextSingleChunk(t *testing.T) {
	chunks := ChunkText("  本研究为I期临床试验。  ", 500, 50)
	require.Len(t, chunks, 1)
	assert.Equal(t, "本研究为I期临床试验。", chunks[0])
}

func TestChunkText_BlankTextReturnsNothing(t *testing.T) {
	assert.Empty(t, ChunkText("   \n\t  ", 500, 50))
	assert.Empty(t, ChunkText("", 500, 50))
}

func TestChunkText_SplitsLongTextAtSentenceBoundaries(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString("受试者须签署知情同意书。")
	}
	text := b.String()

	chunks := ChunkText(text, 50, 10)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.True(t, strings.HasSuffix(chunk, "。"), "chunk should end at a sentence boundary: %q", chunk)
	}
}

func TestChunkText_OverlapCarriesTailForward(t *testing.T) {
	text := strings.Repeat("第一句话内容。", 5) + strings.Repeat("第二句话内容。", 5)

	chunks := ChunkText(text, 30, 7)
	require.Greater(t, len(chunks), 1)

	first := []rune(chunks[0])
	tail := string(first[len(first)-7:])
	assert.True(t, strings.HasPrefix(chunks[1], tail),
		"second chunk %q should start with the last 7 runes of the first %q", chunks[1], tail)
}

func TestChunkText_DefaultsForInvalidParameters(t *testing.T) {
	// zero chunk size falls back to DefaultChunkSize, so short text stays whole
	chunks := ChunkText("入选标准与排除标准。", 0, -5)
	require.Len(t, chunks, 1)
	assert.Equal(t, "入选标准与排除标准。", chunks[0])
}

func TestChunkText_LatinSentences(t *testing.T) {
	text := strings.Repeat("Subjects must provide written informed consent before screening. ", 10)

	chunks := ChunkText(text, 100, 20)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.NotEmpty(t, chunk)
	}
}
