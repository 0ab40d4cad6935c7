package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit_WindowOffsets(t *testing.T) {
	text := strings.Repeat("a", 2500)

	chunks, err := Split(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	// Stride is 800, so windows start at 0, 800, 1600.
	assert.Equal(t, text[0:1000], chunks[0])
	assert.Equal(t, text[800:1800], chunks[1])
	assert.Equal(t, text[1600:], chunks[2])
	assert.Len(t, chunks[2], 900)
}

func TestSplit_FinalChunkClamped(t *testing.T) {
	text := strings.Repeat("x", 1001)

	chunks, err := Split(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, text[800:], chunks[1])
}

func TestSplit_ShortTextSingleChunk(t *testing.T) {
	chunks, err := Split("short text", 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "short text", chunks[0])
}

func TestSplit_ExactSizeSingleChunk(t *testing.T) {
	text := strings.Repeat("b", 1000)

	chunks, err := Split(text, 1000, 200)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
}

func TestSplit_EmptyText(t *testing.T) {
	chunks, err := Split("", 1000, 200)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplit_CoversAllContent(t *testing.T) {
	// Every byte of the input must appear in at least one chunk.
	text := strings.Repeat("abcdefghij", 487)

	chunks, err := Split(text, 1000, 200)
	require.NoError(t, err)

	rebuilt := chunks[0]
	for i := 1; i < len(chunks); i++ {
		// Each chunk after the first overlaps the previous by 200 bytes.
		rebuilt += chunks[i][200:]
	}
	assert.Equal(t, text, rebuilt)
}

func TestSplit_Deterministic(t *testing.T) {
	text := strings.Repeat("deterministic ", 300)

	first, err := Split(text, 500, 100)
	require.NoError(t, err)
	second, err := Split(text, 500, 100)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSplit_InvalidSize(t *testing.T) {
	_, err := Split("text", 0, 0)
	assert.Error(t, err)

	_, err = Split("text", -5, 0)
	assert.Error(t, err)
}

func TestSplit_InvalidOverlap(t *testing.T) {
	_, err := Split("text", 100, -1)
	assert.Error(t, err)

	_, err = Split("text", 100, 100)
	assert.Error(t, err)

	_, err = Split("text", 100, 150)
	assert.Error(t, err)
}
