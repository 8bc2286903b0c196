package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", Fingerprint([]byte("abc")))
	assert.Equal(t, Fingerprint([]byte("same")), Fingerprint([]byte("same")))
	assert.NotEqual(t, Fingerprint([]byte("a")), Fingerprint([]byte("b")))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "compound-a-b-1", Sanitize("Compound A/B__1"))
	assert.Equal(t, "abc", Sanitize("--abc--"))

	hashed := Sanitize("!!!")
	assert.True(t, strings.HasPrefix(hashed, "idx-"))
	assert.Len(t, hashed, len("idx-")+8)

	long := Sanitize(strings.Repeat("a", 300))
	assert.Len(t, long, 128)

	assert.Equal(t, "compound-acme", IndexName("ACME"))
	assert.Equal(t, "idx-doc-42", IndexerName("42"))
}

func TestChunker_EmptyAndShort(t *testing.T) {
	c := NewChunker(WithChunkSize(100), WithOverlap(0.2), WithMinChunkSize(50))
	assert.Empty(t, c.Split(""))

	chunks := c.Split("tiny")
	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{Index: 0, Start: 0, End: 4, Text: "tiny"}, chunks[0])
}

func TestChunker_OverlapWindows(t *testing.T) {
	c := NewChunker(WithChunkSize(10), WithOverlap(0.2), WithMinChunkSize(3))
	text := strings.Repeat("a", 25)

	chunks := c.Split(text)
	require.Len(t, chunks, 3)
	assert.Equal(t, [2]int{0, 10}, [2]int{chunks[0].Start, chunks[0].End})
	assert.Equal(t, [2]int{8, 18}, [2]int{chunks[1].Start, chunks[1].End})
	assert.Equal(t, [2]int{16, 25}, [2]int{chunks[2].Start, chunks[2].End})
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.Equal(t, text[ch.Start:ch.End], ch.Text)
	}
}

func TestChunker_MergesShortTail(t *testing.T) {
	c := NewChunker(WithChunkSize(10), WithOverlap(0), WithMinChunkSize(3))

	chunks := c.Split(strings.Repeat("b", 21))
	require.Len(t, chunks, 2)
	assert.Equal(t, 10, chunks[1].Start)
	assert.Equal(t, 21, chunks[1].End)
	assert.Len(t, chunks[1].Text, 11)
}

func TestChunker_PrefersWhitespace(t *testing.T) {
	c := NewChunker(WithChunkSize(12), WithOverlap(0), WithMinChunkSize(0))

	chunks := c.Split("hello world foo bar")
	require.Len(t, chunks, 2)
	assert.Equal(t, "hello world ", chunks[0].Text)
	assert.Equal(t, "foo bar", chunks[1].Text)
}

func TestChunker_RuneOffsetsAndDeterminism(t *testing.T) {
	c := NewChunker(WithChunkSize(4), WithOverlap(0), WithMinChunkSize(0))
	text := "héllo wörld"

	first := c.Split(text)
	second := c.Split(text)
	assert.Equal(t, first, second)

	runes := []rune(text)
	last := first[len(first)-1]
	assert.Equal(t, len(runes), last.End)
	for _, ch := range first {
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
	}
}

func TestChunker_WhitespaceKeepsOverlap(t *testing.T) {
	c := NewChunker(WithChunkSize(10), WithOverlap(0.6), WithMinChunkSize(0))
	chunks := c.Split("aaaaa " + strings.Repeat("b", 15))
	require.Greater(t, len(chunks), 1)
	assert.Equal(t, chunks[0].End-6, chunks[1].Start)

	c = NewChunker(WithChunkSize(20), WithOverlap(0.5), WithMinChunkSize(0))
	text := strings.Repeat("lorem ipsum ", 40)
	chunks = c.Split(text)
	require.Greater(t, len(chunks), 1)
	assert.LessOrEqual(t, len(chunks), len(text)/5+1)
	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		assert.Greater(t, cur.Start, prev.Start)
		assert.Equal(t, 10, prev.End-cur.Start, "chunk %d", i)
		assert.True(t, strings.HasPrefix(cur.Text, text[cur.Start:prev.End]))
		assert.True(t, strings.HasSuffix(prev.Text, text[cur.Start:prev.End]))
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].End)
}
