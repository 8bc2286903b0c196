package ingest

import "unicode"

// Chunk is a slice of extracted text. Start and End are rune offsets.
type Chunk struct {
	Index int
	Start int
	End   int
	Text  string
}

// Chunker splits text into overlapping windows of runes.
type Chunker struct {
	size    int
	overlap int
	minSize int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the target chunk length in characters.
func WithChunkSize(n int) ChunkerOption {
	return func(c *Chunker) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithOverlap sets the overlap as a fraction of the chunk size.
func WithOverlap(fraction float64) ChunkerOption {
	return func(c *Chunker) {
		if fraction >= 0 && fraction < 1 {
			c.overlap = int(float64(c.size) * fraction)
		}
	}
}

// WithMinChunkSize merges trailing fragments shorter than n into the
// previous chunk.
func WithMinChunkSize(n int) ChunkerOption {
	return func(c *Chunker) {
		if n >= 0 {
			c.minSize = n
		}
	}
}

// NewChunker returns a chunker, defaulting to 1000 characters with 20%
// overlap and a 100 character minimum. WithOverlap is relative to the size
// in effect when it is applied, so pass WithChunkSize first.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: 1000, overlap: 200, minSize: 100}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.size {
		c.overlap = c.size - 1
	}
	if c.minSize >= c.size {
		c.minSize = c.size - 1
	}
	return c
}

// Split cuts text into ordered chunks. Cuts prefer the last whitespace in
// the second half of a window. Split is pure: the same input always
// yields the same chunks.
func (c *Chunker) Split(text string) []Chunk {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < n {
		end := start + c.size
		if end >= n {
			end = n
		} else {
			end = c.softBreak(runes, start, end)
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Start: start, End: end})
		if end == n {
			break
		}
		next := end - c.overlap
		if next <= start {
			next = end
		}
		start = next
	}

	if k := len(chunks); k > 1 && chunks[k-1].End-chunks[k-1].Start < c.minSize {
		chunks[k-2].End = chunks[k-1].End
		chunks = chunks[:k-1]
	}

	for i := range chunks {
		chunks[i].Text = string(runes[chunks[i].Start:chunks[i].End])
	}
	return chunks
}

// softBreak never cuts at or before start+overlap, so the next window
// still begins after start and shares the full overlap with this one.
func (c *Chunker) softBreak(runes []rune, start, end int) int {
	floor := start + max(c.size/2, c.overlap+1)
	for i := end; i > floor; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return end
}
