package vectordb

import "context"

// Index stores document chunks and serves both similarity and keyword
// search over them. Each compound owns one named index; every operation is
// scoped to exactly one index name.
type Index interface {
	// Upsert replaces every chunk of documentID in indexName with chunks.
	Upsert(ctx context.Context, indexName, documentID string, chunks []Chunk) error

	// DeleteDocument removes every chunk of documentID from indexName.
	DeleteDocument(ctx context.Context, indexName, documentID string) error

	// SearchVector returns up to topK chunks closest to vector.
	SearchVector(ctx context.Context, indexName string, vector []float32, filter Filter, topK int) ([]Hit, error)

	// SearchKeyword returns up to topK chunks matching the words of text.
	SearchKeyword(ctx context.Context, indexName, text string, filter Filter, topK int) ([]Hit, error)

	// Count returns the number of chunks stored for indexName.
	Count(ctx context.Context, indexName string) (int, error)
}

// Chunk is one embedded slice of a document. Start and End are rune
// offsets into the extracted text.
type Chunk struct {
	DocumentID string
	Index      int
	Start      int
	End        int
	Text       string
	Embedding  []float32
}

// Hit is a chunk returned by a search. For vector hits Score is the cosine
// similarity; for keyword hits it is the magnitude of the bm25 rank, so
// larger is better in both cases.
type Hit struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// Filter narrows a search. An empty DocumentIDs means the whole index.
type Filter struct {
	DocumentIDs []string
}
