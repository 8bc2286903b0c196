package vectordb

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"golang.org/x/sync/errgroup"

	"github.com/ziadkadry99/compound-rag/internal/db"
	"github.com/ziadkadry99/compound-rag/internal/embeddings"
)

// Store implements Index with chromem-go collections for vectors and the
// sqlite FTS5 chunk table for keywords. Each index name maps to its own
// chromem collection.
type Store struct {
	vectors     *chromem.DB
	lexical     *db.DB
	embedFunc   chromem.EmbeddingFunc
	concurrency int

	mu sync.Mutex // serializes collection creation
}

var _ Index = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithConcurrency bounds the number of per-document vector queries run in
// parallel when a search is filtered to specific documents.
func WithConcurrency(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// NewStore opens the vector side under vectorDir, persisted and compressed.
// An empty vectorDir keeps vectors in memory.
func NewStore(vectorDir string, lexical *db.DB, embedder embeddings.Embedder, opts ...Option) (*Store, error) {
	var (
		vdb *chromem.DB
		err error
	)
	if vectorDir == "" {
		vdb = chromem.NewDB()
	} else {
		vdb, err = chromem.NewPersistentDB(vectorDir, true)
		if err != nil {
			return nil, fmt.Errorf("opening vector store %s: %w", vectorDir, err)
		}
	}

	s := &Store{
		vectors:     vdb,
		lexical:     lexical,
		embedFunc:   embeddings.ToChromemFunc(embedder),
		concurrency: 5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) collection(indexName string, create bool) (*chromem.Collection, error) {
	if !create {
		return s.vectors.GetCollection(indexName, s.embedFunc), nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.vectors.GetOrCreateCollection(indexName, nil, s.embedFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection %s: %w", indexName, err)
	}
	return col, nil
}

func (s *Store) Upsert(ctx context.Context, indexName, documentID string, chunks []Chunk) error {
	if err := s.DeleteDocument(ctx, indexName, documentID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	col, err := s.collection(indexName, true)
	if err != nil {
		return err
	}

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        chunkID(documentID, c.Index),
			Content:   c.Text,
			Embedding: c.Embedding,
			Metadata: map[string]string{
				"document_id": documentID,
				"chunk_index": strconv.Itoa(c.Index),
				"start":       strconv.Itoa(c.Start),
				"end":         strconv.Itoa(c.End),
			},
		}
	}
	if err := col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding vectors for %s: %w", documentID, err)
	}

	if err := s.insertLexical(ctx, indexName, documentID, chunks); err != nil {
		// Keep both sides consistent: no half-indexed documents.
		_ = col.Delete(ctx, map[string]string{"document_id": documentID}, nil)
		return err
	}
	return nil
}

func (s *Store) DeleteDocument(ctx context.Context, indexName, documentID string) error {
	if col, _ := s.collection(indexName, false); col != nil {
		if err := col.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
			return fmt.Errorf("deleting vectors for %s: %w", documentID, err)
		}
	}
	if _, err := s.lexical.ExecContext(ctx,
		`DELETE FROM chunks WHERE index_name = ? AND document_id = ?`, indexName, documentID); err != nil {
		return fmt.Errorf("deleting chunks for %s: %w", documentID, err)
	}
	return nil
}

func (s *Store) SearchVector(ctx context.Context, indexName string, vector []float32, filter Filter, topK int) ([]Hit, error) {
	if topK <= 0 || len(vector) == 0 {
		return nil, nil
	}
	col, _ := s.collection(indexName, false)
	if col == nil {
		return nil, nil
	}
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	// chromem-go requires nResults <= collection size.
	n := min(topK, count)

	if len(filter.DocumentIDs) == 0 {
		results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("vector query on %s: %w", indexName, err)
		}
		return toHits(results), nil
	}

	var (
		mu   sync.Mutex
		hits []Hit
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range filter.DocumentIDs {
		g.Go(func() error {
			results, err := col.QueryEmbedding(gctx, vector, n, map[string]string{"document_id": id}, nil)
			if err != nil {
				return fmt.Errorf("vector query on %s for %s: %w", indexName, id, err)
			}
			mu.Lock()
			hits = append(hits, toHits(results)...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sortHits(hits)
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (s *Store) Count(ctx context.Context, indexName string) (int, error) {
	var n int
	err := s.lexical.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE index_name = ?`, indexName).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting chunks in %s: %w", indexName, err)
	}
	return n, nil
}

func chunkID(documentID string, index int) string {
	return documentID + "#" + strconv.Itoa(index)
}

func toHits(results []chromem.Result) []Hit {
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		idx, _ := strconv.Atoi(r.Metadata["chunk_index"])
		start, _ := strconv.Atoi(r.Metadata["start"])
		end, _ := strconv.Atoi(r.Metadata["end"])
		hits = append(hits, Hit{
			DocumentID: r.Metadata["document_id"],
			ChunkIndex: idx,
			Start:      start,
			End:        end,
			Text:       r.Content,
			Score:      float64(r.Similarity),
		})
	}
	return hits
}

// sortHits orders by score, breaking ties by position so results are stable.
func sortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].DocumentID != hits[j].DocumentID {
			return hits[i].DocumentID < hits[j].DocumentID
		}
		return hits[i].ChunkIndex < hits[j].ChunkIndex
	})
}
