package search

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/embeddings"
	"github.com/ziadkadry99/compound-rag/internal/vectordb"
)

// Passage is a retrieved chunk with its combined relevance score.
type Passage struct {
	DocumentID   string  `json:"document_id"`
	Title        string  `json:"title,omitempty"`
	ChunkIndex   int     `json:"chunk_index"`
	Start        int     `json:"start"`
	End          int     `json:"end"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
}

// RetrieverOptions tunes candidate generation and fusion.
type RetrieverOptions struct {
	CandidateK    int
	MinScore      float64
	VectorWeight  float64
	KeywordWeight float64
}

// Retrieval is the ranked output of one retrieval. Degraded is set when
// one of the two search modes failed and only the other contributed.
type Retrieval struct {
	Passages []Passage
	Degraded bool
}

// HybridRetriever fuses vector similarity and keyword relevance over the
// documents of a resolved scope.
type HybridRetriever struct {
	index    vectordb.Index
	embedder embeddings.Embedder
	opts     RetrieverOptions
}

func NewHybridRetriever(index vectordb.Index, embedder embeddings.Embedder, opts RetrieverOptions) *HybridRetriever {
	if opts.CandidateK <= 0 {
		opts.CandidateK = 20
	}
	if opts.VectorWeight <= 0 && opts.KeywordWeight <= 0 {
		opts.VectorWeight, opts.KeywordWeight = 0.7, 0.3
	}
	return &HybridRetriever{index: index, embedder: embedder, opts: opts}
}

type hitKey struct {
	doc   string
	chunk int
}

// Retrieve returns at most topK passages from documentIDs in indexName,
// ordered by score desc, then document id and start offset asc. An empty
// scope returns nothing without touching the index.
func (r *HybridRetriever) Retrieve(ctx context.Context, indexName, query string, documentIDs []string, topK int) (*Retrieval, error) {
	if len(documentIDs) == 0 || topK <= 0 {
		return &Retrieval{}, nil
	}
	filter := vectordb.Filter{DocumentIDs: documentIDs}

	var (
		wg              sync.WaitGroup
		vecHits, kwHits []vectordb.Hit
		vecErr, kwErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		vecs, err := r.embedder.Embed(ctx, []string{query})
		if err != nil {
			vecErr = apperr.FromExternal(err, apperr.KindEmbedding, apperr.CodeEmbeddingFailed, "embedding query")
			return
		}
		if len(vecs) == 0 {
			vecErr = apperr.New(apperr.KindEmbedding, apperr.CodeEmbeddingFailed, "embedder returned no vector")
			return
		}
		vecHits, vecErr = r.index.SearchVector(ctx, indexName, vecs[0], filter, r.opts.CandidateK)
	}()
	go func() {
		defer wg.Done()
		kwHits, kwErr = r.index.SearchKeyword(ctx, indexName, query, filter, r.opts.CandidateK)
	}()
	wg.Wait()

	vw, kw := r.opts.VectorWeight, r.opts.KeywordWeight
	degraded := false
	switch {
	case vecErr != nil && kwErr != nil:
		return nil, apperr.FromExternal(errors.Join(vecErr, kwErr), apperr.KindExternalService,
			apperr.CodeUnavailable, "searching documents")
	case vecErr != nil:
		log.Warn().Err(vecErr).Str("index", indexName).Msg("vector search failed, using keyword results only")
		vw, kw, degraded = 0, 1, true
	case kwErr != nil:
		log.Warn().Err(kwErr).Str("index", indexName).Msg("keyword search failed, using vector results only")
		vw, kw, degraded = 1, 0, true
	}

	merged := make(map[hitKey]*Passage)
	get := func(h vectordb.Hit) *Passage {
		k := hitKey{h.DocumentID, h.ChunkIndex}
		p, ok := merged[k]
		if !ok {
			p = &Passage{DocumentID: h.DocumentID, ChunkIndex: h.ChunkIndex, Start: h.Start, End: h.End, Text: h.Text}
			merged[k] = p
		}
		return p
	}
	for _, h := range vecHits {
		get(h).VectorScore = clamp01(h.Score)
	}
	var maxKW float64
	for _, h := range kwHits {
		maxKW = max(maxKW, h.Score)
	}
	for _, h := range kwHits {
		if maxKW > 0 {
			get(h).KeywordScore = h.Score / maxKW
		}
	}

	total := vw + kw
	out := make([]Passage, 0, len(merged))
	for _, p := range merged {
		p.Score = (vw*p.VectorScore + kw*p.KeywordScore) / total
		if p.Score < r.opts.MinScore {
			continue
		}
		out = append(out, *p)
	}
	rank(out)
	if len(out) > topK {
		out = out[:topK]
	}
	return &Retrieval{Passages: out, Degraded: degraded}, nil
}

func rank(ps []Passage) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Score != ps[j].Score {
			return ps[i].Score > ps[j].Score
		}
		if ps[i].DocumentID != ps[j].DocumentID {
			return ps[i].DocumentID < ps[j].DocumentID
		}
		return ps[i].Start < ps[j].Start
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
