package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/ingest"
)

// Outcome tells callers how a search ended without inspecting the answer text.
type Outcome string

const (
	OutcomeAnswered   Outcome = "answered"
	OutcomeEmptyScope Outcome = "empty_scope"
	OutcomeNoResults  Outcome = "no_results"
)

// Source is one cited passage, labelled with the marker used in the answer.
type Source struct {
	Citation   string  `json:"citation"`
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	FileName   string  `json:"file_name"`
	ChunkIndex int     `json:"chunk_index"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
}

// Result is the single response shape of every document search.
type Result struct {
	Query    string    `json:"query"`
	Answer   string    `json:"answer"`
	Sources  []Source  `json:"sources"`
	Passages []Passage `json:"passages"`
	Outcome  Outcome   `json:"outcome"`
	// Degraded is set when part of the pipeline was unavailable and the
	// result was assembled from what remained.
	Degraded bool `json:"degraded"`
}

// Service wires scope resolution, retrieval and synthesis.
type Service struct {
	store     *catalog.Store
	resolver  *ScopeResolver
	retriever *HybridRetriever
	synth     *AnswerSynthesizer
	topK      int
	maxTopK   int
}

func NewService(store *catalog.Store, retriever *HybridRetriever, synth *AnswerSynthesizer, topK int) *Service {
	if topK <= 0 {
		topK = 5
	}
	return &Service{
		store:     store,
		resolver:  NewScopeResolver(store),
		retriever: retriever,
		synth:     synth,
		topK:      topK,
		maxTopK:   max(topK, retriever.opts.CandidateK),
	}
}

// SearchDocuments answers query from the compound's indexed documents,
// optionally restricted to documentIDs.
func (s *Service) SearchDocuments(ctx context.Context, compoundID, query string, documentIDs []string, topK int) (*Result, error) {
	return s.search(ctx, compoundID, query, ScopeRequest{DocumentIDs: documentIDs}, topK)
}

// SearchDepartmentDocuments answers query from the documents assigned to
// a department of the compound.
func (s *Service) SearchDepartmentDocuments(ctx context.Context, compoundID, departmentID, query string, topK int) (*Result, error) {
	if strings.TrimSpace(departmentID) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "department_id is required")
	}
	return s.search(ctx, compoundID, query, ScopeRequest{DepartmentID: departmentID}, topK)
}

func (s *Service) search(ctx context.Context, compoundID, query string, scope ScopeRequest, topK int) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "query is required")
	}
	if topK <= 0 {
		topK = s.topK
	}
	topK = min(topK, s.maxTopK)

	ids, err := s.resolver.Resolve(ctx, compoundID, scope)
	if err != nil {
		return nil, err
	}
	res := &Result{Query: query, Sources: []Source{}, Passages: []Passage{}}
	if len(ids) == 0 {
		res.Answer, res.Outcome = EmptyScopeAnswer, OutcomeEmptyScope
		return res, nil
	}

	retrieval, err := s.retriever.Retrieve(ctx, ingest.IndexName(compoundID), query, ids, topK)
	if err != nil {
		return nil, err
	}
	res.Degraded = retrieval.Degraded

	docs, err := s.documents(ctx, compoundID, retrieval.Passages)
	if err != nil {
		return nil, err
	}
	for i := range retrieval.Passages {
		retrieval.Passages[i].Title = docs[retrieval.Passages[i].DocumentID].Title
	}
	res.Passages = append(res.Passages, retrieval.Passages...)

	answer, err := s.synth.Synthesize(ctx, query, retrieval.Passages)
	if err != nil {
		return nil, err
	}
	res.Answer = answer.Text
	res.Degraded = res.Degraded || answer.Degraded
	if len(retrieval.Passages) == 0 {
		res.Outcome = OutcomeNoResults
		return res, nil
	}

	res.Outcome = OutcomeAnswered
	for i, p := range answer.Cited {
		res.Sources = append(res.Sources, Source{
			Citation:   fmt.Sprintf("doc%d", i+1),
			DocumentID: p.DocumentID,
			Title:      p.Title,
			FileName:   docs[p.DocumentID].FileName,
			ChunkIndex: p.ChunkIndex,
			Start:      p.Start,
			End:        p.End,
			Score:      p.Score,
		})
	}
	return res, nil
}

func (s *Service) documents(ctx context.Context, compoundID string, passages []Passage) (map[string]catalog.Document, error) {
	seen := make(map[string]bool)
	var ids []string
	for _, p := range passages {
		if !seen[p.DocumentID] {
			seen[p.DocumentID] = true
			ids = append(ids, p.DocumentID)
		}
	}
	docs, err := s.store.GetDocuments(ctx, compoundID, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]catalog.Document, len(docs))
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}
