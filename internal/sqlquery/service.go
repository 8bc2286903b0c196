package sqlquery

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

// CompoundChecker validates the compound scope of a request.
type CompoundChecker interface {
	RequireCompound(ctx context.Context, id string) error
}

// Request is one database search.
type Request struct {
	Query   string
	Table   string
	Columns []string
	Summary bool
}

// Result is the single response shape of a database search.
type Result struct {
	Query     string           `json:"query"`
	Table     string           `json:"table_name"`
	Columns   []string         `json:"columns"`
	Statement string           `json:"statement"`
	Results   []map[string]any `json:"results"`
	RowCount  int              `json:"row_count"`
	Truncated bool             `json:"truncated"`
	Summary   string           `json:"summary,omitempty"`
	// Degraded is set when a summary was requested but could not be
	// produced; the rows are still returned.
	Degraded bool `json:"degraded"`
}

// Service wires translation, execution and the optional summary.
type Service struct {
	compounds  CompoundChecker
	schema     *Schema
	translator *Translator
	executor   *Executor
	summarizer *Summarizer
}

func NewService(compounds CompoundChecker, schema *Schema, translator *Translator, executor *Executor, summarizer *Summarizer) *Service {
	return &Service{
		compounds:  compounds,
		schema:     schema,
		translator: translator,
		executor:   executor,
		summarizer: summarizer,
	}
}

// Tables lists the allow-listed schema.
func (s *Service) Tables() []Table {
	return s.schema.Tables()
}

// SearchDatabase answers req against one allow-listed table on behalf of
// compoundID.
func (s *Service) SearchDatabase(ctx context.Context, compoundID string, req Request) (*Result, error) {
	if err := s.compounds.RequireCompound(ctx, strings.TrimSpace(compoundID)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Table) == "" {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "table_name is required")
	}

	q, err := s.translator.Translate(ctx, req.Query, req.Table, req.Columns)
	if err != nil {
		return nil, err
	}
	stmt, _ := q.SQL()

	rs, err := s.executor.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Query:     strings.TrimSpace(req.Query),
		Table:     q.Table,
		Columns:   q.Columns,
		Statement: stmt,
		Results:   rs.Rows,
		RowCount:  len(rs.Rows),
		Truncated: rs.Truncated,
	}
	if !req.Summary {
		return res, nil
	}
	summary, err := s.summarizer.Summarize(ctx, res.Query, rs)
	if err != nil {
		log.Warn().Err(err).Str("table", q.Table).Msg("summary failed, returning rows only")
		res.Degraded = true
		return res, nil
	}
	res.Summary = summary
	return res, nil
}
