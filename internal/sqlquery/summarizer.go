package sqlquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/llm"
)

// NoRecordsSummary is returned for an empty result without a model call.
const NoRecordsSummary = "No matching records were found."

const summaryPrompt = `You summarize database query results for the person who asked the question.
Use only the rows provided. Do not invent values. If the rows were cut short, say that the summary covers only the rows shown.`

type SummarizerOptions struct {
	Model         string
	MaxRows       int
	ContextBudget int // characters of row data placed in the prompt
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
}

// Summarizer writes a natural-language recap of a result set.
type Summarizer struct {
	provider llm.Provider
	opts     SummarizerOptions
}

func NewSummarizer(provider llm.Provider, opts SummarizerOptions) *Summarizer {
	if opts.MaxRows <= 0 {
		opts.MaxRows = 50
	}
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 12000
	}
	return &Summarizer{provider: provider, opts: opts}
}

// Summarize recaps rs in answer to question. Rows beyond MaxRows or the
// context budget are left out of the prompt.
func (s *Summarizer) Summarize(ctx context.Context, question string, rs *ResultSet) (string, error) {
	if rs == nil || len(rs.Rows) == 0 {
		return NoRecordsSummary, nil
	}
	if s.provider == nil {
		return "", apperr.New(apperr.KindExternalService, apperr.CodeUnavailable, "no language model is configured")
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model:       s.opts.Model,
		Messages:    llm.Grounded(summaryPrompt, s.renderRows(rs), question),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		return "", apperr.FromExternal(err, apperr.KindExternalService, apperr.CodeUnavailable, "summarizing rows")
	}
	return strings.TrimSpace(resp.Content), nil
}

func (s *Summarizer) renderRows(rs *ResultSet) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Columns: %s\nRows (one JSON object per line):\n", strings.Join(rs.Columns, ", "))
	shown := 0
	for _, row := range rs.Rows {
		if shown == s.opts.MaxRows {
			break
		}
		line, err := json.Marshal(row)
		if err != nil {
			continue
		}
		if sb.Len()+len(line)+1 > s.opts.ContextBudget && shown > 0 {
			break
		}
		sb.Write(line)
		sb.WriteByte('\n')
		shown++
	}
	if omitted := len(rs.Rows) - shown; omitted > 0 || rs.Truncated {
		fmt.Fprintf(&sb, "(%d of the returned rows are shown; the result may contain more)\n", shown)
	}
	return strings.TrimSpace(sb.String())
}
