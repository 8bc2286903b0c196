package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/compound-rag/internal/llm"
)

// Fixed answers returned without consulting the model.
const (
	NoPassagesAnswer = "I couldn't find relevant information in the documents."
	EmptyScopeAnswer = "I don't have any relevant documents to search through."
)

const systemPrompt = `You are an assistant that answers questions using only the numbered document excerpts provided.
Cite every statement with the excerpt marker it came from, for example [doc1].
If the excerpts do not contain the answer, say that the documents do not contain this information.
Do not use outside knowledge.`

// SynthesizerOptions tunes answer generation.
type SynthesizerOptions struct {
	Model         string
	ContextBudget int // characters of excerpt text placed in the prompt
	MaxTokens     int
	Temperature   float64
	Timeout       time.Duration
}

// Answer is a grounded reply. Cited holds exactly the passages that were
// placed in the prompt, in prompt order; Degraded is set when the model
// was unavailable and Text is empty.
type Answer struct {
	Text     string
	Cited    []Passage
	Degraded bool
}

// AnswerSynthesizer writes an answer from retrieved passages only.
type AnswerSynthesizer struct {
	provider llm.Provider
	opts     SynthesizerOptions
}

// NewAnswerSynthesizer returns a synthesizer. A nil provider always
// degrades to passages without an answer.
func NewAnswerSynthesizer(provider llm.Provider, opts SynthesizerOptions) *AnswerSynthesizer {
	if opts.ContextBudget <= 0 {
		opts.ContextBudget = 12000
	}
	return &AnswerSynthesizer{provider: provider, opts: opts}
}

// Synthesize answers question from passages, which must be ranked best
// first. Zero passages yields NoPassagesAnswer without a model call.
func (s *AnswerSynthesizer) Synthesize(ctx context.Context, question string, passages []Passage) (*Answer, error) {
	if len(passages) == 0 {
		return &Answer{Text: NoPassagesAnswer}, nil
	}

	prompt, cited := s.buildContext(passages)
	if s.provider == nil {
		return &Answer{Cited: cited, Degraded: true}, nil
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Model:       s.opts.Model,
		Messages:    llm.Grounded(systemPrompt, prompt, question),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
	})
	if err != nil {
		log.Warn().Err(err).Str("provider", s.provider.Name()).Msg("answer synthesis failed, returning passages only")
		return &Answer{Cited: cited, Degraded: true}, nil
	}
	return &Answer{Text: strings.TrimSpace(resp.Content), Cited: cited}, nil
}

// buildContext numbers passages as [docN] until the character budget is
// spent. Lower-ranked passages are dropped first; a top passage that alone
// exceeds the budget is truncated.
func (s *AnswerSynthesizer) buildContext(passages []Passage) (string, []Passage) {
	var (
		sb    strings.Builder
		cited []Passage
		used  int
	)
	for i, p := range passages {
		header := fmt.Sprintf("[doc%d] %s\n", i+1, p.Title)
		text := p.Text
		need := len([]rune(header)) + len([]rune(text)) + 2
		if used+need > s.opts.ContextBudget {
			if i > 0 {
				break
			}
			room := s.opts.ContextBudget - len([]rune(header)) - 2
			if room <= 0 {
				room = 1
			}
			text = string([]rune(text)[:min(room, len([]rune(text)))])
			p.Text = text
			need = len([]rune(header)) + len([]rune(text)) + 2
		}
		sb.WriteString(header)
		sb.WriteString(text)
		sb.WriteString("\n\n")
		used += need
		cited = append(cited, p)
	}
	return strings.TrimSpace(sb.String()), cited
}
