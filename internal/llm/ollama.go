package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
)

const defaultOllamaURL = "http://localhost:11434"

// OllamaProvider talks to the /api/chat endpoint of a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider creates a new Ollama provider. Request deadlines come
// from the caller's context, so the client carries no timeout of its own.
func NewOllamaProvider(baseURL string, model string) *OllamaProvider {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &OllamaProvider{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	Done            bool          `json:"done"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
	Error           string        `json:"error"`
}

func (p *OllamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	chat := ollamaChatRequest{Model: req.Model, Messages: make([]ollamaMessage, len(req.Messages))}
	if chat.Model == "" {
		chat.Model = p.model
	}
	for i, m := range req.Messages {
		chat.Messages[i] = ollamaMessage{Role: string(m.Role), Content: m.Content}
	}
	if req.JSONMode {
		chat.Format = "json"
	}
	if opts := ollamaOptions(req); len(opts) > 0 {
		chat.Options = opts
	}

	body, err := json.Marshal(chat)
	if err != nil {
		return nil, fmt.Errorf("encoding ollama request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building ollama request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, apperr.FromExternal(err, apperr.KindExternalService, apperr.CodeUnavailable, "ollama is unreachable")
	}
	defer httpResp.Body.Close()

	var out ollamaChatResponse
	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 8<<20))
	if err != nil {
		return nil, apperr.FromExternal(err, apperr.KindExternalService, apperr.CodeUnavailable, "reading ollama response")
	}
	decodeErr := json.Unmarshal(raw, &out)

	if httpResp.StatusCode != http.StatusOK {
		reason := out.Error
		if decodeErr != nil || reason == "" {
			reason = truncate(strings.TrimSpace(string(raw)), 512)
		}
		return nil, apperr.New(apperr.KindExternalService, apperr.CodeUnavailable,
			"ollama returned status %d: %s", httpResp.StatusCode, reason)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decoding ollama response: %w", decodeErr)
	}

	return &CompletionResponse{
		Content:      out.Message.Content,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		Model:        out.Model,
		FinishReason: out.DoneReason,
	}, nil
}

// ollamaOptions sends only the settings the caller set; Ollama applies the
// model defaults to the rest.
func ollamaOptions(req CompletionRequest) map[string]any {
	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	return opts
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
