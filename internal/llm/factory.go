package llm

import (
	"fmt"
	"os"
)

// NewProvider creates a new LLM provider. Supported provider types are
// "openai" (including compatible endpoints via baseURL) and "ollama".
// "none" returns a nil provider: synthesis is skipped and callers receive
// passages or rows without a generated answer.
func NewProvider(providerType, model, baseURL string) (Provider, error) {
	switch providerType {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIProvider(apiKey, baseURL, model), nil

	case "ollama":
		host := baseURL
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaProvider(host, model), nil

	case "none", "":
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported provider type: %s", providerType)
	}
}
