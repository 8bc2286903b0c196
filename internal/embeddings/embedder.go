package embeddings

import (
	"context"
	"fmt"
	"os"
)

// Embedder defines the interface for generating text embeddings.
type Embedder interface {
	// Embed generates embeddings for one or more texts, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the number of dimensions in the embedding vectors.
	Dimensions() int

	// Name returns the name/identifier of the embedding model.
	Name() string
}

// New creates an embedder for the given provider: "openai", "ollama" or "hash".
func New(provider, model, baseURL string, dimensions, batchSize int) (Embedder, error) {
	switch provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is not set")
		}
		return NewOpenAIEmbedder(apiKey, baseURL, model, dimensions, batchSize), nil
	case "ollama":
		if baseURL == "" {
			baseURL = os.Getenv("OLLAMA_HOST")
		}
		return NewOllamaEmbedder(model, dimensions, baseURL), nil
	case "hash":
		return NewHashEmbedder(dimensions), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", provider)
	}
}
