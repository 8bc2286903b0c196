package config

import "time"

// DefaultConfigFile is the config path used when --config is not given.
const DefaultConfigFile = ".compoundrag.yml"

// modelPresets maps a provider to its default chat and embedding models.
var modelPresets = map[ProviderType]struct {
	Model          string
	EmbeddingModel string
	Dimensions     int
}{
	ProviderOpenAI: {Model: "gpt-4o-mini", EmbeddingModel: "text-embedding-3-small", Dimensions: 1536},
	ProviderOllama: {Model: "llama3", EmbeddingModel: "nomic-embed-text", Dimensions: 768},
	ProviderHash:   {EmbeddingModel: "hash", Dimensions: 256},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DataDir: ".compoundrag",
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"http://localhost:*", "http://127.0.0.1:*"},
			RequestTimeout: 60 * time.Second,
			MaxUploadBytes: 32 << 20,
		},
		Log: LogConfig{Level: "info", Format: "console"},
		LLM: LLMConfig{
			Provider:          ProviderOpenAI,
			Model:             "gpt-4o-mini",
			RequestsPerMinute: 60,
			Timeout:           30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:   ProviderOpenAI,
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			BatchSize:  64,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1000,
			Overlap:      0.2,
			MinChunkSize: 100,
		},
		Ingestion: IngestionConfig{
			Workers:         4,
			DuplicatePolicy: DuplicateReject,
			MaxFileSize:     25 << 20,
			PollInterval:    time.Second,
		},
		Retrieval: RetrievalConfig{
			TopK:          5,
			CandidateK:    20,
			MinScore:      0.15,
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
			Concurrency:   5,
		},
		Synthesis: SynthesisConfig{
			ContextBudget: 12000,
			MaxTokens:     800,
			Temperature:   0.1,
			Timeout:       30 * time.Second,
		},
		Structured: StructuredConfig{
			SampleTables: true,
			RowCap:       100,
			SummaryRows:  50,
			QueryTimeout: 10 * time.Second,
		},
		Retry: RetryConfig{
			MaxRetries:      1,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Multiplier:      2,
		},
	}
}

// ApplyPreset sets chat and embedding models for provider.
func (c *Config) ApplyPreset(provider ProviderType) {
	p, ok := modelPresets[provider]
	if !ok {
		return
	}
	if p.Model != "" {
		c.LLM.Provider = provider
		c.LLM.Model = p.Model
	}
	c.Embedding.Provider = provider
	c.Embedding.Model = p.EmbeddingModel
	c.Embedding.Dimensions = p.Dimensions
}
