package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override. Nested keys are joined
// with a double underscore: COMPOUNDRAG_LLM__PROVIDER -> llm.provider.
const EnvPrefix = "COMPOUNDRAG_"

// Load reads configuration from the given YAML file, then overlays
// environment variable overrides.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("accessing config %s: %w", path, err)
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading env overrides: %w", err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	return cfg, nil
}

func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// Save writes the configuration to the given YAML file path.
func (c *Config) Save(path string) error {
	data, err := yamlv3.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// DatabasePath is the metadata database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "compoundrag.db")
}

// VectorDir is where the persistent vector collections live.
func (c *Config) VectorDir() string {
	return filepath.Join(c.DataDir, "vectors")
}

// SourceDir is where uploaded originals are retained for re-indexing.
func (c *Config) SourceDir() string {
	return filepath.Join(c.DataDir, "sources")
}

var validLLMProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
	ProviderNone:   true,
}

var validEmbeddingProviders = map[ProviderType]bool{
	ProviderOpenAI: true,
	ProviderOllama: true,
	ProviderHash:   true,
}

var validColumnTypes = map[string]bool{
	"text": true, "integer": true, "real": true, "timestamp": true,
}

// Validate checks that the configuration contains valid values.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}

	if !validLLMProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm.provider %q: must be one of openai, ollama, none", c.LLM.Provider)
	}
	if c.LLM.Provider != ProviderNone && c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must be non-negative")
	}

	if !validEmbeddingProviders[c.Embedding.Provider] {
		return fmt.Errorf("invalid embedding.provider %q: must be one of openai, ollama, hash", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive")
	}

	ch := c.Chunking
	if ch.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive")
	}
	if ch.Overlap < 0 || ch.Overlap >= 1 {
		return fmt.Errorf("chunking.overlap must be in [0, 1)")
	}
	if ch.MinChunkSize < 0 || ch.MinChunkSize >= ch.ChunkSize {
		return fmt.Errorf("chunking.min_chunk_size must be in [0, chunk_size)")
	}

	switch c.Ingestion.DuplicatePolicy {
	case DuplicateReject, DuplicateFlag:
	default:
		return fmt.Errorf("invalid ingestion.duplicate_policy %q: must be reject or flag", c.Ingestion.DuplicatePolicy)
	}
	if c.Ingestion.Workers <= 0 {
		return fmt.Errorf("ingestion.workers must be positive")
	}

	r := c.Retrieval
	if r.TopK <= 0 || r.CandidateK < r.TopK {
		return fmt.Errorf("retrieval.top_k must be positive and not exceed candidate_k")
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		return fmt.Errorf("retrieval.min_score must be in [0, 1]")
	}
	if r.VectorWeight < 0 || r.KeywordWeight < 0 || r.VectorWeight+r.KeywordWeight == 0 {
		return fmt.Errorf("retrieval weights must be non-negative and not both zero")
	}

	if c.Synthesis.ContextBudget <= 0 {
		return fmt.Errorf("synthesis.context_budget must be positive")
	}

	if c.Structured.RowCap <= 0 {
		return fmt.Errorf("structured.row_cap must be positive")
	}
	for _, t := range c.Structured.Tables {
		if t.Name == "" || len(t.Columns) == 0 {
			return fmt.Errorf("structured.tables entries need a name and columns")
		}
		for _, col := range t.Columns {
			if !validColumnTypes[col.Type] {
				return fmt.Errorf("structured table %s column %s: invalid type %q", t.Name, col.Name, col.Type)
			}
		}
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be non-negative")
	}
	if c.Retry.Multiplier < 1 {
		return fmt.Errorf("retry.multiplier must be at least 1")
	}

	return nil
}

// APIKeyEnvVar returns the conventional environment variable name for
// the API key of the given provider.
func APIKeyEnvVar(provider ProviderType) string {
	if provider == ProviderOpenAI {
		return "OPENAI_API_KEY"
	}
	return ""
}
