package config

import "time"

// ProviderType identifies an LLM or embedding provider.
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderOllama ProviderType = "ollama"
	// ProviderHash is the offline embedder; it needs no external service.
	ProviderHash ProviderType = "hash"
	// ProviderNone disables answer synthesis; searches return passages only.
	ProviderNone ProviderType = "none"
)

// DuplicatePolicy decides what happens when uploaded bytes match an
// existing document of the same compound.
type DuplicatePolicy string

const (
	DuplicateReject DuplicatePolicy = "reject"
	DuplicateFlag   DuplicatePolicy = "flag"
)

// Config is the top-level configuration, corresponding to .compoundrag.yml.
type Config struct {
	DataDir    string           `yaml:"data_dir" koanf:"data_dir"`
	Server     ServerConfig     `yaml:"server" koanf:"server"`
	Log        LogConfig        `yaml:"log" koanf:"log"`
	LLM        LLMConfig        `yaml:"llm" koanf:"llm"`
	Embedding  EmbeddingConfig  `yaml:"embedding" koanf:"embedding"`
	Chunking   ChunkingConfig   `yaml:"chunking" koanf:"chunking"`
	Ingestion  IngestionConfig  `yaml:"ingestion" koanf:"ingestion"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" koanf:"retrieval"`
	Synthesis  SynthesisConfig  `yaml:"synthesis" koanf:"synthesis"`
	Structured StructuredConfig `yaml:"structured" koanf:"structured"`
	Retry      RetryConfig      `yaml:"retry" koanf:"retry"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" koanf:"port"`
	AllowedOrigins []string      `yaml:"allowed_origins" koanf:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" koanf:"request_timeout"`
	// MaxUploadBytes bounds multipart uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" koanf:"max_upload_bytes"`
}

type LogConfig struct {
	Level  string `yaml:"level" koanf:"level"`
	Format string `yaml:"format" koanf:"format"` // console or json
}

type LLMConfig struct {
	Provider          ProviderType  `yaml:"provider" koanf:"provider"`
	Model             string        `yaml:"model" koanf:"model"`
	BaseURL           string        `yaml:"base_url" koanf:"base_url"`
	RequestsPerMinute int           `yaml:"requests_per_minute" koanf:"requests_per_minute"`
	Timeout           time.Duration `yaml:"timeout" koanf:"timeout"`
}

type EmbeddingConfig struct {
	Provider   ProviderType `yaml:"provider" koanf:"provider"`
	Model      string       `yaml:"model" koanf:"model"`
	BaseURL    string       `yaml:"base_url" koanf:"base_url"`
	Dimensions int          `yaml:"dimensions" koanf:"dimensions"`
	BatchSize  int          `yaml:"batch_size" koanf:"batch_size"`
}

type ChunkingConfig struct {
	ChunkSize    int     `yaml:"chunk_size" koanf:"chunk_size"`
	Overlap      float64 `yaml:"overlap" koanf:"overlap"`
	MinChunkSize int     `yaml:"min_chunk_size" koanf:"min_chunk_size"`
}

type IngestionConfig struct {
	Workers         int             `yaml:"workers" koanf:"workers"`
	DuplicatePolicy DuplicatePolicy `yaml:"duplicate_policy" koanf:"duplicate_policy"`
	MaxFileSize     int64           `yaml:"max_file_size" koanf:"max_file_size"`
	// ExtractorURL points at an Apache Tika compatible server. When set,
	// formats without a built-in extractor (pdf, doc, xls) are accepted.
	ExtractorURL string        `yaml:"extractor_url" koanf:"extractor_url"`
	PollInterval time.Duration `yaml:"poll_interval" koanf:"poll_interval"`
}

type RetrievalConfig struct {
	TopK          int     `yaml:"top_k" koanf:"top_k"`
	CandidateK    int     `yaml:"candidate_k" koanf:"candidate_k"`
	MinScore      float64 `yaml:"min_score" koanf:"min_score"`
	VectorWeight  float64 `yaml:"vector_weight" koanf:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight" koanf:"keyword_weight"`
	Concurrency   int     `yaml:"concurrency" koanf:"concurrency"`
}

type SynthesisConfig struct {
	ContextBudget int           `yaml:"context_budget" koanf:"context_budget"` // characters
	MaxTokens     int           `yaml:"max_tokens" koanf:"max_tokens"`
	Temperature   float64       `yaml:"temperature" koanf:"temperature"`
	Timeout       time.Duration `yaml:"timeout" koanf:"timeout"`
}

type StructuredConfig struct {
	// DatabasePath selects a separate sqlite file for business tables.
	// Empty means the metadata database is used.
	DatabasePath string        `yaml:"database_path" koanf:"database_path"`
	SampleTables bool          `yaml:"sample_tables" koanf:"sample_tables"`
	RowCap       int           `yaml:"row_cap" koanf:"row_cap"`
	SummaryRows  int           `yaml:"summary_rows" koanf:"summary_rows"`
	UseLLM       bool          `yaml:"use_llm" koanf:"use_llm"`
	QueryTimeout time.Duration `yaml:"query_timeout" koanf:"query_timeout"`
	Tables       []TableConfig `yaml:"tables" koanf:"tables"`
}

// TableConfig adds a table to the structured-query allow-list.
type TableConfig struct {
	Name    string         `yaml:"name" koanf:"name"`
	Columns []ColumnConfig `yaml:"columns" koanf:"columns"`
}

type ColumnConfig struct {
	Name string `yaml:"name" koanf:"name"`
	Type string `yaml:"type" koanf:"type"` // text, integer, real, timestamp
}

// RetryConfig bounds retries of embedding, extraction and index writes.
type RetryConfig struct {
	MaxRetries      int           `yaml:"max_retries" koanf:"max_retries"`
	InitialInterval time.Duration `yaml:"initial_interval" koanf:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" koanf:"max_interval"`
	Multiplier      float64       `yaml:"multiplier" koanf:"multiplier"`
}
