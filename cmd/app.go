package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/config"
	"github.com/ziadkadry99/compound-rag/internal/db"
	"github.com/ziadkadry99/compound-rag/internal/embeddings"
	"github.com/ziadkadry99/compound-rag/internal/extract"
	"github.com/ziadkadry99/compound-rag/internal/ingest"
	"github.com/ziadkadry99/compound-rag/internal/llm"
	"github.com/ziadkadry99/compound-rag/internal/search"
	"github.com/ziadkadry99/compound-rag/internal/sqlquery"
	"github.com/ziadkadry99/compound-rag/internal/vectordb"
)

// app holds every service built from one configuration.
type app struct {
	cfg        *config.Config
	db         *db.DB
	businessDB *db.DB
	catalog    *catalog.Store
	pipeline   *ingest.Pipeline
	search     *search.Service
	database   *sqlquery.Service
}

// newApp opens storage and wires the services. The ingestion pipeline
// starts its workers and re-queues documents a previous run left behind.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	a := &app{cfg: cfg, db: database, businessDB: database}
	if err := a.build(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) build(ctx context.Context) error {
	cfg := a.cfg

	if cfg.Structured.DatabasePath != "" {
		bdb, err := db.OpenBusiness(cfg.Structured.DatabasePath)
		if err != nil {
			return fmt.Errorf("opening business database: %w", err)
		}
		a.businessDB = bdb
	}
	if cfg.Structured.SampleTables {
		if err := a.businessDB.EnsureSampleTables(ctx); err != nil {
			return fmt.Errorf("seeding sample tables: %w", err)
		}
	}

	embedder, err := embeddings.New(string(cfg.Embedding.Provider), cfg.Embedding.Model,
		cfg.Embedding.BaseURL, cfg.Embedding.Dimensions, cfg.Embedding.BatchSize)
	if err != nil {
		return fmt.Errorf("creating embedder: %w", err)
	}

	provider, err := llm.NewProvider(string(cfg.LLM.Provider), cfg.LLM.Model, cfg.LLM.BaseURL)
	if err != nil {
		return fmt.Errorf("creating LLM provider: %w", err)
	}
	provider = llm.NewRateLimitedProvider(provider, cfg.LLM.RequestsPerMinute)
	if provider == nil {
		log.Info().Msg("llm provider disabled; searches return passages without answers")
	}

	index, err := vectordb.NewStore(cfg.VectorDir(), a.db, embedder,
		vectordb.WithConcurrency(cfg.Retrieval.Concurrency))
	if err != nil {
		return fmt.Errorf("creating vector store: %w", err)
	}

	a.catalog = catalog.NewStore(a.db)

	chunker := ingest.NewChunker(
		ingest.WithChunkSize(cfg.Chunking.ChunkSize),
		ingest.WithOverlap(cfg.Chunking.Overlap),
		ingest.WithMinChunkSize(cfg.Chunking.MinChunkSize),
	)
	a.pipeline, err = ingest.NewPipeline(a.catalog, extract.NewDefaultRegistry(cfg.Ingestion.ExtractorURL),
		embedder, index, chunker, ingest.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("starting ingestion pipeline: %w", err)
	}
	if err := a.pipeline.Recover(ctx); err != nil {
		return fmt.Errorf("recovering ingestion state: %w", err)
	}

	retriever := search.NewHybridRetriever(index, embedder, search.RetrieverOptions{
		CandidateK:    cfg.Retrieval.CandidateK,
		MinScore:      cfg.Retrieval.MinScore,
		VectorWeight:  cfg.Retrieval.VectorWeight,
		KeywordWeight: cfg.Retrieval.KeywordWeight,
	})
	synth := search.NewAnswerSynthesizer(provider, search.SynthesizerOptions{
		Model:         cfg.LLM.Model,
		ContextBudget: cfg.Synthesis.ContextBudget,
		MaxTokens:     cfg.Synthesis.MaxTokens,
		Temperature:   cfg.Synthesis.Temperature,
		Timeout:       cfg.Synthesis.Timeout,
	})
	a.search = search.NewService(a.catalog, retriever, synth, cfg.Retrieval.TopK)

	schema, err := sqlquery.SchemaFromConfig(cfg.Structured)
	if err != nil {
		return fmt.Errorf("building structured schema: %w", err)
	}
	var planner llm.Provider
	if cfg.Structured.UseLLM {
		planner = provider
	}
	translator := sqlquery.NewTranslator(schema, sqlquery.TranslatorOptions{
		RowCap:  cfg.Structured.RowCap,
		Planner: planner,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	})
	summarizer := sqlquery.NewSummarizer(provider, sqlquery.SummarizerOptions{
		Model:         cfg.LLM.Model,
		MaxRows:       cfg.Structured.SummaryRows,
		ContextBudget: cfg.Synthesis.ContextBudget,
		MaxTokens:     cfg.Synthesis.MaxTokens,
		Temperature:   cfg.Synthesis.Temperature,
		Timeout:       cfg.Synthesis.Timeout,
	})
	a.database = sqlquery.NewService(a.catalog, schema, translator,
		sqlquery.NewExecutor(a.businessDB, cfg.Structured.QueryTimeout), summarizer)

	return nil
}

// Close stops the pipeline, letting running jobs finish, then closes
// the databases.
func (a *app) Close() error {
	if a.pipeline != nil {
		a.pipeline.Close()
	}
	var errs []error
	if a.businessDB != nil && a.businessDB != a.db {
		errs = append(errs, a.businessDB.Close())
	}
	errs = append(errs, a.db.Close())
	return errors.Join(errs...)
}

// openCatalog opens only the metadata database, for commands that manage
// compounds and departments without indexing anything.
func openCatalog(cfg *config.Config) (*catalog.Store, func() error, error) {
	database, err := db.Open(cfg.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return catalog.NewStore(database), database.Close, nil
}
