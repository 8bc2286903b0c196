package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/compound-rag/internal/apperr"
	"github.com/ziadkadry99/compound-rag/internal/catalog"
	"github.com/ziadkadry99/compound-rag/internal/config"
	"github.com/ziadkadry99/compound-rag/internal/embeddings"
	"github.com/ziadkadry99/compound-rag/internal/extract"
	"github.com/ziadkadry99/compound-rag/internal/retry"
	"github.com/ziadkadry99/compound-rag/internal/vectordb"
)

// Request is one upload.
type Request struct {
	CompoundID string
	FileName   string
	Title      string
	Data       []byte
	// Policy overrides the configured duplicate policy when set.
	Policy config.DuplicatePolicy
}

// Result is the document accepted for indexing. Duplicate is set when the
// flag policy returned an existing document instead of creating one.
type Result struct {
	Document  *catalog.Document `json:"document"`
	Duplicate bool              `json:"duplicate"`
}

// Options configures a Pipeline.
type Options struct {
	Workers         int
	DuplicatePolicy config.DuplicatePolicy
	MaxFileSize     int64
	SourceDir       string
	PollInterval    time.Duration
	Retry           retry.Policy
}

// OptionsFromConfig derives pipeline options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Workers:         cfg.Ingestion.Workers,
		DuplicatePolicy: cfg.Ingestion.DuplicatePolicy,
		MaxFileSize:     cfg.Ingestion.MaxFileSize,
		SourceDir:       cfg.SourceDir(),
		PollInterval:    cfg.Ingestion.PollInterval,
		Retry: retry.Policy{
			MaxRetries:      cfg.Retry.MaxRetries,
			InitialInterval: cfg.Retry.InitialInterval,
			MaxInterval:     cfg.Retry.MaxInterval,
			Multiplier:      cfg.Retry.Multiplier,
		},
	}
}

// Pipeline accepts uploads and indexes them in the background:
// extract -> chunk -> embed -> write to the compound's index.
type Pipeline struct {
	store     *catalog.Store
	extractor *extract.Registry
	embedder  embeddings.Embedder
	index     vectordb.Index
	chunker   *Chunker
	opts      Options

	pool     *ants.Pool
	jobs     chan string
	events   *notifier
	ctx      context.Context
	cancel   context.CancelFunc
	inflight sync.WaitGroup
	done     chan struct{}
	stopped  chan struct{}
	closed   sync.Once
}

// NewPipeline starts a pipeline with opts.Workers indexing workers.
func NewPipeline(
	store *catalog.Store,
	extractor *extract.Registry,
	embedder embeddings.Embedder,
	index vectordb.Index,
	chunker *Chunker,
	opts Options,
) (*Pipeline, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.DuplicatePolicy == "" {
		opts.DuplicatePolicy = config.DuplicateReject
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if chunker == nil {
		chunker = NewChunker()
	}

	pool, err := ants.NewPool(opts.Workers, ants.WithPanicHandler(func(p any) {
		log.Error().Interface("panic", p).Msg("ingestion worker panic recovered")
	}))
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		store:     store,
		extractor: extractor,
		embedder:  embedder,
		index:     index,
		chunker:   chunker,
		opts:      opts,
		pool:      pool,
		jobs:      make(chan string, 256),
		events:    newNotifier(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go p.dispatch()
	return p, nil
}

// Ingest validates an upload, records a pending document and schedules it
// for indexing. It returns as soon as the document is recorded.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*Result, error) {
	if strings.TrimSpace(req.CompoundID) == "" {
		return nil, apperr.Validation(apperr.CodeMissingCompoundID, "compound id is required")
	}
	if _, err := p.store.GetCompound(ctx, req.CompoundID); err != nil {
		return nil, err
	}
	if len(req.Data) == 0 {
		return nil, apperr.Validation(apperr.CodeInvalidRequest, "file %q is empty", req.FileName)
	}
	if p.opts.MaxFileSize > 0 && int64(len(req.Data)) > p.opts.MaxFileSize {
		return nil, apperr.Validation(apperr.CodeInvalidRequest,
			"file %q exceeds the %d byte limit", req.FileName, p.opts.MaxFileSize)
	}
	if err := p.extractor.Check(req.FileName); err != nil {
		return nil, err
	}

	policy := req.Policy
	if policy == "" {
		policy = p.opts.DuplicatePolicy
	}
	if policy != config.DuplicateReject && policy != config.DuplicateFlag {
		return nil, apperr.Validation(apperr.CodeInvalidRequest,
			"invalid duplicate_policy %q: must be reject or flag", policy)
	}

	sha := Fingerprint(req.Data)
	existing, found, err := p.store.FindByFingerprint(ctx, req.CompoundID, sha)
	if err != nil {
		return nil, err
	}
	if found {
		return duplicateOutcome(existing, policy)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(req.FileName), filepath.Ext(req.FileName))
	}
	id := uuid.NewString()
	doc := &catalog.Document{
		ID:          id,
		CompoundID:  req.CompoundID,
		Title:       title,
		FileName:    filepath.Base(req.FileName),
		Size:        int64(len(req.Data)),
		SHA256:      sha,
		IndexName:   IndexName(req.CompoundID),
		IndexerName: IndexerName(id),
	}
	source, err := p.retainSource(doc, req.Data)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInternal, apperr.CodeInternal, "storing uploaded file")
	}
	doc.Source = source

	if err := p.store.CreateDocument(ctx, doc); err != nil {
		if rerr := os.Remove(source); rerr != nil {
			log.Warn().Err(rerr).Str("path", source).Msg("removing unrecorded upload")
		}
		// A concurrent upload of the same bytes won the insert.
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindDuplicateContent {
			if existing, found, ferr := p.store.FindByFingerprint(ctx, req.CompoundID, sha); ferr == nil && found {
				return duplicateOutcome(existing, policy)
			}
		}
		return nil, err
	}

	log.Info().
		Str("compound_id", doc.CompoundID).
		Str("document_id", doc.ID).
		Str("file", doc.FileName).
		Int64("size", doc.Size).
		Msg("document accepted")

	p.enqueue(doc.ID)
	return &Result{Document: doc}, nil
}

func duplicateOutcome(existing *catalog.Document, policy config.DuplicatePolicy) (*Result, error) {
	if policy == config.DuplicateFlag {
		return &Result{Document: existing, Duplicate: true}, nil
	}
	return nil, apperr.Duplicate(existing.ID)
}

func (p *Pipeline) retainSource(doc *catalog.Document, data []byte) (string, error) {
	dir := filepath.Join(p.opts.SourceDir, Sanitize(doc.CompoundID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating source directory: %w", err)
	}
	path := filepath.Join(dir, doc.ID+filepath.Ext(doc.FileName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing source file: %w", err)
	}
	return path, nil
}

// Reindex opens a new indexing attempt for an indexed or failed document.
func (p *Pipeline) Reindex(ctx context.Context, compoundID, documentID string) (*catalog.Document, error) {
	doc, err := p.store.GetDocument(ctx, compoundID, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.Status.Terminal() {
		return nil, apperr.Conflict(apperr.CodeIndexingActive,
			"document %s is %s; wait for the current attempt to finish", doc.ID, doc.Status)
	}
	if _, err := os.Stat(doc.Source); err != nil {
		return nil, apperr.NotFound("original file of document %s is no longer retained", doc.ID)
	}

	err = p.store.TransitionStatus(ctx, catalog.Transition{
		DocumentID: doc.ID, From: doc.Status, To: catalog.StatusPending,
	})
	if errors.Is(err, catalog.ErrStaleStatus) {
		return nil, apperr.Conflict(apperr.CodeIndexingActive, "document %s is already being re-indexed", doc.ID)
	}
	if err != nil {
		return nil, err
	}

	doc, err = p.store.GetDocumentByID(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	p.events.publish(*doc)
	p.enqueue(doc.ID)
	return doc, nil
}

// Status returns the current state of a document of the compound.
func (p *Pipeline) Status(ctx context.Context, compoundID, documentID string) (*catalog.Document, error) {
	return p.store.GetDocument(ctx, compoundID, documentID)
}

// Wait blocks until the document reaches indexed or failed.
func (p *Pipeline) Wait(ctx context.Context, compoundID, documentID string) (*catalog.Document, error) {
	updates, cancel := p.events.subscribe(documentID)
	defer cancel()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()
	for {
		doc, err := p.Status(ctx, compoundID, documentID)
		if err != nil {
			return nil, err
		}
		if doc.Status.Terminal() {
			return doc, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-updates:
		case <-ticker.C:
		}
	}
}

// Subscribe streams status changes of one document until cancel is called.
func (p *Pipeline) Subscribe(documentID string) (<-chan catalog.Document, func()) {
	return p.events.subscribe(documentID)
}

// Recover fails documents a previous process left mid-indexing and
// reschedules the ones still pending. Call it once at startup.
func (p *Pipeline) Recover(ctx context.Context) error {
	n, err := p.store.FailInterrupted(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Warn().Int64("documents", n).Msg("marked interrupted indexing attempts as failed")
	}

	ids, err := p.store.PendingDocumentIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		p.enqueue(id)
	}
	if len(ids) > 0 {
		log.Info().Int("documents", len(ids)).Msg("rescheduled pending documents")
	}
	return nil
}

// Close stops accepting jobs and waits for running ones to finish.
func (p *Pipeline) Close() {
	p.closed.Do(func() {
		close(p.done)
		<-p.stopped
		p.inflight.Wait()
		p.cancel()
		p.pool.Release()
	})
}

func (p *Pipeline) enqueue(id string) {
	select {
	case p.jobs <- id:
	case <-p.done:
	default:
		go func() {
			select {
			case p.jobs <- id:
			case <-p.done:
			}
		}()
	}
}

func (p *Pipeline) dispatch() {
	defer close(p.stopped)
	for {
		select {
		case <-p.done:
			return
		case id := <-p.jobs:
			p.inflight.Add(1)
			err := p.pool.Submit(func() {
				defer p.inflight.Done()
				p.process(p.ctx, id)
			})
			if err != nil {
				p.inflight.Done()
				log.Error().Err(err).Str("document_id", id).Msg("submitting indexing job")
			}
		}
	}
}

// process runs one indexing attempt. Only the worker that wins the
// pending -> indexing transition proceeds.
func (p *Pipeline) process(ctx context.Context, id string) {
	logger := log.With().Str("document_id", id).Logger()

	err := p.store.TransitionStatus(ctx, catalog.Transition{
		DocumentID: id, From: catalog.StatusPending, To: catalog.StatusIndexing,
	})
	if errors.Is(err, catalog.ErrStaleStatus) {
		logger.Debug().Msg("document no longer pending, skipping")
		return
	}
	if err != nil {
		logger.Error().Err(err).Msg("starting indexing attempt")
		return
	}

	doc, err := p.store.GetDocumentByID(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("loading document")
		p.fail(ctx, id, catalog.StatusIndexing, err)
		return
	}
	p.events.publish(*doc)

	start := time.Now()
	count, err := p.indexDocument(ctx, doc)
	if err != nil {
		logger.Warn().Err(err).Int("attempt", doc.Attempt).Msg("indexing failed")
		p.fail(ctx, id, catalog.StatusIndexing, err)
		return
	}

	err = p.store.TransitionStatus(ctx, catalog.Transition{
		DocumentID: id, From: catalog.StatusIndexing, To: catalog.StatusIndexed, ChunkCount: count,
	})
	if err != nil {
		logger.Error().Err(err).Msg("completing indexing attempt")
		return
	}
	logger.Info().Int("chunks", count).Dur("took", time.Since(start)).Msg("document indexed")
	p.publishCurrent(ctx, id)
}

func (p *Pipeline) indexDocument(ctx context.Context, doc *catalog.Document) (int, error) {
	data, err := os.ReadFile(doc.Source)
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindExtraction, apperr.CodeExtractionFailed, "reading retained file")
	}

	var text string
	err = p.attempt(ctx, func(ctx context.Context) error {
		var xerr error
		text, xerr = p.extractor.Extract(ctx, data, doc.FileName)
		return xerr
	})
	if err != nil {
		return 0, apperr.FromExternal(err, apperr.KindExtraction, apperr.CodeExtractionFailed, "extracting text")
	}

	pieces := p.chunker.Split(text)
	if len(pieces) == 0 {
		return 0, apperr.New(apperr.KindExtraction, apperr.CodeExtractionFailed, "document produced no chunks")
	}
	texts := make([]string, len(pieces))
	for i, c := range pieces {
		texts[i] = c.Text
	}

	var vectors [][]float32
	err = p.attempt(ctx, func(ctx context.Context) error {
		var eerr error
		vectors, eerr = p.embedder.Embed(ctx, texts)
		if eerr == nil && len(vectors) != len(texts) {
			eerr = fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
		}
		return eerr
	})
	if err != nil {
		return 0, apperr.FromExternal(err, apperr.KindEmbedding, apperr.CodeEmbeddingFailed, "embedding chunks")
	}

	chunks := make([]vectordb.Chunk, len(pieces))
	for i, c := range pieces {
		chunks[i] = vectordb.Chunk{
			DocumentID: doc.ID,
			Index:      c.Index,
			Start:      c.Start,
			End:        c.End,
			Text:       c.Text,
			Embedding:  vectors[i],
		}
	}
	err = p.attempt(ctx, func(ctx context.Context) error {
		return p.index.Upsert(ctx, doc.IndexName, doc.ID, chunks)
	})
	if err != nil {
		return 0, apperr.FromExternal(err, apperr.KindIndexWrite, apperr.CodeIndexWriteFailed, "writing index")
	}
	return len(chunks), nil
}

// attempt retries op under the configured policy. Caller errors are not
// retried.
func (p *Pipeline) attempt(ctx context.Context, op func(context.Context) error) error {
	return retry.Do(ctx, p.opts.Retry, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && apperr.IsUserError(err) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (p *Pipeline) fail(ctx context.Context, id string, from catalog.Status, cause error) {
	err := p.store.TransitionStatus(ctx, catalog.Transition{
		DocumentID: id, From: from, To: catalog.StatusFailed, Reason: cause.Error(),
	})
	if err != nil {
		log.Error().Err(err).Str("document_id", id).Msg("recording indexing failure")
		return
	}
	p.publishCurrent(ctx, id)
}

func (p *Pipeline) publishCurrent(ctx context.Context, id string) {
	if doc, err := p.store.GetDocumentByID(ctx, id); err == nil {
		p.events.publish(*doc)
	}
}
