package embedding

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/mimir/ai"
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
	"golang.org/x/time/rate"
)

// Store is the part of the knowledge store the pipeline reads and writes.
type Store interface {
	storage.DocumentReader
	storage.EmbeddingWriter
}

// Pipeline computes and refreshes document vectors for one embedding model.
type Pipeline struct {
	store          Store
	embedder       ai.Embedder
	model          core.ModelIdentity
	index          storage.VectorIndex
	pool           *ants.Pool
	limiter        *rate.Limiter
	maxRetries     int
	retryDelay     time.Duration
	progress       io.Writer
	reportInterval int
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithWorkers sets the number of concurrent encoder workers.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithWorkers(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithMaxRetries sets the number of encoder attempts per document.
// Default is 3.
func WithMaxRetries(attempts int) Option {
	return func(p *Pipeline) error {
		if attempts <= 0 {
			return ErrInvalidMaxAttempts
		}
		p.maxRetries = attempts
		return nil
	}
}

// WithRetryDelay sets the base delay for exponential backoff.
// Default is 1 second.
func WithRetryDelay(delay time.Duration) Option {
	return func(p *Pipeline) error {
		if delay < 0 {
			return fmt.Errorf("retry delay must not be negative: %v", delay)
		}
		p.retryDelay = delay
		return nil
	}
}

// WithRateLimit caps encoder calls per second across all workers.
// A rate of 0 disables throttling, which is the default.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(p *Pipeline) error {
		if perSecond < 0 {
			return fmt.Errorf("rate limit must not be negative: %v", perSecond)
		}
		if perSecond == 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		return nil
	}
}

// WithProgress reports progress to w every interval documents.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		p.progress = w
		p.reportInterval = interval
		return nil
	}
}

// WithVectorIndex mirrors every recomputed vector into a native index.
// The index is written before the store, so a failed mirror leaves the
// document stale and it is retried on the next pass.
func WithVectorIndex(index storage.VectorIndex) Option {
	return func(p *Pipeline) error {
		p.index = index
		return nil
	}
}

// WithClock sets the time source used for ComputedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now == nil {
			now = time.Now
		}
		p.now = now
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline writing vectors attributed to provider.Model().
func NewPipeline(store Store, provider ai.AIProvider, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}
	model := provider.Model()
	if model.ID == "" || model.Version == "" {
		return nil, ErrModelRequired
	}

	p := &Pipeline{
		store:          store,
		embedder:       provider.Embedder(),
		model:          model,
		limiter:        rate.NewLimiter(rate.Inf, 0),
		maxRetries:     3,
		retryDelay:     time.Second,
		reportInterval: 100,
		now:            time.Now,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}

	if p.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		p.pool = pool
	}
	p.logger = p.logger.With("component", "embedding", "model", model.String())

	return p, nil
}

// Model returns the identity the pipeline attributes vectors to.
func (p *Pipeline) Model() core.ModelIdentity {
	return p.model
}

// Release releases the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
		p.pool = nil
	}
}

// Refresh brings the vectors of the target documents up to date. A nil
// targets slice refreshes every document. In dry-run mode nothing is
// written and Updated lists what would be recomputed.
//
// Per-document problems are recorded in the report's Failed bucket. The
// returned error is reserved for failures that prevent the pass itself, such
// as the store being unable to list documents or ctx being cancelled.
func (p *Pipeline) Refresh(ctx context.Context, targets []core.ID, dryRun bool) (*Report, error) {
	if p.pool == nil {
		return nil, fmt.Errorf("pipeline released")
	}

	c := &collector{report: Report{Simulated: dryRun, Model: p.model}}

	docs, err := p.loadTargets(ctx, targets, c)
	if err != nil {
		return nil, err
	}

	p.logger.Info("refreshing embeddings", "documents", len(docs), "dryRun", dryRun)

	progress := p.progress
	if progress == nil {
		progress = io.Discard
	}
	tracker := NewProgressTracker(progress, len(docs), p.reportInterval)
	tracker.Start()

	var wg sync.WaitGroup
	for _, doc := range docs {
		if !p.needsRefresh(doc, c) {
			tracker.Increment(1)
			continue
		}

		text := doc.EmbeddingText()
		if strings.TrimSpace(text) == "" {
			c.failed(doc.Id, fmt.Errorf("%w: document has no text", core.ErrEncodingFailure))
			tracker.Increment(1)
			continue
		}

		if dryRun {
			c.updated(doc.Id)
			tracker.Increment(1)
			continue
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			defer tracker.Increment(1)
			if err := p.refreshOne(ctx, doc, text); err != nil {
				p.logger.Debug("refresh failed", "document", doc.Id, "err", err)
				c.failed(doc.Id, err)
				return
			}
			c.updated(doc.Id)
		})
		if err != nil {
			wg.Done()
			c.failed(doc.Id, fmt.Errorf("scheduling refresh: %w", err))
			tracker.Increment(1)
		}
	}
	wg.Wait()

	report := c.finish()
	report.Elapsed = tracker.Elapsed()
	tracker.Finish()

	p.logger.Info("refresh complete",
		"updated", len(report.Updated),
		"staleOK", len(report.SkippedStaleOK),
		"unchanged", len(report.SkippedUnchanged),
		"failed", len(report.Failed),
		"elapsed", report.Elapsed,
		"dryRun", dryRun)

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// loadTargets reads the documents to examine. Requested IDs that do not
// exist are recorded as failures.
func (p *Pipeline) loadTargets(ctx context.Context, targets []core.ID, c *collector) ([]*core.Document, error) {
	if targets == nil {
		docs, err := p.store.ListDocuments(ctx, storage.Filter{})
		if err != nil {
			return nil, fmt.Errorf("listing documents: %w", err)
		}
		return docs, nil
	}

	ids := slices.Clone(targets)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	docs, err := p.store.ListDocuments(ctx, storage.Filter{Ids: ids})
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	found := make(map[core.ID]struct{}, len(docs))
	for _, doc := range docs {
		found[doc.Id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			c.failed(id, fmt.Errorf("%w: document %d", core.ErrNotFound, id))
		}
	}
	return docs, nil
}

// needsRefresh classifies a document, recording it when no work is needed.
func (p *Pipeline) needsRefresh(doc *core.Document, c *collector) bool {
	if doc.EmbeddingState(p.model) != core.EmbeddingCurrent {
		return true
	}
	// Same identity but a vector of the wrong length cannot be trusted
	if p.model.Dimension > 0 && len(doc.Vector) != p.model.Dimension {
		return true
	}

	if doc.UpdatedAt.After(doc.Embedding.ComputedAt) {
		c.staleOK(doc.Id)
	} else {
		c.unchanged(doc.Id)
	}
	return false
}

// refreshOne computes and writes a fresh vector for one document.
func (p *Pipeline) refreshOne(ctx context.Context, doc *core.Document, text string) error {
	var vector []float32
	err := RetryWithBackoff(ctx, func() error {
		if err := p.limiter.Wait(ctx); err != nil {
			return Permanent(err)
		}
		var err error
		vector, err = p.embedder.EmbedText(ctx, text)
		if errors.Is(err, core.ErrDimensionMismatch) {
			return Permanent(err)
		}
		return err
	}, p.maxRetries, p.retryDelay)
	if err != nil {
		return fmt.Errorf("%w: %w", core.ErrEncodingFailure, err)
	}

	if len(vector) == 0 {
		return fmt.Errorf("%w: encoder returned an empty vector", core.ErrEncodingFailure)
	}
	if p.model.Dimension > 0 && len(vector) != p.model.Dimension {
		return fmt.Errorf("%w: %w: expected %d, got %d",
			core.ErrEncodingFailure, core.ErrDimensionMismatch, p.model.Dimension, len(vector))
	}
	vector = core.NormalizeVector(vector)

	meta := core.EmbeddingMeta{
		ModelID:      p.model.ID,
		ModelVersion: p.model.Version,
		Fingerprint:  doc.Fingerprint(),
		ComputedAt:   p.now().UTC(),
	}

	if p.index != nil {
		if err := p.index.Upsert(ctx, doc.Id, vector, meta); err != nil {
			return fmt.Errorf("mirroring vector: %w", err)
		}
	}

	if err := p.store.WriteEmbedding(ctx, doc.Id, vector, meta); err != nil {
		return fmt.Errorf("writing embedding: %w", err)
	}
	return nil
}
