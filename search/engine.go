package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/mimir/ai"
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/keyword"
	"github.com/poiesic/mimir/storage"
	"github.com/poiesic/mimir/vectorstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/poiesic/mimir/search"

// Store is the part of the knowledge store the engine reads.
type Store interface {
	storage.DocumentReader
	storage.TopicReader
}

// Engine runs keyword, semantic and hybrid searches over a document store.
// An Engine never writes and is safe for concurrent use.
type Engine struct {
	store    Store
	ranker   vectorstore.Ranker
	embedder ai.Embedder
	model    core.ModelIdentity
	scorer   *keyword.Scorer
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine) error

// WithScorer sets the keyword scorer.
// Default is a scorer with keyword.DefaultTagBonus.
func WithScorer(scorer *keyword.Scorer) Option {
	return func(e *Engine) error {
		if scorer != nil {
			e.scorer = scorer
		}
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider.
// Default is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) error {
		if tp == nil {
			tp = otel.GetTracerProvider()
		}
		e.tracer = tp.Tracer(tracerName)
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) error {
		if logger == nil {
			logger = slog.Default()
		}
		e.logger = logger
		return nil
	}
}

// NewEngine creates a search engine. Query vectors are computed with the
// provider's embedder and compared against vectors attributed to its model.
func NewEngine(store Store, ranker vectorstore.Ranker, provider ai.AIProvider, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if ranker == nil {
		return nil, ErrRankerRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	scorer, err := keyword.NewScorer()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:    store,
		ranker:   ranker,
		embedder: provider.Embedder(),
		model:    provider.Model(),
		scorer:   scorer,
		tracer:   otel.Tracer(tracerName),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "search")

	return e, nil
}

// Search runs a search. Invalid requests fail before any work is done.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	return e.SearchWithMonitor(ctx, req, nil)
}

// SearchWithMonitor runs a search, reporting each stage to monitor.
func (e *Engine) SearchWithMonitor(ctx context.Context, req Request, monitor SearchMonitor) (resp *Response, err error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	ctx, span := e.tracer.Start(ctx, "search.Search", trace.WithAttributes(
		attribute.String("search.mode", string(req.Mode)),
		attribute.Int("search.top_k", req.TopK),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(
				attribute.Int("search.results", len(resp.Results)),
				attribute.String("search.reason", string(resp.Reason)),
			)
		}
		span.End()
	}()

	mode, err := e.validate(ctx, &req)
	if err != nil {
		return nil, err
	}
	req.Mode = mode
	monitor.Start(req)

	resp = &Response{Mode: mode}
	defer func() {
		if err == nil {
			monitor.Finish(resp)
		}
	}()

	if req.Filter.TopicId != 0 {
		count, err := e.store.DocumentCountInTopic(ctx, req.Filter.TopicId)
		if err != nil {
			return nil, err
		}
		if count == 0 {
			resp.Reason = e.emptyReason(mode, 0)
			return resp, nil
		}
	}

	docs, err := e.store.ListDocuments(ctx, req.Filter)
	if err != nil {
		return nil, err
	}
	snap := newSnapshot(docs)
	monitor.AfterSnapshot(docs, snap.embedded)

	e.logger.Debug("searching", "mode", mode, "documents", len(docs), "embedded", snap.embedded)

	switch mode {
	case ModeKeyword:
		resp.Results = e.keywordResults(req, snap, monitor, MethodKeyword, nil, req.TopK)
		if len(resp.Results) == 0 {
			resp.Reason = ReasonNoResults
		}
		return resp, nil

	case ModeSemantic:
		if snap.embedded == 0 {
			resp.Reason = ReasonNoEmbeddedDocuments
			return resp, nil
		}
		results, err := e.semanticResults(ctx, req, snap, monitor)
		if err != nil {
			return nil, err
		}
		resp.Results = results
		if len(results) == 0 {
			resp.Reason = ReasonNoResults
		}
		return resp, nil
	}

	// auto
	if snap.embedded == 0 {
		resp.Results = e.keywordResults(req, snap, monitor, MethodKeywordFallback, nil, req.TopK)
		resp.Reason = e.emptyReason(mode, len(resp.Results))
		return resp, nil
	}

	results, err := e.semanticResults(ctx, req, snap, monitor)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		e.logger.Warn("semantic search unavailable, falling back to keyword search", "err", err)
		monitor.SemanticUnavailable(err)
		resp.Results = e.keywordResults(req, snap, monitor, MethodKeywordFallback, nil, req.TopK)
		resp.Reason = ReasonSemanticUnavailable
		return resp, nil
	}

	if len(results) < req.TopK {
		present := make(map[core.ID]bool, len(results))
		for _, r := range results {
			present[r.DocumentId] = true
		}
		fill := e.keywordResults(req, snap, monitor, MethodKeyword, present, req.TopK-len(results))
		results = append(results, fill...)
	}
	resp.Results = results
	if len(results) == 0 {
		resp.Reason = ReasonNoResults
	}
	return resp, nil
}

// validate checks the request and resolves its mode.
func (e *Engine) validate(ctx context.Context, req *Request) (Mode, error) {
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(req.Query) == "" {
		return "", fmt.Errorf("%w: query is empty", ErrInvalidQuery)
	}
	if req.TopK < 1 {
		return "", fmt.Errorf("%w: top-k must be at least 1, got %d", ErrInvalidQuery, req.TopK)
	}
	if req.Filter.TopicId != 0 {
		exists, err := e.store.TopicExists(ctx, req.Filter.TopicId)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", fmt.Errorf("%w: topic %d", ErrNotFound, req.Filter.TopicId)
		}
	}
	return mode, nil
}

// emptyReason picks the reason for a response with n results produced
// without running the semantic path.
func (e *Engine) emptyReason(mode Mode, n int) Reason {
	switch {
	case n > 0 && mode == ModeAuto:
		return ReasonKeywordFallback
	case n > 0:
		return ReasonNone
	case mode == ModeSemantic:
		return ReasonNoEmbeddedDocuments
	default:
		return ReasonNoResults
	}
}

// semanticResults embeds the query and ranks the embedded documents of the snapshot.
func (e *Engine) semanticResults(ctx context.Context, req Request, snap *snapshot, monitor SearchMonitor) ([]Result, error) {
	vector, err := e.embedder.EmbedText(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", core.ErrEncodingFailure, err)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query produced an empty vector", core.ErrEncodingFailure)
	}
	vector = core.NormalizeVector(vector)

	hits, err := e.ranker.RankByVector(ctx, vector, snap.candidates(req.Filter), req.TopK)
	if err != nil {
		return nil, fmt.Errorf("ranking by vector: %w", err)
	}
	monitor.AfterSemanticSearch(hits)

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		doc, ok := snap.byID[hit.Id]
		// A native index can know documents the snapshot does not, or hold
		// vectors the store has since cleared.
		if !ok || !doc.HasEmbedding() {
			e.logger.Debug("dropping semantic hit outside snapshot", "document", hit.Id)
			continue
		}
		results = append(results, Result{
			DocumentId: hit.Id,
			Score:      float64(hit.Score),
			Method:     MethodSemantic,
			Stale:      doc.EmbeddingState(e.model) == core.EmbeddingStale,
			Document:   doc,
		})
	}
	return results, nil
}

// keywordResults ranks the snapshot by keyword score, skipping documents in
// exclude, and returns at most limit results.
func (e *Engine) keywordResults(req Request, snap *snapshot, monitor SearchMonitor, method Method, exclude map[core.ID]bool, limit int) []Result {
	hits := e.scorer.Rank(req.Query, snap.docs, 0)
	monitor.AfterKeywordSearch(hits)

	results := make([]Result, 0, min(limit, len(hits)))
	for _, hit := range hits {
		if len(results) == limit {
			break
		}
		if exclude[hit.Document.Id] {
			continue
		}
		results = append(results, Result{
			DocumentId: hit.Document.Id,
			Score:      hit.Score,
			Method:     method,
			Document:   hit.Document,
		})
	}
	return results
}

// snapshot is the read-only document set one search runs against.
type snapshot struct {
	docs     []*core.Document
	byID     map[core.ID]*core.Document
	embedded int
}

func newSnapshot(docs []*core.Document) *snapshot {
	s := &snapshot{
		docs: docs,
		byID: make(map[core.ID]*core.Document, len(docs)),
	}
	for _, doc := range docs {
		s.byID[doc.Id] = doc
		if doc.HasEmbedding() {
			s.embedded++
		}
	}
	return s
}

// candidates returns the embedded document IDs to rank. An unfiltered
// search ranks everything and lets the engine drop hits outside the snapshot.
func (s *snapshot) candidates(filter storage.Filter) []core.ID {
	if filter.IsZero() {
		return nil
	}
	ids := make([]core.ID, 0, s.embedded)
	for _, doc := range s.docs {
		if doc.HasEmbedding() {
			ids = append(ids, doc.Id)
		}
	}
	return ids
}
