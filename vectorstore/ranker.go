package vectorstore

import (
	"context"
	"log/slog"

	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
)

// Capability describes what the backing store can do with vectors.
type Capability struct {
	// Native reports whether the store computes similarity itself.
	Native bool
	// Dimension is the vector length the native store holds (0 = undeclared).
	Dimension int
}

// Ranker orders documents by similarity to a query vector.
type Ranker interface {
	// RankByVector returns up to topK document IDs with their cosine
	// similarity to query, highest first. A nil candidates slice ranks every
	// embedded document; a non-nil one restricts ranking to those IDs.
	RankByVector(ctx context.Context, query []float32, candidates []core.ID, topK int) ([]core.ScoredID, error)

	// Native reports whether ranking is delegated to the backing store.
	Native() bool
}

// Option configures a Ranker.
type Option func(*options) error

type options struct {
	minSimilarity *float32
	logger        *slog.Logger
}

// WithMinSimilarity drops results scoring below threshold.
// No threshold is applied by default.
func WithMinSimilarity(threshold float32) Option {
	return func(o *options) error {
		o.minSimilarity = &threshold
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) error {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
		return nil
	}
}

// New selects the ranking strategy from the capability flag. source is
// required for in-process ranking and index for native ranking; the other
// may be nil.
func New(source storage.VectorSource, index storage.SimilarityIndex, capability Capability, opts ...Option) (Ranker, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, err
		}
	}

	if capability.Native {
		if index == nil {
			return nil, ErrIndexRequired
		}
		return &nativeRanker{
			index:     index,
			dimension: capability.Dimension,
			options:   o,
			logger:    o.logger.With("component", "vectorstore", "strategy", "native"),
		}, nil
	}

	if source == nil {
		return nil, ErrSourceRequired
	}
	return &bruteForceRanker{
		source:  source,
		options: o,
		logger:  o.logger.With("component", "vectorstore", "strategy", "brute-force"),
	}, nil
}

// emptyRequest reports whether a request can produce no results.
func emptyRequest(candidates []core.ID, topK int) bool {
	return topK <= 0 || (candidates != nil && len(candidates) == 0)
}

// passes reports whether a score clears the optional threshold.
func (o options) passes(score float32) bool {
	return o.minSimilarity == nil || score >= *o.minSimilarity
}

// ranksBefore orders by score descending, then ID ascending.
func ranksBefore(a, b core.ScoredID) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Id < b.Id
}
