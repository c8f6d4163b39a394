package vectorstore

import (
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
)

// tieWindow is how many hits beyond topK are fetched so that ties at the
// cutoff are resolved by ID rather than by store order.
const tieWindow = 16

// nativeRanker delegates similarity ranking to the backing store.
type nativeRanker struct {
	index     storage.SimilarityIndex
	dimension int
	options   options
	logger    *slog.Logger
}

func (r *nativeRanker) Native() bool { return true }

func (r *nativeRanker) RankByVector(ctx context.Context, query []float32, candidates []core.ID, topK int) ([]core.ScoredID, error) {
	if emptyRequest(candidates, topK) || len(query) == 0 {
		return nil, nil
	}

	if r.dimension > 0 && len(query) != r.dimension {
		// Every stored vector would be skipped
		r.logger.Debug("query dimension differs from store", "query_dim", len(query), "store_dim", r.dimension)
		return nil, nil
	}

	limit := topK + tieWindow
	if candidates != nil {
		limit = min(limit, len(candidates))
	}
	hits, err := r.index.FindSimilar(ctx, query, candidates, limit)
	if err != nil {
		return nil, err
	}

	results := make([]core.ScoredID, 0, len(hits))
	for _, hit := range hits {
		if r.options.passes(hit.Score) {
			results = append(results, hit)
		}
	}

	// Stores order ties arbitrarily; break them by ID
	slices.SortStableFunc(results, func(a, b core.ScoredID) int {
		if ranksBefore(a, b) {
			return -1
		}
		if ranksBefore(b, a) {
			return 1
		}
		return 0
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
