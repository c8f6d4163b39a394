package vectorstore

import (
	"container/heap"
	"context"
	"log/slog"
	"slices"

	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
)

// bruteForceRanker loads candidate vectors and scores them in process.
type bruteForceRanker struct {
	source  storage.VectorSource
	options options
	logger  *slog.Logger
}

func (r *bruteForceRanker) Native() bool { return false }

func (r *bruteForceRanker) RankByVector(ctx context.Context, query []float32, candidates []core.ID, topK int) ([]core.ScoredID, error) {
	if emptyRequest(candidates, topK) || len(query) == 0 {
		return nil, nil
	}

	vectors, err := r.source.GetEmbeddedVectors(ctx, storage.Filter{Ids: candidates})
	if err != nil {
		return nil, err
	}

	top := make(scoreHeap, 0, min(topK, len(vectors))+1)
	skipped := 0
	for _, v := range vectors {
		score, err := core.CosineSimilarity(query, v.Vector)
		if err != nil {
			// Vectors from another model dimension are not comparable
			skipped++
			continue
		}
		if !r.options.passes(score) {
			continue
		}

		heap.Push(&top, core.ScoredID{Id: v.Id, Score: score})
		if top.Len() > topK {
			heap.Pop(&top)
		}
	}

	if skipped > 0 {
		r.logger.Debug("skipped vectors with mismatched dimension", "skipped", skipped, "query_dim", len(query))
	}

	results := []core.ScoredID(top)
	slices.SortFunc(results, func(a, b core.ScoredID) int {
		if ranksBefore(a, b) {
			return -1
		}
		if ranksBefore(b, a) {
			return 1
		}
		return 0
	})
	return results, nil
}

// scoreHeap is a min-heap whose root is the weakest retained result.
type scoreHeap []core.ScoredID

func (h scoreHeap) Len() int           { return len(h) }
func (h scoreHeap) Less(i, j int) bool { return ranksBefore(h[j], h[i]) }
func (h scoreHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *scoreHeap) Push(x any) {
	*h = append(*h, x.(core.ScoredID))
}

func (h *scoreHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
