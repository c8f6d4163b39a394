package vectorstore

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
	"github.com/poiesic/mimir/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource serves fixed vectors.
type fakeSource struct {
	vectors []core.EmbeddedVector
	err     error
	filters []storage.Filter
}

func (f *fakeSource) GetEmbeddedVectors(ctx context.Context, filter storage.Filter) ([]core.EmbeddedVector, error) {
	f.filters = append(f.filters, filter)
	if f.err != nil {
		return nil, f.err
	}
	var out []core.EmbeddedVector
	for _, v := range f.vectors {
		if filter.Ids != nil && !containsID(filter.Ids, v.Id) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func containsID(ids []core.ID, id core.ID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// fakeIndex returns canned hits in the given order, truncated to limit.
type fakeIndex struct {
	hits  []core.ScoredID
	err   error
	calls int
	limit int
}

func (f *fakeIndex) FindSimilar(ctx context.Context, vector []float32, candidates []core.ID, limit int) ([]core.ScoredID, error) {
	f.calls++
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.hits[:min(limit, len(f.hits))], nil
}

func vec(id core.ID, values ...float32) core.EmbeddedVector {
	return core.EmbeddedVector{Id: id, Vector: values}
}

func ids(results []core.ScoredID) []core.ID {
	var out []core.ID
	for _, r := range results {
		out = append(out, r.Id)
	}
	return out
}

func TestNew(t *testing.T) {
	_, err := New(nil, nil, Capability{})
	assert.ErrorIs(t, err, ErrSourceRequired)

	_, err = New(&fakeSource{}, nil, Capability{Native: true})
	assert.ErrorIs(t, err, ErrIndexRequired)

	r, err := New(&fakeSource{}, nil, Capability{})
	require.NoError(t, err)
	assert.False(t, r.Native())

	r, err = New(nil, &fakeIndex{}, Capability{Native: true, Dimension: 3})
	require.NoError(t, err)
	assert.True(t, r.Native())
}

func TestBruteForce_RankByVector(t *testing.T) {
	source := &fakeSource{vectors: []core.EmbeddedVector{
		vec(5, 0, 1, 0),
		vec(3, 1, 0, 0),
		vec(4, 0.8, 0.6, 0),
		vec(1, 1, 0, 0),
		vec(2, 1, 0), // other dimension
		vec(6, -1, 0, 0),
	}}
	r, err := New(source, nil, Capability{})
	require.NoError(t, err)
	ctx := context.Background()
	query := []float32{2, 0, 0}

	t.Run("ordered by score then id", func(t *testing.T) {
		results, err := r.RankByVector(ctx, query, nil, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{1, 3, 4, 5, 6}, ids(results))
		assert.InDelta(t, 1.0, results[0].Score, 1e-6)
		assert.InDelta(t, 0.8, results[2].Score, 1e-6)
		assert.InDelta(t, -1.0, results[4].Score, 1e-6)
	})

	t.Run("top k keeps best", func(t *testing.T) {
		results, err := r.RankByVector(ctx, query, nil, 2)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{1, 3}, ids(results))
	})

	t.Run("candidates restrict", func(t *testing.T) {
		results, err := r.RankByVector(ctx, query, []core.ID{5, 4, 2}, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{4, 5}, ids(results))
	})

	t.Run("empty candidates", func(t *testing.T) {
		results, err := r.RankByVector(ctx, query, []core.ID{}, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("non-positive top k", func(t *testing.T) {
		results, err := r.RankByVector(ctx, query, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("query in other dimension", func(t *testing.T) {
		results, err := r.RankByVector(ctx, []float32{0, 1}, nil, 10)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{2}, ids(results))
	})

	t.Run("source error", func(t *testing.T) {
		boom := errors.New("boom")
		failing, err := New(&fakeSource{err: boom}, nil, Capability{})
		require.NoError(t, err)
		_, err = failing.RankByVector(ctx, query, nil, 3)
		assert.ErrorIs(t, err, boom)
	})
}

func TestBruteForce_MinSimilarity(t *testing.T) {
	source := &fakeSource{vectors: []core.EmbeddedVector{
		vec(1, 1, 0),
		vec(2, 0.6, 0.8),
		vec(3, 0, 1),
	}}
	r, err := New(source, nil, Capability{}, WithMinSimilarity(0.5))
	require.NoError(t, err)

	results, err := r.RankByVector(context.Background(), []float32{1, 0}, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{1, 2}, ids(results))
}

func TestNative_RankByVector(t *testing.T) {
	ctx := context.Background()

	t.Run("reorders ties by id", func(t *testing.T) {
		index := &fakeIndex{hits: []core.ScoredID{
			{Id: 9, Score: 0.9},
			{Id: 7, Score: 0.5},
			{Id: 2, Score: 0.5},
			{Id: 4, Score: 0.1},
		}}
		r, err := New(nil, index, Capability{Native: true, Dimension: 2})
		require.NoError(t, err)

		results, err := r.RankByVector(ctx, []float32{1, 0}, nil, 4)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{9, 2, 7, 4}, ids(results))
	})

	t.Run("ties at the cutoff resolve by id", func(t *testing.T) {
		index := &fakeIndex{hits: []core.ScoredID{
			{Id: 7, Score: 0.5},
			{Id: 5, Score: 0.5},
			{Id: 3, Score: 0.5},
		}}
		r, err := New(nil, index, Capability{Native: true})
		require.NoError(t, err)

		results, err := r.RankByVector(ctx, []float32{1, 0}, nil, 1)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{3}, ids(results))
		assert.Greater(t, index.limit, 1)
	})

	t.Run("fetch limit capped by candidates", func(t *testing.T) {
		index := &fakeIndex{hits: []core.ScoredID{{Id: 2, Score: 0.5}, {Id: 1, Score: 0.5}}}
		r, err := New(nil, index, Capability{Native: true})
		require.NoError(t, err)

		results, err := r.RankByVector(ctx, []float32{1, 0}, []core.ID{1, 2}, 1)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{1}, ids(results))
		assert.Equal(t, 2, index.limit)
	})

	t.Run("dimension mismatch skips store", func(t *testing.T) {
		index := &fakeIndex{hits: []core.ScoredID{{Id: 1, Score: 1}}}
		r, err := New(nil, index, Capability{Native: true, Dimension: 3})
		require.NoError(t, err)

		results, err := r.RankByVector(ctx, []float32{1, 0}, nil, 4)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Zero(t, index.calls)
	})

	t.Run("empty candidates skip store", func(t *testing.T) {
		index := &fakeIndex{}
		r, err := New(nil, index, Capability{Native: true})
		require.NoError(t, err)

		results, err := r.RankByVector(ctx, []float32{1, 0}, []core.ID{}, 4)
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Zero(t, index.calls)
	})

	t.Run("store error", func(t *testing.T) {
		boom := errors.New("boom")
		r, err := New(nil, &fakeIndex{err: boom}, Capability{Native: true})
		require.NoError(t, err)

		_, err = r.RankByVector(ctx, []float32{1, 0}, nil, 4)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("min similarity", func(t *testing.T) {
		index := &fakeIndex{hits: []core.ScoredID{{Id: 1, Score: 0.9}, {Id: 2, Score: 0.2}}}
		r, err := New(nil, index, Capability{Native: true}, WithMinSimilarity(0.5))
		require.NoError(t, err)

		results, err := r.RankByVector(ctx, []float32{1, 0}, nil, 4)
		require.NoError(t, err)
		assert.Equal(t, []core.ID{1}, ids(results))
	})
}

// Both strategies must agree on the same store.
func TestStrategiesAgree(t *testing.T) {
	store, err := badger.NewMemoryStore()
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	topic, err := store.AddTopic(ctx, &core.Topic{Name: "t"})
	require.NoError(t, err)

	vectors := [][]float32{{1, 0, 0}, {0.7, 0.7, 0}, {0, 1, 0}, {1, 0, 0}, {0, 0, 1}, {1, 1}}
	for i, v := range vectors {
		docs, err := store.AddDocuments(ctx, &core.Document{Title: string(rune('a' + i)), Body: "b", TopicId: topic.Id})
		require.NoError(t, err)
		require.NoError(t, store.WriteEmbedding(ctx, docs[0].Id, v, core.EmbeddingMeta{ModelID: "m", ModelVersion: "1"}))
	}

	brute, err := New(store, nil, Capability{})
	require.NoError(t, err)
	native, err := New(nil, store, Capability{Native: true})
	require.NoError(t, err)

	query := []float32{0.9, 0.1, 0}
	for _, topK := range []int{1, 3, 10} {
		want, err := brute.RankByVector(ctx, query, nil, topK)
		require.NoError(t, err)
		got, err := native.RankByVector(ctx, query, nil, topK)
		require.NoError(t, err)
		assert.Equal(t, ids(want), ids(got), "topK=%d", topK)
	}
}
