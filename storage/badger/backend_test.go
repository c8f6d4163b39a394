package badger

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore opens an in-memory store that is closed when the test ends.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// addTopic adds a root topic with the given name.
func addTopic(t *testing.T, store *Store, name string) *core.Topic {
	t.Helper()
	topic, err := store.AddTopic(context.Background(), &core.Topic{Name: name})
	require.NoError(t, err)
	return topic
}

// addEmbeddedDocument adds a document and writes a vector for it.
func addEmbeddedDocument(t *testing.T, store *Store, topicID core.ID, title string, vector []float32) *core.Document {
	t.Helper()
	ctx := context.Background()
	docs, err := store.AddDocuments(ctx, &core.Document{Title: title, Body: title + " body", TopicId: topicID})
	require.NoError(t, err)
	doc := docs[0]
	if vector != nil {
		meta := core.EmbeddingMeta{
			ModelID:      "test-model",
			ModelVersion: "1",
			Fingerprint:  doc.Fingerprint(),
			ComputedAt:   time.Now().UTC(),
		}
		require.NoError(t, store.WriteEmbedding(ctx, doc.Id, vector, meta))
	}
	return doc
}

func TestOpenBackend_InMemory(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestOpenBackend_FileSystem(t *testing.T) {
	tmpDir := t.TempDir()
	backend, err := OpenBackend(tmpDir, false)
	require.NoError(t, err)
	require.NotNil(t, backend)
	defer backend.Close()

	assert.False(t, backend.IsClosed())
}

func TestBackendClose(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)

	assert.False(t, backend.IsClosed())
	require.NoError(t, backend.Close())
	assert.True(t, backend.IsClosed())

	err = backend.WithTx(nil, false)
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestFindSimilar_NoRecords(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	results, err := backend.FindSimilar(context.Background(), []float32{0.1, 0.2, 0.3}, nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFindSimilar_WithRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	topic := addTopic(t, store, "vectors")

	first := addEmbeddedDocument(t, store, topic.Id, "First", []float32{1, 0, 0})
	second := addEmbeddedDocument(t, store, topic.Id, "Second", []float32{0.9, 0.1, 0})
	third := addEmbeddedDocument(t, store, topic.Id, "Third", []float32{0, 0, 1})
	addEmbeddedDocument(t, store, topic.Id, "No vector", nil)
	addEmbeddedDocument(t, store, topic.Id, "Other model", []float32{1, 0})

	results, err := store.FindSimilar(ctx, []float32{1, 0, 0}, nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, first.Id, results[0].Id)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, second.Id, results[1].Id)
	assert.Equal(t, third.Id, results[2].Id)
	assert.InDelta(t, 0.0, results[2].Score, 1e-6)
}

func TestFindSimilar_CandidatesAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	topic := addTopic(t, store, "vectors")

	a := addEmbeddedDocument(t, store, topic.Id, "A", []float32{1, 0})
	b := addEmbeddedDocument(t, store, topic.Id, "B", []float32{1, 0})
	c := addEmbeddedDocument(t, store, topic.Id, "C", []float32{0.5, 0.5})

	t.Run("ties ordered by id", func(t *testing.T) {
		results, err := store.FindSimilar(ctx, []float32{1, 0}, nil, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, a.Id, results[0].Id)
		assert.Equal(t, b.Id, results[1].Id)
	})

	t.Run("candidate restriction", func(t *testing.T) {
		results, err := store.FindSimilar(ctx, []float32{1, 0}, []core.ID{c.Id, b.Id}, 10)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, b.Id, results[0].Id)
		assert.Equal(t, c.Id, results[1].Id)
	})

	t.Run("empty candidate set", func(t *testing.T) {
		results, err := store.FindSimilar(ctx, []float32{1, 0}, []core.ID{}, 10)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("zero limit", func(t *testing.T) {
		results, err := store.FindSimilar(ctx, []float32{1, 0}, nil, 0)
		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(dir)
	require.NoError(t, err)
	topic, err := store.AddTopic(ctx, &core.Topic{Name: "persisted"})
	require.NoError(t, err)
	docs, err := store.AddDocuments(ctx, &core.Document{Title: "kept", Body: "on disk", TopicId: topic.Id})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	doc, err := store.GetDocument(ctx, docs[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "kept", doc.Title)

	// New IDs never collide with persisted ones
	more, err := store.AddDocuments(ctx, &core.Document{Title: "new", Body: "after reopen", TopicId: topic.Id})
	require.NoError(t, err)
	assert.NotEqual(t, docs[0].Id, more[0].Id)
}
