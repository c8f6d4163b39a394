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

func TestAddDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	topic := addTopic(t, store, "auth")

	docs, err := store.AddDocuments(ctx,
		&core.Document{Title: "JWT", Body: "Tokens", TopicId: topic.Id, Tags: []string{"auth"}},
		&core.Document{
			Title:     "Cookies",
			Body:      "Flags",
			TopicId:   topic.Id,
			Vector:    []float32{1, 2},
			Embedding: &core.EmbeddingMeta{ModelID: "smuggled"},
		},
	)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	assert.NotZero(t, docs[0].Id)
	assert.NotEqual(t, docs[0].Id, docs[1].Id)
	assert.False(t, docs[0].InsertedAt.IsZero())
	assert.Equal(t, docs[0].InsertedAt, docs[0].UpdatedAt)

	stored, err := store.GetDocument(ctx, docs[1].Id)
	require.NoError(t, err)
	assert.Nil(t, stored.Vector, "vectors are only written by WriteEmbedding")
	assert.Nil(t, stored.Embedding)
}

func TestAddDocuments_Invalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	topic := addTopic(t, store, "auth")

	_, err := store.AddDocuments(ctx, &core.Document{Title: "", Body: "b", TopicId: topic.Id})
	assert.ErrorIs(t, err, core.ErrEmptyTitle)

	_, err = store.AddDocuments(ctx, &core.Document{Title: "t", Body: "b", TopicId: topic.Id + 100})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetDocument_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDocument(context.Background(), 999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestUpdateDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	auth := addTopic(t, store, "auth")
	web := addTopic(t, store, "web")
	doc := addEmbeddedDocument(t, store, auth.Id, "JWT", []float32{1, 0})

	stored, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	originalUpdated := stored.UpdatedAt

	time.Sleep(2 * time.Millisecond)
	stored.Body = "changed body"
	stored.TopicId = web.Id
	stored.Vector = nil
	stored.Embedding = nil
	_, err = store.UpdateDocuments(ctx, stored)
	require.NoError(t, err)

	updated, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, "changed body", updated.Body)
	assert.True(t, updated.UpdatedAt.After(originalUpdated))
	assert.Equal(t, []float32{1, 0}, updated.Vector, "embedding survives content edits")
	require.NotNil(t, updated.Embedding)
	assert.Equal(t, core.EmbeddingStale, updated.EmbeddingState(core.ModelIdentity{ID: "test-model", Version: "1"}))

	// Topic index follows the move
	count, err := store.DocumentCountInTopic(ctx, auth.Id)
	require.NoError(t, err)
	assert.Zero(t, count)
	count, err = store.DocumentCountInTopic(ctx, web.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestUpdateDocuments_NotFound(t *testing.T) {
	store := newTestStore(t)
	topic := addTopic(t, store, "auth")

	_, err := store.UpdateDocuments(context.Background(), &core.Document{Id: 42, Title: "t", Body: "b", TopicId: topic.Id})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteDocuments(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	topic := addTopic(t, store, "auth")
	a := addEmbeddedDocument(t, store, topic.Id, "A", nil)
	b := addEmbeddedDocument(t, store, topic.Id, "B", nil)

	rel, err := store.AddRelationship(ctx, &core.Relationship{
		Kind: core.RelatesTo,
		From: core.DocumentRef(a.Id),
		To:   core.DocumentRef(b.Id),
	})
	require.NoError(t, err)

	require.NoError(t, store.DeleteDocuments(ctx, a.Id))

	_, err = store.GetDocument(ctx, a.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetRelationship(ctx, rel.Id)
	assert.ErrorIs(t, err, storage.ErrNotFound, "relationships cascade with the document")

	rels, err := store.RelationshipsOf(ctx, core.DocumentRef(b.Id))
	require.NoError(t, err)
	assert.Empty(t, rels)

	assert.ErrorIs(t, store.DeleteDocuments(ctx, a.Id), storage.ErrNotFound)
}

func TestListDocuments_Filters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	auth := addTopic(t, store, "auth")
	web := addTopic(t, store, "web")

	docs, err := store.AddDocuments(ctx,
		&core.Document{Title: "JWT", Body: "b", TopicId: auth.Id, Tags: []string{"Auth", "tokens"}},
		&core.Document{Title: "CSRF", Body: "b", TopicId: web.Id, Tags: []string{"auth"}},
		&core.Document{Title: "CSS", Body: "b", TopicId: web.Id},
	)
	require.NoError(t, err)
	jwt, csrf, css := docs[0], docs[1], docs[2]

	tests := []struct {
		name   string
		filter storage.Filter
		want   []core.ID
	}{
		{"everything", storage.Filter{}, []core.ID{jwt.Id, csrf.Id, css.Id}},
		{"by topic", storage.Filter{TopicId: web.Id}, []core.ID{csrf.Id, css.Id}},
		{"by tag ignoring case", storage.Filter{Tags: []string{"AUTH"}}, []core.ID{jwt.Id, csrf.Id}},
		{"all tags required", storage.Filter{Tags: []string{"auth", "tokens"}}, []core.ID{jwt.Id}},
		{"by ids", storage.Filter{Ids: []core.ID{css.Id, jwt.Id, 999}}, []core.ID{jwt.Id, css.Id}},
		{"topic and ids", storage.Filter{TopicId: web.Id, Ids: []core.ID{jwt.Id, css.Id}}, []core.ID{css.Id}},
		{"empty ids", storage.Filter{Ids: []core.ID{}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListDocuments(ctx, tt.filter)
			require.NoError(t, err)

			var ids []core.ID
			for _, doc := range got {
				ids = append(ids, doc.Id)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestWriteEmbedding(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	topic := addTopic(t, store, "auth")
	doc := addEmbeddedDocument(t, store, topic.Id, "JWT", nil)

	before, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)

	meta := core.EmbeddingMeta{
		ModelID:      "m",
		ModelVersion: "2",
		Fingerprint:  before.Fingerprint(),
		ComputedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.WriteEmbedding(ctx, doc.Id, []float32{0.6, 0.8}, meta))

	after, err := store.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, after.Vector)
	assert.Equal(t, meta, *after.Embedding)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "embedding writes do not touch UpdatedAt")

	vectors, err := store.GetEmbeddedVectors(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, doc.Id, vectors[0].Id)
	assert.Equal(t, "m", vectors[0].Meta.ModelID)

	// Empty vector clears the embedding
	require.NoError(t, store.WriteEmbedding(ctx, doc.Id, nil, meta))
	vectors, err = store.GetEmbeddedVectors(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, vectors)

	assert.ErrorIs(t, store.WriteEmbedding(ctx, 999, []float32{1}, meta), storage.ErrNotFound)
}
