package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var (
	_ storage.DocumentRepository = (*DocumentRepository)(nil)
	_ storage.SimilarityIndex    = (*DocumentRepository)(nil)
)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	idSeq, err := backend.GetSequence(documentIDSeq)
	if err != nil {
		return nil, err
	}

	return &DocumentRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *DocumentRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// FindSimilar delegates to the backend.
func (r *DocumentRepository) FindSimilar(ctx context.Context, vector []float32, candidates []core.ID, limit int) ([]core.ScoredID, error) {
	return r.backend.FindSimilar(ctx, vector, candidates, limit)
}

// AddDocuments adds one or more documents to storage.
// Vectors and embedding metadata are never accepted on insert.
func (r *DocumentRepository) AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, doc := range docs {
			topic, err := readTopic(tx, doc.TopicId)
			if err != nil {
				return err
			}
			if topic == nil {
				return fmt.Errorf("%w: topic %d", storage.ErrNotFound, doc.TopicId)
			}

			// Always generate new ID from sequence
			doc.Id, err = nextID(r.idSeq)
			if err != nil {
				return err
			}
			doc.InsertedAt = time.Now().UTC()
			doc.UpdatedAt = doc.InsertedAt
			doc.Vector = nil
			doc.Embedding = nil

			if err := tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc)); err != nil {
				return err
			}

			// Update topic index
			if err := tx.Set(makeDocumentTopicKey(doc.TopicId, doc.Id), storage.MarshalID(doc.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// UpdateDocuments updates existing documents. The stored vector and
// embedding metadata are carried over unchanged.
func (r *DocumentRepository) UpdateDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error) {
	for _, doc := range docs {
		if err := core.ValidateDocument(doc); err != nil {
			return nil, err
		}
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, doc := range docs {
			old, err := readDocument(tx, doc.Id)
			if err != nil {
				return err
			}
			if old == nil {
				return fmt.Errorf("%w: document %d", storage.ErrNotFound, doc.Id)
			}

			if old.TopicId != doc.TopicId {
				topic, err := readTopic(tx, doc.TopicId)
				if err != nil {
					return err
				}
				if topic == nil {
					return fmt.Errorf("%w: topic %d", storage.ErrNotFound, doc.TopicId)
				}
				if err := tx.Delete(makeDocumentTopicKey(old.TopicId, old.Id)); err != nil {
					return err
				}
				if err := tx.Set(makeDocumentTopicKey(doc.TopicId, doc.Id), storage.MarshalID(doc.Id)); err != nil {
					return err
				}
			}

			doc.InsertedAt = old.InsertedAt
			doc.UpdatedAt = time.Now().UTC()
			doc.Vector = old.Vector
			doc.Embedding = old.Embedding

			if err := tx.Set(makeDocumentKey(doc.Id), storage.MarshalDocument(doc)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// DeleteDocuments removes documents and every relationship touching them.
func (r *DocumentRepository) DeleteDocuments(ctx context.Context, ids ...core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			doc, err := readDocument(tx, id)
			if err != nil {
				return err
			}
			if doc == nil {
				return fmt.Errorf("%w: document %d", storage.ErrNotFound, id)
			}

			if err := deleteRelationshipsOf(tx, core.DocumentRef(id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocumentTopicKey(doc.TopicId, id)); err != nil {
				return err
			}
			if err := tx.Delete(makeDocumentKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// GetDocument retrieves a single document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id core.ID) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readDocument(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: document %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// ListDocuments returns every document matching the filter, ordered by ID.
// Unknown IDs in filter.Ids are ignored.
func (r *DocumentRepository) ListDocuments(ctx context.Context, filter storage.Filter) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		collect := func(doc *core.Document) error {
			if filter.Matches(doc) {
				results = append(results, doc)
			}
			return nil
		}

		switch {
		case filter.Ids != nil:
			return readDocuments(tx, filter.Ids, collect)
		case filter.TopicId != 0:
			ids, err := scanIndex(tx, makePartialDocumentTopicKey(filter.TopicId))
			if err != nil {
				return err
			}
			return readDocuments(tx, ids, collect)
		default:
			return scanDocuments(tx, collect)
		}
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.Document) int {
		return cmp.Compare(a.Id, b.Id)
	})
	// Duplicate IDs in filter.Ids would otherwise produce duplicate documents
	results = slices.CompactFunc(results, func(a, b *core.Document) bool {
		return a.Id == b.Id
	})
	return results, nil
}

// GetEmbeddedVectors returns the vectors of embedded documents matching the filter.
func (r *DocumentRepository) GetEmbeddedVectors(ctx context.Context, filter storage.Filter) ([]core.EmbeddedVector, error) {
	docs, err := r.ListDocuments(ctx, filter)
	if err != nil {
		return nil, err
	}

	var vectors []core.EmbeddedVector
	for _, doc := range docs {
		if !doc.HasEmbedding() {
			continue
		}
		vectors = append(vectors, core.EmbeddedVector{
			Id:     doc.Id,
			Vector: doc.Vector,
			Meta:   *doc.Embedding,
		})
	}
	return vectors, nil
}

// WriteEmbedding replaces a document's vector and embedding metadata.
// UpdatedAt is left untouched. An empty vector clears the embedding.
func (r *DocumentRepository) WriteEmbedding(ctx context.Context, id core.ID, vector []float32, meta core.EmbeddingMeta) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("%w: document %d", storage.ErrNotFound, id)
		}

		if len(vector) == 0 {
			doc.Vector = nil
			doc.Embedding = nil
		} else {
			doc.Vector = slices.Clone(vector)
			doc.Embedding = &meta
		}

		if err := tx.Set(makeDocumentKey(id), storage.MarshalDocument(doc)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// readDocuments reads documents by ID, skipping missing ones.
func readDocuments(tx *badger.Txn, ids []core.ID, fn func(doc *core.Document) error) error {
	for _, id := range ids {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			continue
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}
