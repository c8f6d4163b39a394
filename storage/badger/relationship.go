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

// RelationshipRepository implements storage.RelationshipRepository for BadgerDB.
type RelationshipRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.RelationshipRepository = (*RelationshipRepository)(nil)

// NewRelationshipRepository creates a new RelationshipRepository.
func NewRelationshipRepository(backend *Backend) (*RelationshipRepository, error) {
	idSeq, err := backend.GetSequence(relationshipIDSeq)
	if err != nil {
		return nil, err
	}

	return &RelationshipRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *RelationshipRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *RelationshipRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddRelationship adds an edge between two existing entities.
func (r *RelationshipRepository) AddRelationship(ctx context.Context, rel *core.Relationship) (*core.Relationship, error) {
	if err := core.ValidateRelationship(rel); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, ref := range []core.EntityRef{rel.From, rel.To} {
			exists, err := entityExists(tx, ref)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("%w: %s %d", storage.ErrNotFound, ref.Kind, ref.Id)
			}
		}

		var err error
		rel.Id, err = nextID(r.idSeq)
		if err != nil {
			return err
		}
		rel.InsertedAt = time.Now().UTC()

		if err := tx.Set(makeRelationshipKey(rel.Id), storage.MarshalRelationship(rel)); err != nil {
			return err
		}

		// Index both endpoints
		for _, ref := range []core.EntityRef{rel.From, rel.To} {
			if err := tx.Set(makeRelationshipEndKey(ref, rel.Id), storage.MarshalID(rel.Id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// GetRelationship retrieves an edge by ID.
func (r *RelationshipRepository) GetRelationship(ctx context.Context, id core.ID) (*core.Relationship, error) {
	var result *core.Relationship
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRelationship(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: relationship %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// RelationshipsOf returns every edge with ref as an endpoint, ordered by ID.
func (r *RelationshipRepository) RelationshipsOf(ctx context.Context, ref core.EntityRef) ([]*core.Relationship, error) {
	var results []*core.Relationship
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		results, err = relationshipsOf(tx, ref)
		return err
	}, false)
	return results, err
}

// DeleteRelationship removes an edge.
func (r *RelationshipRepository) DeleteRelationship(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		rel, err := readRelationship(tx, id)
		if err != nil {
			return err
		}
		if rel == nil {
			return fmt.Errorf("%w: relationship %d", storage.ErrNotFound, id)
		}
		if err := deleteRelationship(tx, rel); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// RelatedDocuments returns documents reached from a document by outgoing
// edges, or by incoming edges marked bidirectional. An empty kind matches
// every relationship kind.
func (r *RelationshipRepository) RelatedDocuments(ctx context.Context, id core.ID, kind string) ([]*core.Document, error) {
	self := core.DocumentRef(id)

	var results []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		if doc == nil {
			return fmt.Errorf("%w: document %d", storage.ErrNotFound, id)
		}

		rels, err := relationshipsOf(tx, self)
		if err != nil {
			return err
		}

		seen := make(map[core.ID]bool)
		for _, rel := range rels {
			if kind != "" && rel.Kind != kind {
				continue
			}

			var other core.EntityRef
			switch {
			case rel.From == self:
				other = rel.To
			case rel.Bidirectional:
				other = rel.From
			default:
				continue
			}
			if other.Kind != core.EntityDocument || seen[other.Id] {
				continue
			}
			seen[other.Id] = true

			related, err := readDocument(tx, other.Id)
			if err != nil {
				return err
			}
			if related != nil {
				results = append(results, related)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.Document) int {
		return cmp.Compare(a.Id, b.Id)
	})
	return results, nil
}

// relationshipsOf reads every edge indexed under ref.
func relationshipsOf(tx *badger.Txn, ref core.EntityRef) ([]*core.Relationship, error) {
	ids, err := scanIndex(tx, makePartialRelationshipEndKey(ref))
	if err != nil {
		return nil, err
	}

	var results []*core.Relationship
	for _, id := range ids {
		rel, err := readRelationship(tx, id)
		if err != nil {
			return nil, err
		}
		if rel != nil {
			results = append(results, rel)
		}
	}
	return results, nil
}

// deleteRelationshipsOf removes every edge touching ref.
func deleteRelationshipsOf(tx *badger.Txn, ref core.EntityRef) error {
	rels, err := relationshipsOf(tx, ref)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if err := deleteRelationship(tx, rel); err != nil {
			return err
		}
	}
	return nil
}

func deleteRelationship(tx *badger.Txn, rel *core.Relationship) error {
	for _, ref := range []core.EntityRef{rel.From, rel.To} {
		if err := tx.Delete(makeRelationshipEndKey(ref, rel.Id)); err != nil {
			return err
		}
	}
	return tx.Delete(makeRelationshipKey(rel.Id))
}

func entityExists(tx *badger.Txn, ref core.EntityRef) (bool, error) {
	switch ref.Kind {
	case core.EntityDocument:
		doc, err := readDocument(tx, ref.Id)
		return doc != nil, err
	case core.EntityTopic:
		topic, err := readTopic(tx, ref.Id)
		return topic != nil, err
	default:
		return false, core.ErrInvalidEntityKind
	}
}
