package badger

import (
	"context"
	"errors"

	"github.com/poiesic/mimir/storage"
)

// Store aggregates the document, topic and relationship repositories over
// a single Backend and implements storage.Store.
type Store struct {
	*DocumentRepository
	*TopicRepository
	*RelationshipRepository

	backend *Backend
	owned   bool
}

var (
	_ storage.Store           = (*Store)(nil)
	_ storage.KnowledgeStore  = (*Store)(nil)
	_ storage.SimilarityIndex = (*Store)(nil)
)

// NewStore opens (or creates) a database directory and returns a Store that
// owns it. Close releases the sequences and closes the database.
func NewStore(path string) (*Store, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	store, err := NewStoreWithBackend(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	store.owned = true
	return store, nil
}

// NewStoreWithBackend builds a Store over an already open Backend.
// The caller remains responsible for closing the backend.
func NewStoreWithBackend(backend *Backend) (*Store, error) {
	docs, err := NewDocumentRepository(backend)
	if err != nil {
		return nil, err
	}
	topics, err := NewTopicRepository(backend)
	if err != nil {
		docs.Close()
		return nil, err
	}
	rels, err := NewRelationshipRepository(backend)
	if err != nil {
		topics.Close()
		docs.Close()
		return nil, err
	}

	return &Store{
		DocumentRepository:     docs,
		TopicRepository:        topics,
		RelationshipRepository: rels,
		backend:                backend,
	}, nil
}

// Backend returns the underlying backend.
func (s *Store) Backend() *Backend {
	return s.backend
}

// WithTransaction delegates to the backend.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.backend.WithTransaction(ctx, fn)
}

// Close releases every repository sequence, and the database when the
// Store opened it.
func (s *Store) Close() error {
	errs := []error{
		s.RelationshipRepository.Close(),
		s.TopicRepository.Close(),
		s.DocumentRepository.Close(),
	}
	if s.owned {
		errs = append(errs, s.backend.Close())
	}
	return errors.Join(errs...)
}
