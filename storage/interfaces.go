package storage

import (
	"context"
	"strings"

	"github.com/poiesic/mimir/core"
)

// Filter narrows document reads. The zero value matches every document.
type Filter struct {
	// TopicId restricts results to documents in one topic (0 = any topic).
	TopicId core.ID
	// Tags restricts results to documents carrying every listed tag, ignoring case.
	Tags []string
	// Ids restricts results to the listed documents (nil = no restriction).
	Ids []core.ID
}

// IsZero reports whether the filter matches everything.
func (f Filter) IsZero() bool {
	return f.TopicId == 0 && len(f.Tags) == 0 && f.Ids == nil
}

// Matches reports whether a document passes the filter.
func (f Filter) Matches(doc *core.Document) bool {
	if doc == nil {
		return false
	}
	if f.TopicId != 0 && doc.TopicId != f.TopicId {
		return false
	}
	for _, tag := range f.Tags {
		if !doc.HasTag(strings.TrimSpace(tag)) {
			return false
		}
	}
	if f.Ids != nil {
		found := false
		for _, id := range f.Ids {
			if id == doc.Id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// DocumentReader reads documents.
type DocumentReader interface {
	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns every document matching the filter, ordered by ID.
	ListDocuments(ctx context.Context, filter Filter) ([]*core.Document, error)
}

// VectorSource supplies stored document vectors for in-process ranking.
type VectorSource interface {
	// GetEmbeddedVectors returns the vectors of all embedded documents matching
	// the filter, ordered by ID. Unembedded documents are omitted.
	GetEmbeddedVectors(ctx context.Context, filter Filter) ([]core.EmbeddedVector, error)
}

// EmbeddingWriter replaces a document's vector and embedding metadata.
type EmbeddingWriter interface {
	// WriteEmbedding replaces the whole vector and metadata of a document.
	// It does not change the document's UpdatedAt timestamp.
	// Returns ErrNotFound if the document doesn't exist.
	WriteEmbedding(ctx context.Context, id core.ID, vector []float32, meta core.EmbeddingMeta) error
}

// TopicReader answers topic preconditions.
type TopicReader interface {
	// TopicExists reports whether a topic exists.
	TopicExists(ctx context.Context, id core.ID) (bool, error)

	// DocumentCountInTopic returns the number of documents referencing a topic.
	DocumentCountInTopic(ctx context.Context, id core.ID) (int, error)
}

// KnowledgeStore is the subset of the store consumed by the retrieval subsystem.
type KnowledgeStore interface {
	DocumentReader
	VectorSource
	EmbeddingWriter
	TopicReader
}

// SimilarityIndex is a backing store that ranks vectors natively.
type SimilarityIndex interface {
	// FindSimilar returns up to limit document IDs ordered by cosine similarity
	// to vector, highest first. A nil candidates slice means every document.
	FindSimilar(ctx context.Context, vector []float32, candidates []core.ID, limit int) ([]core.ScoredID, error)
}

// VectorIndex is a SimilarityIndex that also accepts vector writes.
type VectorIndex interface {
	SimilarityIndex

	// Upsert stores or replaces the vector for a document.
	Upsert(ctx context.Context, id core.ID, vector []float32, meta core.EmbeddingMeta) error

	// Delete removes the vectors of the given documents.
	Delete(ctx context.Context, ids ...core.ID) error
}

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing documents.
type DocumentRepository interface {
	Repository
	DocumentReader
	VectorSource
	EmbeddingWriter

	// AddDocuments validates and adds one or more documents.
	// Generates new IDs from sequence and sets InsertedAt/UpdatedAt.
	// The referenced topic must exist.
	AddDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// UpdateDocuments updates existing documents and their UpdatedAt timestamp.
	// Existing embeddings are kept; they become stale if the content changed.
	// Returns ErrNotFound if any document doesn't exist.
	UpdateDocuments(ctx context.Context, docs ...*core.Document) ([]*core.Document, error)

	// DeleteDocuments removes documents and every relationship touching them.
	// Returns ErrNotFound if any document doesn't exist.
	DeleteDocuments(ctx context.Context, ids ...core.ID) error
}

// TopicRepository provides operations for managing the topic tree.
type TopicRepository interface {
	Repository
	TopicReader

	// AddTopic adds a topic. A non-zero ParentId must reference an existing topic.
	AddTopic(ctx context.Context, topic *core.Topic) (*core.Topic, error)

	// UpdateTopic updates a topic. Returns ErrCycle if the new parent would
	// make the topic its own ancestor.
	UpdateTopic(ctx context.Context, topic *core.Topic) (*core.Topic, error)

	// GetTopic retrieves a topic by ID.
	// Returns ErrNotFound if the topic doesn't exist.
	GetTopic(ctx context.Context, id core.ID) (*core.Topic, error)

	// ListTopics returns all topics sorted by name.
	ListTopics(ctx context.Context) ([]*core.Topic, error)

	// ChildTopics returns the direct children of a topic (0 = root topics).
	ChildTopics(ctx context.Context, parentID core.ID) ([]*core.Topic, error)

	// DeleteTopic removes a topic that has no child topics and no documents.
	// Returns ErrTopicNotEmpty otherwise and ErrNotFound if it doesn't exist.
	DeleteTopic(ctx context.Context, id core.ID) error
}

// RelationshipRepository provides operations for managing the relationship graph.
type RelationshipRepository interface {
	Repository

	// AddRelationship adds an edge. Both endpoints must exist.
	AddRelationship(ctx context.Context, rel *core.Relationship) (*core.Relationship, error)

	// GetRelationship retrieves an edge by ID.
	GetRelationship(ctx context.Context, id core.ID) (*core.Relationship, error)

	// RelationshipsOf returns every edge with ref as an endpoint, ordered by ID.
	RelationshipsOf(ctx context.Context, ref core.EntityRef) ([]*core.Relationship, error)

	// DeleteRelationship removes an edge.
	DeleteRelationship(ctx context.Context, id core.ID) error

	// RelatedDocuments returns documents reached by outgoing edges, plus incoming
	// bidirectional edges, optionally restricted to one kind ("" = any).
	RelatedDocuments(ctx context.Context, id core.ID, kind string) ([]*core.Document, error)
}

// Store aggregates every repository over a single backend.
type Store interface {
	DocumentRepository
	TopicRepository
	RelationshipRepository
}
