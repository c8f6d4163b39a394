package core

import (
	"strings"
	"time"
)

// ID is a unique identifier for domain entities, assigned by store sequences.
type ID uint64

// ModelIdentity names the embedding model a vector was computed with.
// Two vectors are only comparable when their identities match.
type ModelIdentity struct {
	ID        string
	Version   string
	Dimension int // 0 when the model does not declare one
}

// String returns "id@version".
func (m ModelIdentity) String() string {
	return m.ID + "@" + m.Version
}

// EmbeddingMeta describes how and from what content a document vector was computed.
type EmbeddingMeta struct {
	ModelID      string
	ModelVersion string
	Fingerprint  string
	ComputedAt   time.Time
}

// Matches reports whether the metadata was produced by the given model
// from content with the given fingerprint.
func (m *EmbeddingMeta) Matches(model ModelIdentity, fingerprint string) bool {
	if m == nil {
		return false
	}
	return m.ModelID == model.ID && m.ModelVersion == model.Version && m.Fingerprint == fingerprint
}

// EmbeddingState classifies a document's vector against the current content and model.
type EmbeddingState int

const (
	// EmbeddingUnembedded means the document has no vector at all.
	EmbeddingUnembedded EmbeddingState = iota
	// EmbeddingStale means a vector exists but its fingerprint or model no longer match.
	EmbeddingStale
	// EmbeddingCurrent means the vector matches the current content and model.
	EmbeddingCurrent
)

func (s EmbeddingState) String() string {
	switch s {
	case EmbeddingUnembedded:
		return "unembedded"
	case EmbeddingStale:
		return "stale"
	case EmbeddingCurrent:
		return "current"
	default:
		return "unknown"
	}
}

// Document is a short text entry in the knowledge base.
// Vector and Embedding are populated only by the embedding pipeline.
type Document struct {
	Id         ID
	Title      string
	Body       string
	Summary    string   // Optional short summary, included in keyword and embedding text
	Tags       []string // Ordered, curated labels
	TopicId    ID
	Vector     []float32      // Embedding vector, nil when unembedded
	Embedding  *EmbeddingMeta // nil when unembedded
	Confidence float64        // 0-1
	InsertedAt time.Time
	UpdatedAt  time.Time // Last modification of content or metadata
}

// Fingerprint returns the content fingerprint of the text the document's
// vector is computed from: title, summary and body.
func (d *Document) Fingerprint() string {
	return Fingerprint(d.Title, d.Summary, d.Body)
}

// HasEmbedding reports whether the document carries a vector.
func (d *Document) HasEmbedding() bool {
	return len(d.Vector) > 0 && d.Embedding != nil
}

// EmbeddingState classifies the document's vector against its content and the given model.
func (d *Document) EmbeddingState(model ModelIdentity) EmbeddingState {
	if !d.HasEmbedding() {
		return EmbeddingUnembedded
	}
	if !d.Embedding.Matches(model, d.Fingerprint()) {
		return EmbeddingStale
	}
	return EmbeddingCurrent
}

// EmbeddingText returns the text a document's vector is computed from.
func (d *Document) EmbeddingText() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Title, d.Summary, d.Body} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// HasTag reports whether the document carries the tag, ignoring case.
func (d *Document) HasTag(tag string) bool {
	for _, t := range d.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Topic is a node in the topic tree. ParentId 0 marks a root topic.
type Topic struct {
	Id          ID
	Name        string
	Description string
	ParentId    ID
	InsertedAt  time.Time
	UpdatedAt   time.Time
}

// IsRoot reports whether the topic has no parent.
func (t *Topic) IsRoot() bool {
	return t.ParentId == 0
}

// EntityKind identifies what an EntityRef points at.
type EntityKind int

const (
	// EntityDocument refers to a Document.
	EntityDocument EntityKind = iota + 1
	// EntityTopic refers to a Topic.
	EntityTopic
)

func (k EntityKind) String() string {
	switch k {
	case EntityDocument:
		return "document"
	case EntityTopic:
		return "topic"
	default:
		return "unknown"
	}
}

// EntityRef is a typed reference to a document or topic.
type EntityRef struct {
	Kind EntityKind
	Id   ID
}

// DocumentRef returns a reference to the document with the given ID.
func DocumentRef(id ID) EntityRef {
	return EntityRef{Kind: EntityDocument, Id: id}
}

// TopicRef returns a reference to the topic with the given ID.
func TopicRef(id ID) EntityRef {
	return EntityRef{Kind: EntityTopic, Id: id}
}

// Common relationship kinds.
const (
	RelatesTo  = "relates-to"
	Supersedes = "supersedes"
	PartOf     = "part-of"
	BelongsTo  = "belongs-to"
)

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	Id            ID
	Kind          string
	From          EntityRef
	To            EntityRef
	Weight        float64
	Bidirectional bool
	InsertedAt    time.Time
}

// Touches reports whether the relationship has ref as one of its endpoints.
func (r *Relationship) Touches(ref EntityRef) bool {
	return r.From == ref || r.To == ref
}

// EmbeddedVector is a stored document vector together with its metadata.
type EmbeddedVector struct {
	Id     ID
	Vector []float32
	Meta   EmbeddingMeta
}

// ScoredID is a document ID paired with a similarity score.
type ScoredID struct {
	Id    ID
	Score float32
}
