package badger

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/storage"
)

// TopicRepository implements storage.TopicRepository for BadgerDB.
type TopicRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.TopicRepository = (*TopicRepository)(nil)

// NewTopicRepository creates a new TopicRepository.
func NewTopicRepository(backend *Backend) (*TopicRepository, error) {
	idSeq, err := backend.GetSequence(topicIDSeq)
	if err != nil {
		return nil, err
	}

	return &TopicRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (r *TopicRepository) Close() error {
	return r.idSeq.Release()
}

// WithTransaction delegates to the backend.
func (r *TopicRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddTopic adds a topic. A non-zero ParentId must reference an existing topic.
func (r *TopicRepository) AddTopic(ctx context.Context, topic *core.Topic) (*core.Topic, error) {
	if err := core.ValidateTopic(topic); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		if err := requireParent(tx, topic.ParentId); err != nil {
			return err
		}

		var err error
		topic.Id, err = nextID(r.idSeq)
		if err != nil {
			return err
		}
		topic.InsertedAt = time.Now().UTC()
		topic.UpdatedAt = topic.InsertedAt

		if err := tx.Set(makeTopicKey(topic.Id), storage.MarshalTopic(topic)); err != nil {
			return err
		}
		if err := tx.Set(makeTopicParentKey(topic.ParentId, topic.Id), storage.MarshalID(topic.Id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return topic, nil
}

// UpdateTopic updates a topic's name, description and parent.
func (r *TopicRepository) UpdateTopic(ctx context.Context, topic *core.Topic) (*core.Topic, error) {
	if err := core.ValidateTopic(topic); err != nil {
		return nil, err
	}

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		old, err := readTopic(tx, topic.Id)
		if err != nil {
			return err
		}
		if old == nil {
			return fmt.Errorf("%w: topic %d", storage.ErrNotFound, topic.Id)
		}

		if old.ParentId != topic.ParentId {
			if err := requireParent(tx, topic.ParentId); err != nil {
				return err
			}
			if err := checkAncestry(tx, topic.Id, topic.ParentId); err != nil {
				return err
			}
			if err := tx.Delete(makeTopicParentKey(old.ParentId, old.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeTopicParentKey(topic.ParentId, topic.Id), storage.MarshalID(topic.Id)); err != nil {
				return err
			}
		}

		topic.InsertedAt = old.InsertedAt
		topic.UpdatedAt = time.Now().UTC()
		if err := tx.Set(makeTopicKey(topic.Id), storage.MarshalTopic(topic)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return topic, nil
}

// GetTopic retrieves a topic by ID.
func (r *TopicRepository) GetTopic(ctx context.Context, id core.ID) (*core.Topic, error) {
	var result *core.Topic
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readTopic(tx, id)
		if err != nil {
			return err
		}
		if result == nil {
			return fmt.Errorf("%w: topic %d", storage.ErrNotFound, id)
		}
		return nil
	}, false)
	return result, err
}

// ListTopics returns all topics sorted by name.
func (r *TopicRepository) ListTopics(ctx context.Context) ([]*core.Topic, error) {
	var results []*core.Topic
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(topicPrefix + ":")
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var topic *core.Topic
			err := iter.Item().Value(func(val []byte) error {
				var err error
				topic, err = storage.UnmarshalTopic(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, topic)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sortTopics(results)
	return results, nil
}

// ChildTopics returns the direct children of a topic sorted by name.
// A parentID of 0 returns the root topics.
func (r *TopicRepository) ChildTopics(ctx context.Context, parentID core.ID) ([]*core.Topic, error) {
	var results []*core.Topic
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndex(tx, makePartialTopicParentKey(parentID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			topic, err := readTopic(tx, id)
			if err != nil {
				return err
			}
			if topic != nil {
				results = append(results, topic)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}
	sortTopics(results)
	return results, nil
}

// DeleteTopic removes an empty topic and every relationship touching it.
func (r *TopicRepository) DeleteTopic(ctx context.Context, id core.ID) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		topic, err := readTopic(tx, id)
		if err != nil {
			return err
		}
		if topic == nil {
			return fmt.Errorf("%w: topic %d", storage.ErrNotFound, id)
		}

		if hasIndexEntries(tx, makePartialTopicParentKey(id)) {
			return fmt.Errorf("%w: topic %d has child topics", storage.ErrTopicNotEmpty, id)
		}
		if hasIndexEntries(tx, makePartialDocumentTopicKey(id)) {
			return fmt.Errorf("%w: topic %d has documents", storage.ErrTopicNotEmpty, id)
		}

		if err := deleteRelationshipsOf(tx, core.TopicRef(id)); err != nil {
			return err
		}
		if err := tx.Delete(makeTopicParentKey(topic.ParentId, id)); err != nil {
			return err
		}
		if err := tx.Delete(makeTopicKey(id)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// TopicExists reports whether a topic exists.
func (r *TopicRepository) TopicExists(ctx context.Context, id core.ID) (bool, error) {
	var exists bool
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		topic, err := readTopic(tx, id)
		exists = topic != nil
		return err
	}, false)
	return exists, err
}

// DocumentCountInTopic returns the number of documents in a topic.
func (r *TopicRepository) DocumentCountInTopic(ctx context.Context, id core.ID) (int, error) {
	var count int
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makePartialDocumentTopicKey(id)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// requireParent checks that a non-zero parent topic exists.
func requireParent(tx *badger.Txn, parentID core.ID) error {
	if parentID == 0 {
		return nil
	}
	parent, err := readTopic(tx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return fmt.Errorf("%w: parent topic %d", storage.ErrNotFound, parentID)
	}
	return nil
}

// checkAncestry walks up from parentID and fails if it reaches id.
func checkAncestry(tx *badger.Txn, id, parentID core.ID) error {
	seen := make(map[core.ID]bool)
	for current := parentID; current != 0; {
		if current == id {
			return fmt.Errorf("%w: topic %d would become its own ancestor", storage.ErrCycle, id)
		}
		if seen[current] {
			return fmt.Errorf("%w: existing loop at topic %d", storage.ErrCycle, current)
		}
		seen[current] = true

		topic, err := readTopic(tx, current)
		if err != nil {
			return err
		}
		if topic == nil {
			return nil
		}
		current = topic.ParentId
	}
	return nil
}

func sortTopics(topics []*core.Topic) {
	slices.SortFunc(topics, func(a, b *core.Topic) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.Id, b.Id)
	})
}
