package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/mimir/core"
)

// Key prefixes for different data types
const (
	documentPrefix        = "doc"
	documentTopicPrefix   = "doctop"
	documentIDSeq         = "seq:doc"
	topicPrefix           = "top"
	topicParentPrefix     = "topchd"
	topicIDSeq            = "seq:top"
	relationshipPrefix    = "rel"
	relationshipEndPrefix = "relend"
	relationshipIDSeq     = "seq:rel"
)

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", documentPrefix, id))
}

// makeTopicKey generates a key for a topic by ID.
func makeTopicKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", topicPrefix, id))
}

// makeRelationshipKey generates a key for a relationship by ID.
func makeRelationshipKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", relationshipPrefix, id))
}

// compositeKey builds prefix + ":" + each ID in big-endian order so
// lexicographic key order matches numeric order.
func compositeKey(prefix string, ids ...uint64) []byte {
	buf := make([]byte, len(prefix)+1+8*len(ids))
	offset := copy(buf, prefix)
	buf[offset] = ':'
	offset++
	for _, id := range ids {
		binary.BigEndian.PutUint64(buf[offset:], id)
		offset += 8
	}
	return buf
}

// makeDocumentTopicKey generates a composite key for the topic index.
// Format: prefix:topicID:documentID
func makeDocumentTopicKey(topicID, docID core.ID) []byte {
	return compositeKey(documentTopicPrefix, uint64(topicID), uint64(docID))
}

// makePartialDocumentTopicKey generates a partial key for topic queries.
// Format: prefix:topicID
func makePartialDocumentTopicKey(topicID core.ID) []byte {
	return compositeKey(documentTopicPrefix, uint64(topicID))
}

// makeTopicParentKey generates a composite key for the child topic index.
// Format: prefix:parentID:childID
func makeTopicParentKey(parentID, childID core.ID) []byte {
	return compositeKey(topicParentPrefix, uint64(parentID), uint64(childID))
}

// makePartialTopicParentKey generates a partial key for child topic queries.
// Format: prefix:parentID
func makePartialTopicParentKey(parentID core.ID) []byte {
	return compositeKey(topicParentPrefix, uint64(parentID))
}

// makeRelationshipEndKey generates a composite key for the endpoint index.
// Format: prefix:kind:entityID:relationshipID
func makeRelationshipEndKey(ref core.EntityRef, relID core.ID) []byte {
	return compositeKey(relationshipEndPrefix, uint64(ref.Kind), uint64(ref.Id), uint64(relID))
}

// makePartialRelationshipEndKey generates a partial key for endpoint queries.
// Format: prefix:kind:entityID
func makePartialRelationshipEndKey(ref core.EntityRef) []byte {
	return compositeKey(relationshipEndPrefix, uint64(ref.Kind), uint64(ref.Id))
}
