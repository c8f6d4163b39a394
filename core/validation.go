// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"strings"
)

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Title must not be empty
//   - Body must not be empty
//   - TopicId must be set
//   - Confidence must be in [0, 1]
//
// NOT validated (populated by the embedding pipeline):
//   - Vector and Embedding
//   - ID (0 is valid until the store assigns one)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if strings.TrimSpace(doc.Title) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyTitle)
	}

	if strings.TrimSpace(doc.Body) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}

	if doc.TopicId == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrMissingTopic)
	}

	if doc.Confidence < 0 || doc.Confidence > 1 {
		return fmt.Errorf("%w: %w: %v", ErrInvalidDocument, ErrInvalidConfidence, doc.Confidence)
	}

	return nil
}

// ValidateTopic validates a Topic according to domain rules.
// Parent existence and acyclicity are checked by the store.
func ValidateTopic(topic *Topic) error {
	if topic == nil {
		return fmt.Errorf("%w: topic is nil", ErrInvalidTopic)
	}

	if strings.TrimSpace(topic.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, ErrEmptyTopicName)
	}

	if topic.Id != 0 && topic.ParentId == topic.Id {
		return fmt.Errorf("%w: %w", ErrInvalidTopic, ErrSelfReference)
	}

	return nil
}

// ValidateRelationship validates a Relationship according to domain rules.
// Endpoint existence is checked by the store.
func ValidateRelationship(rel *Relationship) error {
	if rel == nil {
		return fmt.Errorf("%w: relationship is nil", ErrInvalidRelationship)
	}

	if strings.TrimSpace(rel.Kind) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRelationship, ErrEmptyRelationshipKind)
	}

	if err := ValidateEntityRef(rel.From); err != nil {
		return fmt.Errorf("%w: from: %w", ErrInvalidRelationship, err)
	}

	if err := ValidateEntityRef(rel.To); err != nil {
		return fmt.Errorf("%w: to: %w", ErrInvalidRelationship, err)
	}

	if rel.From == rel.To {
		return fmt.Errorf("%w: %w", ErrInvalidRelationship, ErrSelfReference)
	}

	return nil
}

// ValidateEntityRef validates that an EntityRef has a known kind and an ID.
func ValidateEntityRef(ref EntityRef) error {
	if ref.Kind != EntityDocument && ref.Kind != EntityTopic {
		return fmt.Errorf("%w: value %d", ErrInvalidEntityKind, ref.Kind)
	}
	if ref.Id == 0 {
		return fmt.Errorf("%w: %s id is zero", ErrNotFound, ref.Kind)
	}
	return nil
}
