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

import "errors"

// Error kinds shared by the retrieval subsystem.
var (
	// ErrNotFound indicates a referenced document or topic does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDimensionMismatch indicates two vectors have different lengths.
	// Rankers treat it as "absent" rather than surfacing it.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEncodingFailure indicates an embedding could not be computed for one item.
	ErrEncodingFailure = errors.New("embedding computation failed")

	// ErrEmptyCorpus indicates semantic search found no embedded documents.
	ErrEmptyCorpus = errors.New("no embedded documents")

	// ErrInvalidMode indicates an unsupported search mode.
	ErrInvalidMode = errors.New("invalid search mode")
)

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidTopic indicates a Topic failed validation.
	ErrInvalidTopic = errors.New("invalid topic")

	// ErrInvalidRelationship indicates a Relationship failed validation.
	ErrInvalidRelationship = errors.New("invalid relationship")

	// ErrEmptyTitle indicates the Title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrEmptyContent indicates the Body field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrMissingTopic indicates a document does not reference a topic.
	ErrMissingTopic = errors.New("document must reference a topic")

	// ErrInvalidConfidence indicates a confidence outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be between 0 and 1")

	// ErrEmptyTopicName indicates the topic Name field is empty.
	ErrEmptyTopicName = errors.New("topic name cannot be empty")

	// ErrEmptyRelationshipKind indicates the relationship Kind field is empty.
	ErrEmptyRelationshipKind = errors.New("relationship kind cannot be empty")

	// ErrInvalidEntityKind indicates an EntityRef with an unknown kind.
	ErrInvalidEntityKind = errors.New("invalid entity kind")

	// ErrSelfReference indicates an entity referencing itself.
	ErrSelfReference = errors.New("entity cannot reference itself")
)
