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

// Package storage provides the storage abstraction layer for mimir.
//
// This package defines repository interfaces that decouple the knowledge store
// from the retrieval logic built on top of it.
//
// # Architecture
//
//   - DocumentRepository: documents, their vectors and embedding metadata
//   - TopicRepository: the topic tree
//   - RelationshipRepository: typed edges between documents and topics
//   - Store: all three over one backend
//
// The retrieval packages only consume KnowledgeStore, a read-mostly view
// that exposes documents, stored vectors, embedding writes and topic checks.
// Backends that can rank vectors themselves additionally implement
// SimilarityIndex; VectorIndex adds writes for external vector databases.
//
// # Usage
//
//	store, err := badger.NewStore("/path/to/db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
// Use in tests with in-memory storage:
//
//	store, err := badger.NewMemoryStore()
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package storage
