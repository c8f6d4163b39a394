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

package search

import (
	"errors"

	"github.com/poiesic/mimir/core"
)

var (
	// ErrStoreRequired is returned when a knowledge store is not provided.
	ErrStoreRequired = errors.New("knowledge store required")

	// ErrRankerRequired is returned when a vector ranker is not provided.
	ErrRankerRequired = errors.New("vector ranker required")

	// ErrAIProviderRequired is returned when an AI provider is not provided.
	ErrAIProviderRequired = errors.New("AI provider required")

	// ErrInvalidQuery is returned for an empty query or a top-k below 1.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidMode is returned for an unsupported search mode.
	ErrInvalidMode = core.ErrInvalidMode

	// ErrNotFound is returned when the filter names a topic that does not exist.
	ErrNotFound = core.ErrNotFound
)
