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

// Package search provides hybrid keyword and semantic search over documents.
//
// The Engine supports three modes:
//   - keyword: token overlap scoring only
//   - semantic: vector similarity over embedded documents only
//   - auto: semantic first, filled with keyword hits when it returns fewer
//     than top-k results, and replaced by keyword results when no document
//     is embedded or the semantic path is unavailable
//
// Scores from the two methods are never blended. Each result carries the
// method that produced it, and semantic results computed from a stale vector
// are marked so callers can refresh before trusting the score.
package search
