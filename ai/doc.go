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

// Package ai provides abstractions for the embedding services used in mimir.
//
// The package defines two interfaces:
//
//   - Embedder: generates vector embeddings from text
//   - AIProvider: pairs an Embedder with the model identity its vectors are
//     recorded under, so stale vectors can be detected after a model change
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible embedding APIs (Ollama, LocalAI, vLLM, OpenAI)
//   - ai/local: deterministic character-frequency vectors for offline use
//   - ai/mock: test doubles for unit testing without external dependencies
//
// Public constructors in implementation packages return interface types.
// Mock constructors return concrete types so tests can inject behavior and
// inspect call counts.
//
// # Usage Example
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("nomic-embed-text"))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Hello world")
package ai
