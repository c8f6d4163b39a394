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

package mimir

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/mimir/ai"
	"github.com/poiesic/mimir/ai/local"
	"github.com/poiesic/mimir/ai/openai"
	"github.com/poiesic/mimir/config"
	"github.com/poiesic/mimir/core"
	"github.com/poiesic/mimir/embedding"
	"github.com/poiesic/mimir/search"
	"github.com/poiesic/mimir/storage"
	"github.com/poiesic/mimir/storage/badger"
	"github.com/poiesic/mimir/vectorstore"
	"github.com/poiesic/mimir/vectorstore/qdrant"
)

// Database wires a document store, an embedding provider and a similarity
// backend together.
type Database struct {
	store      *badger.Store
	provider   ai.AIProvider
	qdrant     *qdrant.Store
	index      storage.SimilarityIndex
	capability vectorstore.Capability
	logger     *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	aiConfig         *ai.Config
	provider         ai.AIProvider
	vectorStore      string
	qdrantAddr       string
	qdrantCollection string
	logger           *slog.Logger
}

// WithAIConfig sets the embedding provider configuration.
func WithAIConfig(cfg *ai.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg
	}
}

// WithProvider uses an already constructed provider instead of building one
// from the AI configuration. The Database closes it on Close.
func WithProvider(provider ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = provider
	}
}

// WithVectorStore selects the similarity backend: config.VectorStoreBruteForce,
// config.VectorStoreNative or config.VectorStoreQdrant.
func WithVectorStore(kind string) DatabaseOption {
	return func(o *databaseOptions) {
		o.vectorStore = kind
	}
}

// WithQdrant sets the Qdrant address and collection and selects Qdrant as
// the similarity backend.
func WithQdrant(addr, collection string) DatabaseOption {
	return func(o *databaseOptions) {
		o.vectorStore = config.VectorStoreQdrant
		o.qdrantAddr = addr
		o.qdrantCollection = collection
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		if logger == nil {
			logger = slog.Default()
		}
		o.logger = logger
	}
}

// FromConfig applies the embedding and vector store sections of cfg.
func FromConfig(cfg *config.Config) DatabaseOption {
	return func(o *databaseOptions) {
		o.aiConfig = cfg.AI()
		o.vectorStore = cfg.VectorStore.Type
		o.qdrantAddr = cfg.VectorStore.Qdrant.Addr
		o.qdrantCollection = cfg.VectorStore.Qdrant.Collection
	}
}

// NewProvider builds the embedding provider named by cfg.Provider.
func NewProvider(cfg *ai.Config) (ai.AIProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ai.ProviderLocal:
		return local.NewProvider(cfg)
	default:
		return openai.NewProvider(cfg)
	}
}

// NewDatabase opens the document store at filePath.
func NewDatabase(filePath string, opts ...DatabaseOption) (*Database, error) {
	options := &databaseOptions{
		aiConfig:    ai.DefaultConfig(),
		vectorStore: config.VectorStoreBruteForce,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	provider := options.provider
	if provider == nil {
		var err error
		provider, err = NewProvider(options.aiConfig)
		if err != nil {
			return nil, err
		}
	}

	store, err := badger.NewStore(filePath)
	if err != nil {
		provider.Close()
		return nil, err
	}

	db := &Database{
		store:    store,
		provider: provider,
		logger:   options.logger.With("component", "database"),
	}

	model := provider.Model()
	switch options.vectorStore {
	case config.VectorStoreBruteForce, "":
		db.capability = vectorstore.Capability{}
	case config.VectorStoreNative:
		db.index = store
		db.capability = vectorstore.Capability{Native: true, Dimension: model.Dimension}
	case config.VectorStoreQdrant:
		if err := db.openQdrant(options, model.Dimension); err != nil {
			db.Close()
			return nil, err
		}
	default:
		db.Close()
		return nil, fmt.Errorf("unknown vector store %q", options.vectorStore)
	}

	db.logger.Info("database opened",
		"path", filePath,
		"model", model.String(),
		"native", db.capability.Native)
	return db, nil
}

func (db *Database) openQdrant(options *databaseOptions, dimension int) error {
	if dimension <= 0 {
		return errors.New("qdrant requires a declared embedding dimension")
	}
	q, err := qdrant.New(options.qdrantAddr, options.qdrantCollection, dimension)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.EnsureCollection(ctx); err != nil {
		q.Close()
		return err
	}

	db.qdrant = q
	db.index = q
	db.capability = vectorstore.Capability{Native: true, Dimension: dimension}
	return nil
}

// Close releases the provider, the similarity backend and the store.
func (db *Database) Close() error {
	var errs []error
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
		errs = append(errs, err)
	}
	if db.qdrant != nil {
		if err := db.qdrant.Close(); err != nil {
			db.logger.Error("error closing qdrant connection", "err", err)
			errs = append(errs, err)
		}
	}
	if err := db.store.Close(); err != nil {
		db.logger.Error("error closing store", "err", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Store returns the document store.
func (db *Database) Store() storage.Store {
	return db.store
}

// Provider returns the embedding provider.
func (db *Database) Provider() ai.AIProvider {
	return db.provider
}

// Capability reports which ranking strategy the database uses.
func (db *Database) Capability() vectorstore.Capability {
	return db.capability
}

// NewRanker creates a ranker over the configured similarity backend.
func (db *Database) NewRanker(opts ...vectorstore.Option) (vectorstore.Ranker, error) {
	return vectorstore.New(db.store, db.index, db.capability, opts...)
}

// NewPipeline creates an embedding pipeline. With Qdrant configured, fresh
// vectors are mirrored into it.
func (db *Database) NewPipeline(opts ...embedding.Option) (*embedding.Pipeline, error) {
	if db.qdrant != nil {
		opts = append([]embedding.Option{embedding.WithVectorIndex(db.qdrant)}, opts...)
	}
	return embedding.NewPipeline(db.store, db.provider, opts...)
}

// NewEngine creates a search engine. A nil ranker uses NewRanker().
func (db *Database) NewEngine(ranker vectorstore.Ranker, opts ...search.Option) (*search.Engine, error) {
	if ranker == nil {
		var err error
		ranker, err = db.NewRanker()
		if err != nil {
			return nil, err
		}
	}
	return search.NewEngine(db.store, ranker, db.provider, opts...)
}

// DeleteDocuments removes documents from the store and, when Qdrant is
// configured, their mirrored vectors.
func (db *Database) DeleteDocuments(ctx context.Context, ids ...core.ID) error {
	if err := db.store.DeleteDocuments(ctx, ids...); err != nil {
		return err
	}
	if db.qdrant != nil {
		if err := db.qdrant.Delete(ctx, ids...); err != nil {
			return fmt.Errorf("deleting mirrored vectors: %w", err)
		}
	}
	return nil
}
