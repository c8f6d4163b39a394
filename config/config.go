// Package config loads mimir's YAML configuration file and applies
// MIMIR_* environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/mimir/ai"
	"github.com/poiesic/mimir/search"
	"gopkg.in/yaml.v3"
)

// Vector store backends.
const (
	// VectorStoreBruteForce ranks vectors in process.
	VectorStoreBruteForce = "bruteforce"
	// VectorStoreNative delegates ranking to the document store.
	VectorStoreNative = "native"
	// VectorStoreQdrant mirrors vectors into Qdrant and ranks there.
	VectorStoreQdrant = "qdrant"
)

// DatabaseConfig locates the document store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingConfig selects the embedding model.
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"`
	Host      string `yaml:"host"`
	Model     string `yaml:"model"`
	Version   string `yaml:"version"`
	Dimension int    `yaml:"dimension"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Addr       string `yaml:"addr"`
	Collection string `yaml:"collection"`
}

// VectorStoreConfig selects the similarity backend.
type VectorStoreConfig struct {
	Type   string       `yaml:"type"`
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	Mode string `yaml:"mode"`
	TopK int    `yaml:"top_k"`
	// MinSimilarity drops semantic hits below the threshold. Unset means no cutoff.
	MinSimilarity *float32 `yaml:"min_similarity,omitempty"`
	TagBonus      float64  `yaml:"tag_bonus"`
}

// RefreshConfig tunes the embedding pipeline.
type RefreshConfig struct {
	Workers    int           `yaml:"workers"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	RateLimit  float64       `yaml:"rate_limit"`
	RateBurst  int           `yaml:"rate_burst"`
}

// Config is the root configuration.
type Config struct {
	Database    DatabaseConfig    `yaml:"database"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Search      SearchConfig      `yaml:"search"`
	Refresh     RefreshConfig     `yaml:"refresh"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	aiDefaults := ai.DefaultConfig()
	return &Config{
		Database: DatabaseConfig{Path: "mimir.db"},
		Embedding: EmbeddingConfig{
			Provider: aiDefaults.Provider,
			Host:     aiDefaults.EmbeddingHost,
			Model:    aiDefaults.EmbeddingModel,
			Version:  aiDefaults.EmbeddingVersion,
		},
		VectorStore: VectorStoreConfig{
			Type:   VectorStoreBruteForce,
			Qdrant: QdrantConfig{Addr: "localhost:6334", Collection: "mimir"},
		},
		Search: SearchConfig{Mode: "auto", TopK: 10, TagBonus: 2.0},
		Refresh: RefreshConfig{
			Workers:    4,
			MaxRetries: 3,
			RetryDelay: time.Second,
		},
	}
}

// Load reads a config file, fills unset fields with defaults and applies
// environment overrides. A missing file (or an empty path) yields defaults.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := applyEnv(cfg, lookup); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// applyDefaults restores defaults for fields a file explicitly zeroed.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Database.Path == "" {
		cfg.Database.Path = def.Database.Path
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = def.VectorStore.Type
	}
	cfg.VectorStore.Type = strings.ToLower(cfg.VectorStore.Type)
	if cfg.VectorStore.Qdrant.Collection == "" {
		cfg.VectorStore.Qdrant.Collection = def.VectorStore.Qdrant.Collection
	}
	if cfg.Search.TopK == 0 {
		cfg.Search.TopK = def.Search.TopK
	}
	if cfg.Refresh.Workers == 0 {
		cfg.Refresh.Workers = def.Refresh.Workers
	}
	if cfg.Refresh.MaxRetries == 0 {
		cfg.Refresh.MaxRetries = def.Refresh.MaxRetries
	}
}

// Environment variables, each overriding one field.
const (
	EnvDatabasePath        = "MIMIR_DB"
	EnvEmbeddingProvider   = "MIMIR_EMBEDDING_PROVIDER"
	EnvEmbeddingHost       = "MIMIR_EMBEDDING_HOST"
	EnvEmbeddingModel      = "MIMIR_EMBEDDING_MODEL"
	EnvEmbeddingVersion    = "MIMIR_EMBEDDING_VERSION"
	EnvEmbeddingDimension  = "MIMIR_EMBEDDING_DIMENSION"
	EnvVectorStore         = "MIMIR_VECTOR_STORE"
	EnvQdrantAddr          = "MIMIR_QDRANT_ADDR"
	EnvQdrantCollection    = "MIMIR_QDRANT_COLLECTION"
	EnvSearchMinSimilarity = "MIMIR_MIN_SIMILARITY"
)

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		EnvDatabasePath:      &cfg.Database.Path,
		EnvEmbeddingProvider: &cfg.Embedding.Provider,
		EnvEmbeddingHost:     &cfg.Embedding.Host,
		EnvEmbeddingModel:    &cfg.Embedding.Model,
		EnvEmbeddingVersion:  &cfg.Embedding.Version,
		EnvVectorStore:       &cfg.VectorStore.Type,
		EnvQdrantAddr:        &cfg.VectorStore.Qdrant.Addr,
		EnvQdrantCollection:  &cfg.VectorStore.Qdrant.Collection,
	}
	for name, field := range strs {
		if v, ok := lookup(name); ok && v != "" {
			*field = v
		}
	}

	if v, ok := lookup(EnvEmbeddingDimension); ok && v != "" {
		dim, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEmbeddingDimension, err)
		}
		cfg.Embedding.Dimension = dim
	}
	if v, ok := lookup(EnvSearchMinSimilarity); ok && v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSearchMinSimilarity, err)
		}
		threshold := float32(f)
		cfg.Search.MinSimilarity = &threshold
	}
	return nil
}

// AI returns the embedding settings as an ai.Config.
func (c *Config) AI() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(c.Embedding.Provider),
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithEmbeddingVersion(c.Embedding.Version),
		ai.WithEmbeddingDimension(c.Embedding.Dimension),
	)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := c.AI().Validate(); err != nil {
		return err
	}

	switch c.VectorStore.Type {
	case VectorStoreBruteForce, VectorStoreNative:
	case VectorStoreQdrant:
		if c.VectorStore.Qdrant.Addr == "" {
			return errors.New("config: vector_store.qdrant.addr is required")
		}
		if c.Embedding.Dimension <= 0 && !strings.EqualFold(c.Embedding.Provider, ai.ProviderLocal) {
			return errors.New("config: qdrant requires embedding.dimension")
		}
	default:
		return fmt.Errorf("config: unknown vector store %q", c.VectorStore.Type)
	}

	if _, err := search.ParseMode(c.Search.Mode); err != nil {
		return fmt.Errorf("config: search.mode: %w", err)
	}
	if c.Search.TopK < 1 {
		return fmt.Errorf("config: search.top_k must be at least 1, got %d", c.Search.TopK)
	}
	if c.Search.TagBonus < 0 {
		return errors.New("config: search.tag_bonus must not be negative")
	}
	if c.Refresh.Workers < 1 {
		return errors.New("config: refresh.workers must be at least 1")
	}
	if c.Refresh.MaxRetries < 1 {
		return errors.New("config: refresh.max_retries must be at least 1")
	}
	if c.Refresh.RateLimit < 0 {
		return errors.New("config: refresh.rate_limit must not be negative")
	}
	return nil
}
