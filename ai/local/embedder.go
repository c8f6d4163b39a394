// Package local provides an in-process embedder that needs no model server.
//
// Vectors are built from position-weighted character frequencies. They are
// deterministic and cheap but carry little semantic meaning, so the local
// provider suits offline development and tests rather than production ranking.
package local

import (
	"context"
	"errors"
	"log/slog"

	"github.com/poiesic/mimir/ai"
	"github.com/poiesic/mimir/core"
)

// Identity recorded with every vector the local embedder produces.
const (
	ModelID      = "local-charfreq"
	ModelVersion = "1"
)

// Embedder implements ai.Embedder with character-frequency vectors.
type Embedder struct {
	dimension int
}

// NewEmbedder creates a local embedder producing vectors of the given length.
func NewEmbedder(dimension int) (*Embedder, error) {
	if dimension <= 0 {
		return nil, errors.New("local embedder: dimension must be positive")
	}
	return &Embedder{dimension: dimension}, nil
}

// EmbedText returns the unit-length character-frequency vector of text.
// Empty text yields a zero vector.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vector := make([]float32, e.dimension)
	i := 0
	for _, r := range text {
		// Earlier characters weigh more
		vector[int(r)%e.dimension] += 1.0 / float32(i+1)
		i++
	}
	return core.NormalizeVector(vector), nil
}

// EmbedTexts embeds each text in order.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		result[i] = v
	}
	return result, nil
}

// Provider implements ai.AIProvider around the local Embedder.
type Provider struct {
	embedder *Embedder
	model    core.ModelIdentity
}

// NewProvider creates a local provider. The configured model name and
// version are ignored; vectors are always recorded as ModelID@ModelVersion.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	dimension := config.EmbeddingDimension
	if dimension == 0 {
		dimension = ai.DefaultLocalDimension
	}
	embedder, err := NewEmbedder(dimension)
	if err != nil {
		return nil, err
	}
	slog.Default().Warn("using local character-frequency embeddings", "dimension", dimension)
	return &Provider{
		embedder: embedder,
		model: core.ModelIdentity{
			ID:        ModelID,
			Version:   ModelVersion,
			Dimension: dimension,
		},
	}, nil
}

// Embedder returns the local embedder.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// Model returns the local model identity.
func (p *Provider) Model() core.ModelIdentity {
	return p.model
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
