// Package openai adapts the OpenAI embeddings API to the embed.Embedder
// interface.
package openai

import (
	"context"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "text-embedding-3-small"
	// DefaultDimension is the provider default for that model.
	DefaultDimension = 1536
)

// Embedder generates embeddings via the OpenAI API.
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithModel overrides the embedding model.
func WithModel(model string) Option {
	return func(e *Embedder) {
		if model != "" {
			e.model = model
		}
	}
}

// WithDimension overrides the requested vector dimension.
func WithDimension(dim int) Option {
	return func(e *Embedder) {
		if dim > 0 {
			e.dimension = dim
		}
	}
}

// New creates an Embedder with the given API key.
func New(apiKey string, opts ...Option) *Embedder {
	e := &Embedder{
		client:    openai.NewClient(option.WithAPIKey(apiKey)),
		model:     DefaultModel,
		dimension: DefaultDimension,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed generates an embedding for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("openai: embed: empty response")
	}

	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// ModelName returns the configured model identifier.
func (e *Embedder) ModelName() string { return e.model }

// Dimension returns the configured vector dimension.
func (e *Embedder) Dimension() int { return e.dimension }
