package embedding

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// Client is the embedding part of gollem.LLMClient
type Client interface {
	GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error)
}

// Service turns texts into vectors. It never returns an error: a text that
// could not be embedded yields a nil vector at its position.
type Service struct {
	client    Client
	dimension int
}

type Option func(*Service)

// WithDimension sets the vector length requested from the provider
func WithDimension(dim int) Option {
	return func(s *Service) {
		if dim > 0 {
			s.dimension = dim
		}
	}
}

// New creates a Service. A nil client puts the service in disabled mode,
// where every text is reported as not embedded.
func New(client Client, opts ...Option) *Service {
	s := &Service{
		client:    client,
		dimension: model.DefaultEmbeddingDimension,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsEnabled reports whether a provider is configured
func (s *Service) IsEnabled() bool {
	return s != nil && s.client != nil
}

// Dimension returns the configured vector length
func (s *Service) Dimension() int {
	return s.dimension
}

// GenerateEmbeddings embeds texts with a single provider call. The result
// has the same length and order as texts.
func (s *Service) GenerateEmbeddings(ctx context.Context, texts []string) [][]float32 {
	result := make([][]float32, len(texts))
	if !s.IsEnabled() || len(texts) == 0 {
		return result
	}

	logger := logging.From(ctx)

	vectors, err := s.client.GenerateEmbedding(ctx, s.dimension, texts)
	if err != nil {
		var ge *goerr.Error
		attrs := []any{"error", err.Error(), "count", len(texts)}
		if errors.As(err, &ge) {
			attrs = append(attrs, "values", ge.Values())
		}
		logger.Warn("embedding request failed, treating batch as not embedded", attrs...)
		return result
	}

	if len(vectors) != len(texts) {
		logger.Warn("embedding response size differs from request",
			"requested", len(texts),
			"returned", len(vectors),
		)
	}

	for i := range result {
		if i >= len(vectors) {
			break
		}
		v := vectors[i]
		if len(v) != s.dimension {
			logger.Warn("dropping embedding with unexpected dimension",
				"index", i,
				"expected", s.dimension,
				"actual", len(v),
			)
			continue
		}
		result[i] = toFloat32(v)
	}

	return result
}

// GenerateEmbedding embeds a single text. Returns nil when not embedded.
func (s *Service) GenerateEmbedding(ctx context.Context, text string) []float32 {
	return s.GenerateEmbeddings(ctx, []string{text})[0]
}

// Embedded pairs an item with its embedding. Embedding is nil when the
// item's text could not be embedded.
type Embedded[T any] struct {
	Item      T
	Embedding []float32
}

// Attach embeds the text of each item in one batch and returns the items
// unchanged alongside their vectors, in input order.
func Attach[T any](ctx context.Context, s *Service, items []T, text func(T) string) []Embedded[T] {
	texts := make([]string, len(items))
	for i, item := range items {
		texts[i] = text(item)
	}

	vectors := s.GenerateEmbeddings(ctx, texts)

	result := make([]Embedded[T], len(items))
	for i, item := range items {
		result[i] = Embedded[T]{Item: item, Embedding: vectors[i]}
	}
	return result
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}
