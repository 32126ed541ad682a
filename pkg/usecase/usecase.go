package usecase

import (
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/embedding"
)

type UseCases struct {
	repo           interfaces.Repository
	embedding      *embedding.Service
	defaultTopK    int
	maxConcurrency int
	Memory         *MemoryUseCase
}

type Option func(*UseCases)

// WithEmbedding sets the embedding service. Without it the use cases run
// with a disabled service: queries return nothing and upserts are rejected.
func WithEmbedding(svc *embedding.Service) Option {
	return func(uc *UseCases) {
		uc.embedding = svc
	}
}

// WithDefaultTopK sets the result count for queries that do not specify one
func WithDefaultTopK(n int) Option {
	return func(uc *UseCases) {
		if n > 0 {
			uc.defaultTopK = n
		}
	}
}

// WithMaxConcurrency bounds concurrent store searches per query call.
// Zero means unbounded.
func WithMaxConcurrency(n int) Option {
	return func(uc *UseCases) {
		if n >= 0 {
			uc.maxConcurrency = n
		}
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:        repo,
		defaultTopK: model.DefaultTopK,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.embedding == nil {
		uc.embedding = embedding.New(nil)
	}

	uc.Memory = NewMemoryUseCase(repo, uc.embedding, uc.defaultTopK, uc.maxConcurrency)

	return uc
}
