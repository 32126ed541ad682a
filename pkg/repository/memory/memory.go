package memory

import (
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is an in-process repository. Contents are lost on exit.
type Memory struct {
	memory *memoryRepository
}

var _ interfaces.Repository = &Memory{}

type Option func(*Memory)

// WithDimension fixes the embedding dimension up front. Without it the
// first successful write decides the dimension.
func WithDimension(dim int) Option {
	return func(m *Memory) {
		m.memory.dimension = dim
	}
}

func New(opts ...Option) *Memory {
	m := &Memory{
		memory: newMemoryRepository(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Memory() interfaces.MemoryRepository {
	return m.memory
}

func (m *Memory) Close() error {
	return nil
}
