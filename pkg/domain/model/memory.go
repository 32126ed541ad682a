package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

// DefaultEmbeddingDimension is the vector length requested from the
// embedding provider unless configured otherwise.
const DefaultEmbeddingDimension = 256

// DefaultTopK is the number of memories returned per query when the caller
// does not ask for a specific count.
const DefaultTopK = 3

var (
	ErrMemoryNotFound      = goerr.New("memory not found")
	ErrInvalidMemory       = goerr.New("invalid memory")
	ErrDimensionMismatch   = goerr.New("embedding dimension mismatch")
	ErrEmptyEmbedding      = goerr.New("embedding is empty")
	ErrInvalidMemorySource = goerr.New("invalid memory source")
)

// MemoryID is a UUID-based identifier for Memory
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

func (id MemoryID) String() string {
	return string(id)
}

// Memory is a stored document together with its embedding and the
// optional attributes used for filtering. Empty string attributes are unset.
type Memory struct {
	ID         MemoryID
	Content    string
	Embedding  []float32
	Source     types.MemorySource
	SourceID   string
	DocumentID string
	URL        string
	Author     string
	CreatedAt  time.Time
}

// Validate checks a memory is ready to be written. ID and CreatedAt are
// assigned by the store, so they are not checked here.
func (m *Memory) Validate() error {
	if m == nil {
		return goerr.Wrap(ErrInvalidMemory, "memory is nil")
	}
	if len(m.Embedding) == 0 {
		return goerr.Wrap(ErrEmptyEmbedding, "memory has no embedding", goerr.V("memory_id", m.ID))
	}
	if m.Source.IsSet() && !m.Source.IsValid() {
		return goerr.Wrap(ErrInvalidMemorySource, "memory has unknown source",
			goerr.V("memory_id", m.ID),
			goerr.V("source", m.Source),
		)
	}
	return nil
}

// Copy returns a deep copy of the memory
func (m *Memory) Copy() *Memory {
	copied := *m
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	return &copied
}

// ScoredMemory is a search hit. Similarity is the inner product of the
// query and stored vectors; higher means more similar.
type ScoredMemory struct {
	*Memory
	Similarity float64
}

// InnerProduct returns the dot product of two vectors of equal length.
func InnerProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
