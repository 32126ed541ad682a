package interfaces

import (
	"context"

	"github.com/secmon-lab/recall/pkg/domain/model"
)

// MemoryRepository defines the interface for Memory data persistence
type MemoryRepository interface {
	// Search returns up to q.Limit memories that satisfy q.Filter, ordered by
	// descending inner-product similarity to q.Embedding. No match is an
	// empty slice, not an error.
	Search(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error)

	// Upsert writes all memories as one atomic batch. A memory whose ID
	// already exists is replaced wholesale. Missing IDs are generated and a
	// zero CreatedAt becomes the write time. Returns one ID per input, in
	// input order.
	Upsert(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error)

	// Get retrieves a memory by ID
	Get(ctx context.Context, id model.MemoryID) (*model.Memory, error)
}
