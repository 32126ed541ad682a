package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
)

type memoryRepository struct {
	mu        sync.RWMutex
	entries   map[model.MemoryID]*model.Memory
	dimension int
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		entries: make(map[model.MemoryID]*model.Memory),
	}
}

func (r *memoryRepository) Search(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error) {
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "memory search cancelled")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.dimension > 0 && len(q.Embedding) != r.dimension {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "query embedding dimension does not match store",
			goerr.V("expected", r.dimension),
			goerr.V("actual", len(q.Embedding)),
		)
	}

	candidates := make([]*model.ScoredMemory, 0, len(r.entries))
	for _, m := range r.entries {
		if !q.Filter.Match(m) {
			continue
		}
		candidates = append(candidates, &model.ScoredMemory{
			Memory:     m.Copy(),
			Similarity: model.InnerProduct(q.Embedding, m.Embedding),
		})
	}

	slices.SortFunc(candidates, func(a, b *model.ScoredMemory) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if limit := q.EffectiveLimit(); len(candidates) > limit {
		candidates = candidates[:limit]
	}

	return candidates, nil
}

func (r *memoryRepository) Upsert(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error) {
	if len(memories) == 0 {
		return []model.MemoryID{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "memory upsert cancelled")
	}

	staged, ids, err := model.PrepareWrite(memories, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// check the whole batch before touching the map so a failure leaves
	// the store unchanged
	dim := r.dimension
	for i, s := range staged {
		if dim == 0 {
			dim = len(s.Embedding)
		}
		if len(s.Embedding) != dim {
			return nil, goerr.Wrap(model.ErrDimensionMismatch, "memory embedding dimension does not match store",
				goerr.V("index", i),
				goerr.V("expected", dim),
				goerr.V("actual", len(s.Embedding)),
			)
		}
	}

	for _, s := range staged {
		r.entries[s.ID] = s
	}
	r.dimension = dim

	return ids, nil
}

func (r *memoryRepository) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	mem, exists := r.entries[id]
	if !exists {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found", goerr.V("memory_id", id))
	}

	return mem.Copy(), nil
}
