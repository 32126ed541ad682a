package usecase

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/samber/lo"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/utils/errutil"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/secmon-lab/recall/pkg/utils/safe"
	"golang.org/x/sync/errgroup"
)

type MemoryUseCase struct {
	repo           interfaces.Repository
	embedding      *embedding.Service
	defaultTopK    int
	maxConcurrency int
}

func NewMemoryUseCase(repo interfaces.Repository, svc *embedding.Service, defaultTopK, maxConcurrency int) *MemoryUseCase {
	if defaultTopK <= 0 {
		defaultTopK = model.DefaultTopK
	}
	return &MemoryUseCase{
		repo:           repo,
		embedding:      svc,
		defaultTopK:    defaultTopK,
		maxConcurrency: maxConcurrency,
	}
}

// Query embeds all query texts in one batch, searches the store for each
// embedded query concurrently and concatenates the hits in query order.
// A query that could not be embedded contributes nothing. Any store
// failure yields an empty result; the error is logged, never returned.
func (uc *MemoryUseCase) Query(ctx context.Context, queries []model.Query) *model.QueryResult {
	if len(queries) == 0 {
		return model.NewQueryResult(nil)
	}

	logger := logging.From(ctx)
	embedded := embedding.Attach(ctx, uc.embedding, queries, func(q model.Query) string { return q.Text })

	blocks := make([][]*model.ScoredMemory, len(embedded))
	var eg errgroup.Group
	if uc.maxConcurrency > 0 {
		eg.SetLimit(uc.maxConcurrency)
	}

	for i, q := range embedded {
		if q.Embedding == nil {
			logger.Warn("query has no embedding, skipping search", QueryIndexKey, i)
			continue
		}

		search := &model.MemorySearch{
			Embedding: q.Embedding,
			Limit:     uc.topK(q.Item),
		}
		if q.Item.Filter != nil {
			search.Filter = *q.Item.Filter
		}

		eg.Go(func() error {
			err := safe.Call(func() error {
				results, err := uc.repo.Memory().Search(ctx, search)
				if err != nil {
					return err
				}
				blocks[i] = results
				return nil
			})
			if err != nil {
				return goerr.Wrap(err, "failed to search memories", goerr.V(QueryIndexKey, i))
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		_ = errutil.Handle(ctx, err, "memory search failed, returning empty result")
		return model.NewQueryResult(nil)
	}

	views := lo.Map(lo.Flatten(blocks), func(sm *model.ScoredMemory, _ int) model.MemoryView {
		return model.NewMemoryView(sm)
	})

	return model.NewQueryResult(views)
}

func (uc *MemoryUseCase) topK(q model.Query) int {
	if q.TopK > 0 {
		return q.TopK
	}
	return uc.defaultTopK
}

// Upsert embeds all document texts in one batch and writes them as one
// atomic store batch. The call fails if any document could not be
// embedded, naming the first such document by its position.
func (uc *MemoryUseCase) Upsert(ctx context.Context, docs []model.Document) ([]model.MemoryID, error) {
	if len(docs) == 0 {
		return []model.MemoryID{}, nil
	}

	embedded := embedding.Attach(ctx, uc.embedding, docs, func(d model.Document) string { return d.Text })

	memories := make([]*model.Memory, len(embedded))
	for i, d := range embedded {
		if d.Embedding == nil {
			return nil, goerr.Wrap(ErrEmbeddingUnavailable,
				fmt.Sprintf("failed to generate embedding for document at index %d", i),
				goerr.V(DocumentIndexKey, i),
				goerr.V("embedding_enabled", uc.embedding.IsEnabled()),
			)
		}
		memories[i] = d.Item.ToMemory(d.Embedding)
	}

	ids, err := uc.repo.Memory().Upsert(ctx, memories)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert memories", goerr.V("count", len(memories)))
	}

	logging.From(ctx).Info("memories upserted", "count", len(ids))
	return ids, nil
}
