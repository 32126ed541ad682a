package usecase_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/repository/memory"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/usecase"
)

const testDim = 256

func ptr[T any](v T) *T {
	return &v
}

// hashEmbedder spreads each word over a few dimensions so texts sharing
// words get a larger inner product. Texts listed in fail get an empty vector.
type hashEmbedder struct {
	fail  map[string]bool
	calls atomic.Int32
}

func (e *hashEmbedder) GenerateEmbedding(ctx context.Context, dimension int, input []string) ([][]float64, error) {
	e.calls.Add(1)
	out := make([][]float64, len(input))
	for i, text := range input {
		if e.fail[text] {
			out[i] = []float64{}
			continue
		}
		v := make([]float64, dimension)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(word))
			sum := h.Sum32()
			for k := uint32(0); k < 3; k++ {
				v[(sum+k*2654435761)%uint32(dimension)] += 1
			}
		}
		var norm float64
		for _, f := range v {
			norm += f * f
		}
		if norm > 0 {
			norm = math.Sqrt(norm)
			for j := range v {
				v[j] /= norm
			}
		}
		out[i] = v
	}
	return out, nil
}

type mockMemoryRepository struct {
	SearchFn func(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error)
	UpsertFn func(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error)
	GetFn    func(ctx context.Context, id model.MemoryID) (*model.Memory, error)
}

func (m *mockMemoryRepository) Search(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error) {
	return m.SearchFn(ctx, q)
}

func (m *mockMemoryRepository) Upsert(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error) {
	return m.UpsertFn(ctx, memories)
}

func (m *mockMemoryRepository) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	return m.GetFn(ctx, id)
}

type mockRepository struct {
	memory *mockMemoryRepository
}

func (m *mockRepository) Memory() interfaces.MemoryRepository { return m.memory }
func (m *mockRepository) Close() error                        { return nil }

func newEmbedding(e *hashEmbedder) *embedding.Service {
	return embedding.New(e, embedding.WithDimension(testDim))
}

func seed(t *testing.T, uc *usecase.UseCases, docs ...model.Document) []model.MemoryID {
	t.Helper()
	ids, err := uc.Memory.Upsert(context.Background(), docs)
	gt.NoError(t, err).Required()
	return ids
}

func chatDoc(text, documentID string) model.Document {
	return model.Document{
		Text: text,
		Metadata: &model.DocumentMetadata{
			Source:     types.MemorySourceChat,
			DocumentID: documentID,
		},
	}
}

func TestMemoryUseCase_Query(t *testing.T) {
	ctx := context.Background()

	t.Run("zero queries return empty result without embedding call", func(t *testing.T) {
		e := &hashEmbedder{}
		uc := usecase.New(memory.New(), usecase.WithEmbedding(newEmbedding(e)))

		result := uc.Memory.Query(ctx, nil)
		gt.Bool(t, result.Memories != nil).True()
		gt.Number(t, result.Count).Equal(0)
		gt.Number(t, e.calls.Load()).Equal(0)
	})

	t.Run("top_k caps results ordered by similarity", func(t *testing.T) {
		uc := usecase.New(memory.New(), usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))
		seed(t, uc,
			chatDoc("budget meeting on monday", "d1"),
			chatDoc("team lunch plans", "d2"),
			chatDoc("budget review for q3", "d3"),
			chatDoc("meeting notes from standup", "d4"),
			chatDoc("vacation schedule", "d5"),
		)

		result := uc.Memory.Query(ctx, []model.Query{{Text: "budget meeting", TopK: 2}})
		gt.Number(t, result.Count).Equal(2)
		gt.Array(t, result.Memories).Length(2)
		gt.Number(t, result.Memories[0].Similarity).GreaterOrEqual(result.Memories[1].Similarity)
		gt.Value(t, result.Memories[0].Content).Equal("budget meeting on monday")
	})

	t.Run("default top_k applies when unspecified", func(t *testing.T) {
		uc := usecase.New(memory.New(),
			usecase.WithEmbedding(newEmbedding(&hashEmbedder{})),
			usecase.WithDefaultTopK(2),
		)
		seed(t, uc,
			chatDoc("one", "d1"),
			chatDoc("two", "d2"),
			chatDoc("three", "d3"),
		)

		result := uc.Memory.Query(ctx, []model.Query{{Text: "one"}})
		gt.Number(t, result.Count).Equal(2)
	})

	t.Run("query without embedding contributes nothing while siblings succeed", func(t *testing.T) {
		e := &hashEmbedder{fail: map[string]bool{"broken query": true}}
		uc := usecase.New(memory.New(), usecase.WithEmbedding(newEmbedding(e)))
		ids := seed(t, uc,
			chatDoc("alpha report", "doc-a"),
			chatDoc("beta report", "doc-b"),
			chatDoc("gamma report", "doc-c"),
		)

		result := uc.Memory.Query(ctx, []model.Query{
			{Text: "report", TopK: 1, Filter: &model.MemoryFilter{DocumentID: ptr("doc-a")}},
			{Text: "broken query", TopK: 1, Filter: &model.MemoryFilter{DocumentID: ptr("doc-b")}},
			{Text: "report", TopK: 1, Filter: &model.MemoryFilter{DocumentID: ptr("doc-c")}},
		})

		gt.Number(t, result.Count).Equal(2)
		gt.Array(t, result.Memories).Length(2)
		gt.Value(t, result.Memories[0].ID).Equal(ids[0])
		gt.Value(t, result.Memories[1].ID).Equal(ids[2])
	})

	t.Run("results are grouped in query order", func(t *testing.T) {
		uc := usecase.New(memory.New(),
			usecase.WithEmbedding(newEmbedding(&hashEmbedder{})),
			usecase.WithMaxConcurrency(1),
		)
		seed(t, uc,
			chatDoc("apple pie recipe", "fruit"),
			chatDoc("apple orchard visit", "fruit"),
			chatDoc("car engine repair", "car"),
			chatDoc("car tire rotation", "car"),
		)

		result := uc.Memory.Query(ctx, []model.Query{
			{Text: "car", TopK: 2, Filter: &model.MemoryFilter{DocumentID: ptr("car")}},
			{Text: "apple", TopK: 2, Filter: &model.MemoryFilter{DocumentID: ptr("fruit")}},
		})

		gt.Number(t, result.Count).Equal(4)
		for _, m := range result.Memories[:2] {
			gt.Value(t, m.Metadata[model.MetadataDocumentID]).Equal(any("car"))
		}
		for _, m := range result.Memories[2:] {
			gt.Value(t, m.Metadata[model.MetadataDocumentID]).Equal(any("fruit"))
		}
	})

	t.Run("disabled embedding yields empty result", func(t *testing.T) {
		uc := usecase.New(memory.New())
		result := uc.Memory.Query(ctx, []model.Query{{Text: "anything"}})
		gt.Number(t, result.Count).Equal(0)
		gt.Array(t, result.Memories).Length(0)
	})

	t.Run("store failure yields empty result", func(t *testing.T) {
		var calls atomic.Int32
		repo := &mockRepository{memory: &mockMemoryRepository{
			SearchFn: func(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error) {
				if calls.Add(1) == 2 {
					return nil, goerr.New("connection reset")
				}
				return []*model.ScoredMemory{{
					Memory:     &model.Memory{ID: "m", Content: "hit"},
					Similarity: 1,
				}}, nil
			},
		}}
		uc := usecase.New(repo, usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))

		result := uc.Memory.Query(ctx, []model.Query{{Text: "a"}, {Text: "b"}, {Text: "c"}})
		gt.Number(t, calls.Load()).Equal(3)
		gt.Number(t, result.Count).Equal(0)
		gt.Bool(t, result.Memories != nil).True()
	})

	t.Run("store panic yields empty result", func(t *testing.T) {
		repo := &mockRepository{memory: &mockMemoryRepository{
			SearchFn: func(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error) {
				panic("driver bug")
			},
		}}
		uc := usecase.New(repo, usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))

		result := uc.Memory.Query(ctx, []model.Query{{Text: "a"}})
		gt.Number(t, result.Count).Equal(0)
	})

	t.Run("passes filter and limit to store", func(t *testing.T) {
		var got *model.MemorySearch
		repo := &mockRepository{memory: &mockMemoryRepository{
			SearchFn: func(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error) {
				got = q
				return nil, nil
			},
		}}
		uc := usecase.New(repo, usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))

		uc.Memory.Query(ctx, []model.Query{{
			Text:   "hello",
			TopK:   5,
			Filter: &model.MemoryFilter{Author: ptr("alice")},
		}})

		gt.Value(t, got).NotNil().Required()
		gt.Number(t, got.Limit).Equal(5)
		gt.Array(t, got.Embedding).Length(testDim)
		gt.Value(t, *got.Filter.Author).Equal("alice")
	})
}

func TestMemoryUseCase_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("upserted document is found by query", func(t *testing.T) {
		uc := usecase.New(memory.New(), usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))

		ids, err := uc.Memory.Upsert(ctx, []model.Document{{
			Text:     "hello",
			Metadata: &model.DocumentMetadata{Source: types.MemorySourceChat},
		}})
		gt.NoError(t, err).Required()
		gt.Array(t, ids).Length(1)

		result := uc.Memory.Query(ctx, []model.Query{{Text: "hello"}})
		gt.Number(t, result.Count).Equal(1)
		gt.Value(t, result.Memories[0].ID).Equal(ids[0])
		gt.Value(t, result.Memories[0].Content).Equal("hello")
		gt.Value(t, result.Memories[0].Metadata[model.MetadataSource]).Equal(any("chat"))
	})

	t.Run("returns caller ids verbatim and generates the rest", func(t *testing.T) {
		uc := usecase.New(memory.New(), usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))

		ids, err := uc.Memory.Upsert(ctx, []model.Document{
			{ID: "mine", Text: "first"},
			{Text: "second"},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, ids[0]).Equal(model.MemoryID("mine"))
		gt.String(t, string(ids[1])).NotEqual("")
	})

	t.Run("zero documents return empty ids without embedding call", func(t *testing.T) {
		e := &hashEmbedder{}
		uc := usecase.New(memory.New(), usecase.WithEmbedding(newEmbedding(e)))

		ids, err := uc.Memory.Upsert(ctx, nil)
		gt.NoError(t, err).Required()
		gt.Array(t, ids).Length(0)
		gt.Number(t, e.calls.Load()).Equal(0)
	})

	t.Run("rejects batch when embedding is disabled", func(t *testing.T) {
		called := false
		repo := &mockRepository{memory: &mockMemoryRepository{
			UpsertFn: func(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error) {
				called = true
				return nil, nil
			},
		}}
		uc := usecase.New(repo)

		_, err := uc.Memory.Upsert(ctx, []model.Document{{Text: "hello"}})
		gt.Error(t, err).Is(usecase.ErrEmbeddingUnavailable)
		gt.Bool(t, called).False()
	})

	t.Run("names the document that could not be embedded", func(t *testing.T) {
		e := &hashEmbedder{fail: map[string]bool{"bad": true}}
		uc := usecase.New(memory.New(), usecase.WithEmbedding(newEmbedding(e)))

		_, err := uc.Memory.Upsert(ctx, []model.Document{{Text: "good"}, {Text: "bad"}, {Text: "fine"}})
		gt.Error(t, err).Is(usecase.ErrEmbeddingUnavailable)
		gt.String(t, err.Error()).Contains("index 1")

		var ge *goerr.Error
		gt.Bool(t, errors.As(err, &ge)).True()
		gt.Value(t, ge.Values()[usecase.DocumentIndexKey]).Equal(any(1))

		result := uc.Memory.Query(ctx, []model.Query{{Text: "good"}})
		gt.Number(t, result.Count).Equal(0)
	})

	t.Run("propagates store write failure", func(t *testing.T) {
		writeErr := goerr.New("disk full")
		repo := &mockRepository{memory: &mockMemoryRepository{
			UpsertFn: func(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error) {
				return nil, writeErr
			},
		}}
		uc := usecase.New(repo, usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))

		_, err := uc.Memory.Upsert(ctx, []model.Document{{Text: "hello"}})
		gt.Error(t, err).Is(writeErr)
	})

	t.Run("maps metadata and leaves absent fields unset", func(t *testing.T) {
		var got []*model.Memory
		repo := &mockRepository{memory: &mockMemoryRepository{
			UpsertFn: func(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error) {
				got = memories
				return []model.MemoryID{"x", "y"}, nil
			},
		}}
		uc := usecase.New(repo, usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))

		ids, err := uc.Memory.Upsert(ctx, []model.Document{
			{Text: "with", Metadata: &model.DocumentMetadata{Author: "alice", URL: "https://example.com"}},
			{Text: "without"},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, ids).Equal([]model.MemoryID{"x", "y"})

		gt.Array(t, got).Length(2)
		gt.Value(t, got[0].Author).Equal("alice")
		gt.Value(t, got[0].URL).Equal("https://example.com")
		gt.Bool(t, got[0].CreatedAt.IsZero()).True()
		gt.Value(t, got[1].Author).Equal("")
		gt.Array(t, got[1].Embedding).Length(testDim)
	})

	t.Run("overwrites existing id wholesale", func(t *testing.T) {
		uc := usecase.New(memory.New(), usecase.WithEmbedding(newEmbedding(&hashEmbedder{})))

		seed(t, uc, model.Document{ID: "same", Text: "old words", Metadata: &model.DocumentMetadata{Author: "alice"}})
		seed(t, uc, model.Document{ID: "same", Text: "new words"})

		result := uc.Memory.Query(ctx, []model.Query{{Text: "words", TopK: 10}})
		gt.Number(t, result.Count).Equal(1)
		gt.Value(t, result.Memories[0].Content).Equal("new words")
		gt.Value(t, result.Memories[0].Metadata[model.MetadataAuthor]).Nil()
	})
}
