package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

func TestDocument_ToMemory(t *testing.T) {
	t.Run("maps metadata", func(t *testing.T) {
		createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		doc := &model.Document{
			ID:   "doc-1",
			Text: "hello",
			Metadata: &model.DocumentMetadata{
				Source:     types.MemorySourceEmail,
				SourceID:   "msg-1",
				DocumentID: "thread-1",
				URL:        "https://example.com/1",
				Author:     "bob",
				CreatedAt:  &createdAt,
			},
		}
		m := doc.ToMemory([]float32{0.5})

		gt.Value(t, m.ID).Equal(model.MemoryID("doc-1"))
		gt.Value(t, m.Content).Equal("hello")
		gt.Value(t, m.Source).Equal(types.MemorySourceEmail)
		gt.Value(t, m.SourceID).Equal("msg-1")
		gt.Value(t, m.DocumentID).Equal("thread-1")
		gt.Value(t, m.URL).Equal("https://example.com/1")
		gt.Value(t, m.Author).Equal("bob")
		gt.Bool(t, m.CreatedAt.Equal(createdAt)).True()
	})

	t.Run("absent metadata stays unset", func(t *testing.T) {
		m := (&model.Document{Text: "hello"}).ToMemory([]float32{0.5})

		gt.Value(t, m.ID).Equal(model.MemoryID(""))
		gt.Bool(t, m.Source.IsSet()).False()
		gt.Bool(t, m.CreatedAt.IsZero()).True()
	})
}

func TestNewMemoryView(t *testing.T) {
	jst := time.FixedZone("JST", 9*60*60)
	view := model.NewMemoryView(&model.ScoredMemory{
		Memory: &model.Memory{
			ID:        "mem-1",
			Content:   "budget meeting notes",
			Source:    types.MemorySourceChat,
			Author:    "alice",
			CreatedAt: time.Date(2024, 1, 2, 12, 0, 0, 500, jst),
		},
		Similarity: 0.75,
	})

	gt.Value(t, view.ID).Equal(model.MemoryID("mem-1"))
	gt.Value(t, view.Similarity).Equal(0.75)
	gt.Value(t, view.Metadata[model.MetadataSource]).Equal(any("chat"))
	gt.Value(t, view.Metadata[model.MetadataAuthor]).Equal(any("alice"))
	gt.Value(t, view.Metadata[model.MetadataCreatedAt]).Equal(any("2024-01-02T03:00:00.0000005Z"))

	t.Run("unset attributes are present and nil", func(t *testing.T) {
		for _, key := range []string{model.MetadataSourceID, model.MetadataDocumentID, model.MetadataURL} {
			v, ok := view.Metadata[key]
			gt.Bool(t, ok).True()
			gt.Value(t, v).Nil()
		}
	})
}

func TestNewQueryResult(t *testing.T) {
	t.Run("nil views become empty list", func(t *testing.T) {
		r := model.NewQueryResult(nil)
		gt.Bool(t, r.Memories != nil).True()
		gt.Array(t, r.Memories).Length(0)
		gt.Number(t, r.Count).Equal(0)
	})

	t.Run("count matches views", func(t *testing.T) {
		r := model.NewQueryResult([]model.MemoryView{{ID: "a"}, {ID: "b"}})
		gt.Number(t, r.Count).Equal(2)
	})
}
