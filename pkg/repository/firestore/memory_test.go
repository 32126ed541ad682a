package firestore_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/repository/firestore"
)

func ptr[T any](v T) *T {
	return &v
}

func TestPlanSearch(t *testing.T) {
	t1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(24 * time.Hour)

	testCases := []struct {
		name    string
		filter  model.MemoryFilter
		limit   int
		filters []string
		nearest bool
	}{
		{
			name:    "no filter",
			filters: []string{},
			nearest: true,
		},
		{
			name:    "single literal pattern",
			filter:  model.MemoryFilter{Source: ptr("chat")},
			filters: []string{"Source =="},
			nearest: true,
		},
		{
			name:    "time range counts as one field",
			filter:  model.MemoryFilter{StartDate: &t1, EndDate: &t2},
			filters: []string{"CreatedAt >=", "CreatedAt <="},
			nearest: true,
		},
		{
			name:    "two literal patterns scan with one pushed down",
			filter:  model.MemoryFilter{Source: ptr("chat"), Author: ptr("alice")},
			filters: []string{"Source =="},
			nearest: false,
		},
		{
			name:    "literal with time range pushes the literal only",
			filter:  model.MemoryFilter{DocumentID: ptr("doc-1"), StartDate: &t1},
			filters: []string{"DocumentID =="},
			nearest: false,
		},
		{
			name:    "wildcard pattern scans",
			filter:  model.MemoryFilter{DocumentID: ptr("doc-%")},
			filters: []string{},
			nearest: false,
		},
		{
			name:    "wildcard with time range pushes the range",
			filter:  model.MemoryFilter{Author: ptr("a%"), EndDate: &t2},
			filters: []string{"CreatedAt <="},
			nearest: false,
		},
		{
			name:    "match-all pattern is ignored",
			filter:  model.MemoryFilter{Source: ptr("%")},
			filters: []string{},
			nearest: true,
		},
		{
			name:    "limit above native maximum scans",
			limit:   1001,
			filters: []string{},
			nearest: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			filters, nearest := firestore.PlanSearch(&model.MemorySearch{
				Embedding: []float32{1},
				Limit:     tc.limit,
				Filter:    tc.filter,
			})
			gt.Array(t, filters).Equal(tc.filters)
			gt.Value(t, nearest).Equal(tc.nearest)
		})
	}
}
