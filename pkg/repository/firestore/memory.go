package firestore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CollectionName is the collection holding memories, before any prefix
const CollectionName = "memories"

// MaxBatchWrites is the largest batch one transaction can commit
const MaxBatchWrites = 500

var ErrBatchTooLarge = goerr.New("too many memories for one transaction")

// memoryDoc is the Firestore document representation of model.Memory.
// Unset attributes are omitted so equality filters never match them.
type memoryDoc struct {
	ID         model.MemoryID     `firestore:"ID"`
	Content    string             `firestore:"Content"`
	Embedding  firestore.Vector32 `firestore:"Embedding"`
	Source     string             `firestore:"Source,omitempty"`
	SourceID   string             `firestore:"SourceID,omitempty"`
	DocumentID string             `firestore:"DocumentID,omitempty"`
	URL        string             `firestore:"URL,omitempty"`
	Author     string             `firestore:"Author,omitempty"`
	CreatedAt  time.Time          `firestore:"CreatedAt"`
}

// docFields maps filter names to document field paths
var docFields = map[string]string{
	"document_id": "DocumentID",
	"source_id":   "SourceID",
	"source":      "Source",
	"author":      "Author",
}

func toMemoryDoc(m *model.Memory) *memoryDoc {
	return &memoryDoc{
		ID:         m.ID,
		Content:    m.Content,
		Embedding:  firestore.Vector32(m.Embedding),
		Source:     m.Source.String(),
		SourceID:   m.SourceID,
		DocumentID: m.DocumentID,
		URL:        m.URL,
		Author:     m.Author,
		CreatedAt:  m.CreatedAt,
	}
}

func fromMemoryDoc(d *memoryDoc) *model.Memory {
	return &model.Memory{
		ID:         d.ID,
		Content:    d.Content,
		Embedding:  []float32(d.Embedding),
		Source:     types.MemorySource(d.Source),
		SourceID:   d.SourceID,
		DocumentID: d.DocumentID,
		URL:        d.URL,
		Author:     d.Author,
		CreatedAt:  d.CreatedAt.UTC(),
	}
}

type memoryRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func newMemoryRepository(client *firestore.Client) *memoryRepository {
	return &memoryRepository{client: client}
}

func (r *memoryRepository) collection() *firestore.CollectionRef {
	return r.client.Collection(r.collectionPrefix + CollectionName)
}

// Firestore rejects FindNearest limits above this
const maxNearestLimit = 1000

type predicate struct {
	path  string
	op    string
	value any
}

// searchPlan is how one search is issued. pushdown always targets a single
// field, so the query is served either by the automatic single-field index
// or by one of the (field, Embedding) composite indexes migrate creates.
// Everything else is left to MemoryFilter.Match.
type searchPlan struct {
	pushdown []predicate
	nearest  bool
}

func planSearch(q *model.MemorySearch) searchPlan {
	var literals []predicate
	wildcard := false
	for _, p := range q.Filter.PatternFields() {
		if !p.IsActive() {
			continue
		}
		literal, ok := model.LiteralPattern(*p.Pattern)
		if !ok {
			wildcard = true
			continue
		}
		literals = append(literals, predicate{path: docFields[p.Name], op: "==", value: literal})
	}

	var timeRange []predicate
	if q.Filter.StartDate != nil {
		timeRange = append(timeRange, predicate{path: "CreatedAt", op: ">=", value: *q.Filter.StartDate})
	}
	if q.Filter.EndDate != nil {
		timeRange = append(timeRange, predicate{path: "CreatedAt", op: "<=", value: *q.Filter.EndDate})
	}

	fields := len(literals)
	if len(timeRange) > 0 {
		fields++
	}

	var plan searchPlan
	switch {
	case len(literals) > 0:
		plan.pushdown = literals[:1]
	case len(timeRange) > 0:
		plan.pushdown = timeRange
	}
	plan.nearest = !wildcard && fields <= 1 && q.EffectiveLimit() <= maxNearestLimit

	return plan
}

// Search runs a native nearest-neighbor query when at most one filtered
// field is involved and it is literal. Otherwise it scans the documents
// matching one pushed-down field and ranks them in process. Results are
// always re-filtered and re-scored locally.
func (r *memoryRepository) Search(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error) {
	plan := planSearch(q)

	query := r.collection().Query
	for _, p := range plan.pushdown {
		query = query.Where(p.path, p.op, p.value)
	}

	var iter *firestore.DocumentIterator
	if plan.nearest {
		iter = query.FindNearest("Embedding",
			firestore.Vector32(q.Embedding),
			q.EffectiveLimit(),
			firestore.DistanceMeasureDotProduct,
			nil,
		).Documents(ctx)
	} else {
		iter = query.Documents(ctx)
	}
	defer iter.Stop()

	results := make([]*model.ScoredMemory, 0, q.EffectiveLimit())
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate memory search results", goerr.V("nearest", plan.nearest))
		}

		var d memoryDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal memory", goerr.V("doc_id", doc.Ref.ID))
		}

		m := fromMemoryDoc(&d)
		if !q.Filter.Match(m) || len(m.Embedding) != len(q.Embedding) {
			continue
		}
		results = append(results, &model.ScoredMemory{
			Memory:     m,
			Similarity: model.InnerProduct(q.Embedding, m.Embedding),
		})
	}

	slices.SortStableFunc(results, func(a, b *model.ScoredMemory) int {
		return cmp.Compare(b.Similarity, a.Similarity)
	})
	if limit := q.EffectiveLimit(); len(results) > limit {
		results = results[:limit]
	}

	return results, nil
}

func (r *memoryRepository) Upsert(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error) {
	if len(memories) == 0 {
		return []model.MemoryID{}, nil
	}

	staged, ids, err := model.PrepareWrite(memories, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	docs := model.LatestByID(staged)
	if len(docs) > MaxBatchWrites {
		return nil, goerr.Wrap(ErrBatchTooLarge, "memory batch exceeds transaction limit",
			goerr.V("count", len(docs)),
			goerr.V("max", MaxBatchWrites),
		)
	}

	err = r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, m := range docs {
			if err := tx.Set(r.collection().Doc(m.ID.String()), toMemoryDoc(m)); err != nil {
				return goerr.Wrap(err, "failed to stage memory write", goerr.V("memory_id", m.ID))
			}
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "memory upsert transaction failed", goerr.V("count", len(docs)))
	}

	return ids, nil
}

func (r *memoryRepository) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	doc, err := r.collection().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memory_id", id))
	}

	var d memoryDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal memory", goerr.V("memory_id", id))
	}

	return fromMemoryDoc(&d), nil
}
