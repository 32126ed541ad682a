package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/pgvector/pgvector-go"
	"github.com/samber/lo"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
)

// 9 bind parameters per row keeps one statement well below the
// 65535-parameter protocol limit.
const defaultMaxRowsPerStatement = 1000

var memoryColumns = []string{
	"id",
	"content",
	"embedding",
	"source",
	"source_id",
	"document_id",
	"url",
	"author",
	"created_at",
}

type memoryRow struct {
	ID         string          `db:"id"`
	Content    string          `db:"content"`
	Embedding  pgvector.Vector `db:"embedding"`
	Source     *string         `db:"source"`
	SourceID   *string         `db:"source_id"`
	DocumentID *string         `db:"document_id"`
	URL        *string         `db:"url"`
	Author     *string         `db:"author"`
	CreatedAt  time.Time       `db:"created_at"`
	Similarity float64         `db:"similarity"`
}

func (r *memoryRow) toModel() *model.Memory {
	return &model.Memory{
		ID:         model.MemoryID(r.ID),
		Content:    r.Content,
		Embedding:  r.Embedding.Slice(),
		Source:     types.MemorySource(lo.FromPtr(r.Source)),
		SourceID:   lo.FromPtr(r.SourceID),
		DocumentID: lo.FromPtr(r.DocumentID),
		URL:        lo.FromPtr(r.URL),
		Author:     lo.FromPtr(r.Author),
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

// nullable maps the model's "unset" empty string to SQL NULL
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// IterativeScan is the pgvector hnsw.iterative_scan mode applied to searches.
// Without it an HNSW scan stops after ef_search candidates, so a selective
// filter can leave fewer than limit rows even when more matches exist.
type IterativeScan string

const (
	IterativeScanOff     IterativeScan = "off"
	IterativeScanStrict  IterativeScan = "strict_order"
	IterativeScanRelaxed IterativeScan = "relaxed_order"
)

func (x IterativeScan) valid() bool {
	switch x {
	case IterativeScanOff, IterativeScanStrict, IterativeScanRelaxed:
		return true
	}
	return false
}

// settingStatement returns the SET LOCAL statement for x, or "" when the
// scan is left at the server default. SET cannot take bind parameters, so
// only the known modes are ever rendered.
func (x IterativeScan) settingStatement() string {
	if x == "" || x == IterativeScanOff || !x.valid() {
		return ""
	}
	return "SET LOCAL hnsw.iterative_scan = " + string(x)
}

type memoryRepository struct {
	db                  DB
	table               string
	builder             sq.StatementBuilderType
	maxRowsPerStatement int
	iterativeScan       IterativeScan
}

func (r *memoryRepository) buildSearch(q *model.MemorySearch) (string, []any, error) {
	vec := pgvector.NewVector(q.Embedding)

	// <#> is the negative inner product, so ascending distance is
	// descending similarity.
	sb := r.builder.
		Select(memoryColumns...).
		Column(sq.Expr("(embedding <#> ?) * -1 AS similarity", vec)).
		From(r.table).
		OrderByClause("embedding <#> ?", vec).
		Limit(uint64(q.EffectiveLimit()))

	for _, p := range q.Filter.PatternFields() {
		if !p.IsActive() {
			continue
		}
		sb = sb.Where(sq.Like{p.Name: *p.Pattern})
	}
	if q.Filter.StartDate != nil {
		sb = sb.Where(sq.GtOrEq{"created_at": *q.Filter.StartDate})
	}
	if q.Filter.EndDate != nil {
		sb = sb.Where(sq.LtOrEq{"created_at": *q.Filter.EndDate})
	}

	return sb.ToSql()
}

func (r *memoryRepository) Search(ctx context.Context, q *model.MemorySearch) ([]*model.ScoredMemory, error) {
	query, args, err := r.buildSearch(q)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build search query")
	}

	var records []memoryRow
	collect := func(q Querier) error {
		rows, err := q.Query(ctx, query, args...)
		if err != nil {
			return goerr.Wrap(err, "failed to search memories", goerr.V("table", r.table))
		}
		records, err = pgx.CollectRows(rows, pgx.RowToStructByNameLax[memoryRow])
		if err != nil {
			return goerr.Wrap(err, "failed to read memory search results", goerr.V("table", r.table))
		}
		return nil
	}

	setting := r.iterativeScan.settingStatement()
	if setting == "" {
		if err := collect(r.db); err != nil {
			return nil, err
		}
	} else {
		// SET LOCAL only lives as long as the transaction
		err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, setting); err != nil {
				return goerr.Wrap(err, "failed to enable iterative index scan",
					goerr.V("mode", r.iterativeScan))
			}
			return collect(tx)
		})
		if err != nil {
			return nil, err
		}
	}

	results := make([]*model.ScoredMemory, len(records))
	for i := range records {
		results[i] = &model.ScoredMemory{
			Memory:     records[i].toModel(),
			Similarity: records[i].Similarity,
		}
	}

	return results, nil
}

func (r *memoryRepository) buildUpsert(memories []*model.Memory) (string, []any, error) {
	ib := r.builder.Insert(r.table).Columns(memoryColumns...)
	for _, m := range memories {
		ib = ib.Values(
			m.ID.String(),
			m.Content,
			pgvector.NewVector(m.Embedding),
			nullable(m.Source.String()),
			nullable(m.SourceID),
			nullable(m.DocumentID),
			nullable(m.URL),
			nullable(m.Author),
			m.CreatedAt,
		)
	}

	updates := make([]string, 0, len(memoryColumns)-1)
	for _, col := range memoryColumns[1:] {
		updates = append(updates, col+" = EXCLUDED."+col)
	}
	ib = ib.Suffix("ON CONFLICT (id) DO UPDATE SET " + strings.Join(updates, ", "))

	return ib.ToSql()
}

func (r *memoryRepository) Upsert(ctx context.Context, memories []*model.Memory) ([]model.MemoryID, error) {
	if len(memories) == 0 {
		return []model.MemoryID{}, nil
	}

	staged, ids, err := model.PrepareWrite(memories, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	// ON CONFLICT cannot touch the same row twice in one statement
	rows := model.LatestByID(staged)

	err = pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		for _, chunk := range lo.Chunk(rows, r.maxRowsPerStatement) {
			query, args, err := r.buildUpsert(chunk)
			if err != nil {
				return goerr.Wrap(err, "failed to build upsert statement")
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return goerr.Wrap(err, "failed to upsert memories", goerr.V("rows", len(chunk)))
			}
		}
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "memory upsert transaction failed",
			goerr.V("table", r.table),
			goerr.V("count", len(rows)),
		)
	}

	return ids, nil
}

func (r *memoryRepository) Get(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	query, args, err := r.builder.
		Select(memoryColumns...).
		From(r.table).
		Where(sq.Eq{"id": id.String()}).
		ToSql()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build get query")
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("memory_id", id))
	}

	row, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByNameLax[memoryRow])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "memory not found", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to read memory", goerr.V("memory_id", id))
	}

	return row.toModel(), nil
}
