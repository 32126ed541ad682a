package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
)

// DB is the subset of *pgxpool.Pool the repository needs. The pool is
// owned by the caller; the repository never opens or closes connections.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Querier is the read side shared by DB and pgx.Tx
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const defaultTable = "memories"

type Postgres struct {
	memory *memoryRepository
}

var _ interfaces.Repository = &Postgres{}

type Option func(*Postgres)

// WithTable overrides the table name. It is interpolated into SQL, so it
// must come from configuration, never from request input.
func WithTable(table string) Option {
	return func(p *Postgres) {
		p.memory.table = table
	}
}

// WithMaxRowsPerStatement bounds the rows of one INSERT. Larger batches are
// split across statements inside one transaction.
func WithMaxRowsPerStatement(n int) Option {
	return func(p *Postgres) {
		if n > 0 {
			p.memory.maxRowsPerStatement = n
		}
	}
}

// WithIterativeScan sets the pgvector iterative index scan mode used by
// Search. It needs pgvector 0.8 or later; IterativeScanOff leaves the server
// setting untouched. Unknown modes are ignored.
func WithIterativeScan(mode IterativeScan) Option {
	return func(p *Postgres) {
		if mode.valid() {
			p.memory.iterativeScan = mode
		}
	}
}

func New(db DB, opts ...Option) *Postgres {
	p := &Postgres{
		memory: &memoryRepository{
			db:                  db,
			table:               defaultTable,
			builder:             sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
			maxRowsPerStatement: defaultMaxRowsPerStatement,
			iterativeScan:       IterativeScanStrict,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Postgres) Memory() interfaces.MemoryRepository {
	return p.memory
}

// Close is a no-op; the connection pool belongs to the caller.
func (p *Postgres) Close() error {
	return nil
}
