package config

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/repository/firestore"
	"github.com/secmon-lab/recall/pkg/repository/memory"
	"github.com/secmon-lab/recall/pkg/repository/postgres"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	BackendMemory    = "memory"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend          string
	postgresDSN      string `masq:"secret"`
	postgresMaxConns int64
	iterativeScan    string
	projectID        string
	databaseID       string
	collectionPrefix string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Usage:       "Repository backend type (memory, postgres or firestore)",
			Value:       BackendMemory,
			Category:    "Repository",
			Sources:     cli.EnvVars("RECALL_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "postgres-dsn",
			Usage:       "PostgreSQL connection string (required when using postgres backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("RECALL_POSTGRES_DSN"),
			Destination: &r.postgresDSN,
		},
		&cli.Int64Flag{
			Name:        "postgres-max-conns",
			Usage:       "Maximum number of pooled PostgreSQL connections",
			Value:       int64(postgres.DefaultPoolConfig().MaxConns),
			Category:    "Repository",
			Sources:     cli.EnvVars("RECALL_POSTGRES_MAX_CONNS"),
			Destination: &r.postgresMaxConns,
		},
		&cli.StringFlag{
			Name:        "postgres-iterative-scan",
			Usage:       "pgvector iterative index scan mode for filtered searches (off, strict_order or relaxed_order)",
			Value:       string(postgres.IterativeScanStrict),
			Category:    "Repository",
			Sources:     cli.EnvVars("RECALL_POSTGRES_ITERATIVE_SCAN"),
			Destination: &r.iterativeScan,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Category:    "Repository",
			Sources:     cli.EnvVars("RECALL_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore Database ID",
			Category:    "Repository",
			Sources:     cli.EnvVars("RECALL_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Usage:       "Prefix prepended to Firestore collection names",
			Category:    "Repository",
			Sources:     cli.EnvVars("RECALL_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
	}
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

func (r *Repository) PostgresDSN() string {
	return r.postgresDSN
}

func (r *Repository) ProjectID() string {
	return r.projectID
}

func (r *Repository) DatabaseID() string {
	return r.databaseID
}

func (r *Repository) CollectionPrefix() string {
	return r.collectionPrefix
}

func (r *Repository) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("backend", r.backend),
		slog.Bool("postgres_dsn_set", r.postgresDSN != ""),
		slog.Int64("postgres_max_conns", r.postgresMaxConns),
		slog.String("postgres_iterative_scan", r.iterativeScan),
		slog.String("firestore_project_id", r.projectID),
		slog.String("firestore_database_id", r.databaseID),
		slog.String("firestore_collection_prefix", r.collectionPrefix),
	}
}

// Configure initializes and returns a repository based on the configured backend.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context) (interfaces.Repository, error) {
	switch r.backend {
	case BackendPostgres:
		if r.postgresDSN == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "postgres-dsn is required when using postgres backend")
		}

		scan := postgres.IterativeScan(r.iterativeScan)
		switch scan {
		case "":
			scan = postgres.IterativeScanStrict
		case postgres.IterativeScanOff, postgres.IterativeScanStrict, postgres.IterativeScanRelaxed:
		default:
			return nil, goerr.Wrap(ErrInvalidConfig, "invalid postgres-iterative-scan",
				goerr.V(ValueKey, r.iterativeScan))
		}

		poolCfg := postgres.DefaultPoolConfig()
		if r.postgresMaxConns > 0 {
			poolCfg.MaxConns = int32(r.postgresMaxConns) // #nosec G115 - bounded by operator input
		}

		pool, err := postgres.NewPool(ctx, r.postgresDSN, poolCfg)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize postgres pool")
		}

		logging.Default().Info("Using PostgreSQL repository",
			"max_conns", poolCfg.MaxConns,
			"iterative_scan", scan,
		)
		repo := postgres.New(pool, postgres.WithIterativeScan(scan))
		return &pooledRepository{Repository: repo, pool: pool}, nil

	case BackendFirestore:
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "firestore-project-id is required when using firestore backend")
		}
		repo, err := firestore.New(ctx, r.projectID, r.databaseID,
			firestore.WithCollectionPrefix(r.collectionPrefix),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
		)
		return repo, nil

	case BackendMemory:
		logging.Default().Info("Using in-memory repository (development mode)")
		return memory.New(), nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid repository backend", goerr.V("backend", r.backend))
	}
}

// pooledRepository releases the connection pool the bootstrap created
type pooledRepository struct {
	interfaces.Repository
	pool *pgxpool.Pool
}

func (r *pooledRepository) Close() error {
	err := r.Repository.Close()
	r.pool.Close()
	return err
}
