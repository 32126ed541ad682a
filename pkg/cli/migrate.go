package cli

import (
	"context"

	gofirestore "cloud.google.com/go/firestore"
	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/cli/config"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/repository/firestore"
	"github.com/secmon-lab/recall/pkg/repository/postgres"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdMigrate() *cli.Command {
	var repoCfg config.Repository
	var dryRun bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview changes without applying",
			Destination: &dryRun,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate the memory store schema (PostgreSQL tables or Firestore indexes)",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("Migrate configuration",
				"backend", repoCfg.Backend(),
				"dryRun", dryRun)

			switch repoCfg.Backend() {
			case config.BackendPostgres:
				return migratePostgres(&repoCfg, dryRun)
			case config.BackendFirestore:
				return migrateFirestore(ctx, &repoCfg, dryRun)
			case config.BackendMemory:
				logging.Default().Info("In-memory backend has no schema, nothing to migrate")
				return nil
			default:
				return goerr.Wrap(config.ErrInvalidConfig, "invalid repository backend",
					goerr.V("backend", repoCfg.Backend()))
			}
		},
	}
}

func migratePostgres(repoCfg *config.Repository, dryRun bool) error {
	logger := logging.Default()

	if repoCfg.PostgresDSN() == "" {
		return goerr.Wrap(config.ErrInvalidConfig, "postgres-dsn is required to migrate postgres")
	}

	m, err := postgres.NewMigrator(repoCfg.PostgresDSN(), logger)
	if err != nil {
		return goerr.Wrap(err, "failed to create migrator")
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Error("failed to close migrator", "error", err.Error())
		}
	}()

	version, dirty, ok, err := m.Version()
	if err != nil {
		return goerr.Wrap(err, "failed to read schema version")
	}
	logger.Info("Current schema version", "version", version, "dirty", dirty, "initialized", ok)

	if dryRun {
		logger.Info("Dry run mode - not applying migrations")
		return nil
	}

	if err := m.Up(); err != nil {
		return goerr.Wrap(err, "failed to apply migrations")
	}

	version, _, _, err = m.Version()
	if err != nil {
		return goerr.Wrap(err, "failed to read schema version")
	}
	logger.Info("Migrations applied successfully", "version", version)
	return nil
}

func migrateFirestore(ctx context.Context, repoCfg *config.Repository, dryRun bool) error {
	logger := logging.Default()

	if repoCfg.ProjectID() == "" {
		return goerr.Wrap(config.ErrInvalidConfig, "firestore-project-id is required to migrate firestore")
	}

	databaseID := repoCfg.DatabaseID()
	if databaseID == "" {
		databaseID = gofirestore.DefaultDatabaseID
	}

	indexConfig := getIndexConfig(repoCfg.CollectionPrefix())
	if err := indexConfig.Validate(); err != nil {
		return goerr.Wrap(err, "invalid firestore index configuration")
	}

	client, err := fireconf.New(ctx, repoCfg.ProjectID(), databaseID, indexConfig,
		fireconf.WithLogger(logger),
		fireconf.WithDryRun(dryRun),
	)
	if err != nil {
		return goerr.Wrap(err, "failed to create fireconf client",
			goerr.V("project_id", repoCfg.ProjectID()),
			goerr.V("database_id", databaseID),
		)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close fireconf client", "error", err.Error())
		}
	}()

	if dryRun {
		logger.Info("Dry run mode - previewing changes")
	} else {
		logger.Info("Applying migrations")
	}
	if err := client.Migrate(ctx); err != nil {
		return goerr.Wrap(err, "failed to apply migrations", goerr.V("dry_run", dryRun))
	}
	if !dryRun {
		logger.Info("Migrations applied successfully")
	}
	return nil
}

// getIndexConfig returns the Firestore index configuration for the memory
// collection: a plain vector index plus one (field, Embedding) index per
// filterable field. Search pushes at most one field down to FindNearest, so
// no index ever combines two filter fields.
func getIndexConfig(prefix string) *fireconf.Config {
	vector := fireconf.IndexField{
		Path: "Embedding",
		Vector: &fireconf.VectorConfig{
			Dimension: model.DefaultEmbeddingDimension,
		},
	}

	indexes := []fireconf.Index{
		{Fields: []fireconf.IndexField{vector}},
	}
	for _, path := range []string{"Source", "SourceID", "DocumentID", "Author", "CreatedAt"} {
		indexes = append(indexes, fireconf.Index{
			Fields: []fireconf.IndexField{
				{Path: path, Order: fireconf.OrderAscending},
				vector,
			},
		})
	}

	return &fireconf.Config{
		Collections: []fireconf.Collection{
			{
				Name:    prefix + firestore.CollectionName,
				Indexes: indexes,
			},
		},
	}
}
