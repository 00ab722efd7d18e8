package dependency_container

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/ya-paperswithcode/agentsearch/pkg/config"
	"github.com/ya-paperswithcode/agentsearch/pkg/domain/record"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/database"
	"github.com/ya-paperswithcode/agentsearch/pkg/infra/records"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverJSON     = "json"
)

// NewRecordRepository opens the record store selected by cfg.Driver. The
// returned closer releases the underlying connection.
func NewRecordRepository(
	ctx context.Context,
	cfg config.DatabaseConfig,
	logger *logrus.Logger,
) (record.Repository, func() error, error) {
	switch cfg.Driver {
	case DriverSQLite:
		repo, err := records.NewSQLiteRepository(ctx, logger, cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return repo, repo.Close, nil

	case DriverPostgres:
		db, err := database.NewDB(logger, cfg)
		if err != nil {
			return nil, nil, err
		}
		return records.NewGormRepository(db), db.Close, nil

	case DriverJSON:
		repo := records.NewMemoryRepository()
		if _, err := records.NewJSONLoader(logger, repo).LoadFiles(ctx, cfg.PapersFile, cfg.DatasetsFile); err != nil {
			return nil, nil, err
		}
		return repo, func() error { return nil }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}
