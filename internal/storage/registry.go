package storage

import (
	"context"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/config"
)

// Open builds the backend named by cfg.Backend, migrates it and returns
// it wrapped as a Store.
func Open(ctx context.Context, cfg config.StorageConfig) (*Store, error) {
	var (
		b   Backend
		err error
	)
	switch cfg.Backend {
	case "files", "":
		b, err = NewFiles(cfg.Root)
	case "sqlite":
		b, err = NewSQLite(cfg.SQLitePath)
	case "parquet":
		b, err = NewParquet(cfg.ParquetPath)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, apperr.New(apperr.KindConfig, "storage: postgres backend requires database_url")
		}
		b, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, apperr.Errorf(apperr.KindConfig, "storage: unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, apperr.Ensure(err, apperr.KindStorage)
	}

	s := NewStore(b)
	if err := s.Migrate(ctx); err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}
	return s, nil
}
