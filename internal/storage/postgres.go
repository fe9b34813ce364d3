package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool used by PostgresBackend.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresBackend stores documents in PostgreSQL as JSONB.
type PostgresBackend struct {
	pool Pool
}

// NewPostgres creates a PostgresBackend with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresBackend, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresBackend{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS item_documents (
	item_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	storage_id TEXT NOT NULL UNIQUE,
	payload    JSONB NOT NULL,
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (item_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_item_documents_created_at ON item_documents(created_at);
`

// Name implements Backend.
func (s *PostgresBackend) Name() string { return "postgres" }

// Migrate implements Backend.
func (s *PostgresBackend) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close implements Backend.
func (s *PostgresBackend) Close() error {
	s.pool.Close()
	return nil
}

// Put implements Backend.
func (s *PostgresBackend) Put(ctx context.Context, doc Document) error {
	var meta []byte
	if len(doc.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(doc.Metadata); err != nil {
			return eris.Wrap(err, "postgres: marshal metadata")
		}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO item_documents (item_id, kind, storage_id, payload, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (item_id, kind) DO UPDATE SET
			storage_id = EXCLUDED.storage_id,
			payload = EXCLUDED.payload,
			metadata = EXCLUDED.metadata,
			created_at = EXCLUDED.created_at`,
		doc.ItemID, string(doc.Kind), doc.StorageID, []byte(doc.Payload), meta, doc.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: put %s/%s", doc.ItemID, doc.Kind)
}

// Get implements Backend.
func (s *PostgresBackend) Get(ctx context.Context, itemID string, kind Kind) (*Document, error) {
	var (
		doc     Document
		kindStr string
		payload []byte
		meta    []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT item_id, kind, storage_id, payload, metadata, created_at FROM item_documents WHERE item_id = $1 AND kind = $2`,
		itemID, string(kind),
	).Scan(&doc.ItemID, &kindStr, &doc.StorageID, &payload, &meta, &doc.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(itemID, kind)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get %s/%s", itemID, kind)
	}
	doc.Kind = Kind(kindStr)
	doc.Payload = json.RawMessage(payload)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal metadata")
		}
	}
	return &doc, nil
}

// ListItems implements Backend.
func (s *PostgresBackend) ListItems(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT item_id FROM item_documents ORDER BY item_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list items")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan item id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate items")
}

// DeleteItem implements Backend.
func (s *PostgresBackend) DeleteItem(ctx context.Context, itemID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM item_documents WHERE item_id = $1`, itemID)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete %s", itemID)
	}
	if tag.RowsAffected() == 0 {
		return notFound(itemID, "item")
	}
	return nil
}
