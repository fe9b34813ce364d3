package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteBackend stores documents in a local SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteBackend, error) {
	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, eris.Wrapf(err, "sqlite: create dir %s", dir)
			}
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteBackend{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS item_documents (
	item_id    TEXT NOT NULL,
	kind       TEXT NOT NULL,
	storage_id TEXT NOT NULL UNIQUE,
	payload    TEXT NOT NULL,
	metadata   TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (item_id, kind)
);

CREATE INDEX IF NOT EXISTS idx_item_documents_created_at ON item_documents(created_at);
`

// Name implements Backend.
func (s *SQLiteBackend) Name() string { return "sqlite" }

// Migrate implements Backend.
func (s *SQLiteBackend) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close implements Backend.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// Put implements Backend.
func (s *SQLiteBackend) Put(ctx context.Context, doc Document) error {
	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal metadata")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO item_documents (item_id, kind, storage_id, payload, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (item_id, kind) DO UPDATE SET
			storage_id = excluded.storage_id,
			payload = excluded.payload,
			metadata = excluded.metadata,
			created_at = excluded.created_at`,
		doc.ItemID, string(doc.Kind), doc.StorageID, string(doc.Payload), meta, doc.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: put %s/%s", doc.ItemID, doc.Kind)
}

// Get implements Backend.
func (s *SQLiteBackend) Get(ctx context.Context, itemID string, kind Kind) (*Document, error) {
	var (
		doc     Document
		payload string
		meta    sql.NullString
		kindStr string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT item_id, kind, storage_id, payload, metadata, created_at FROM item_documents WHERE item_id = ? AND kind = ?`,
		itemID, string(kind),
	).Scan(&doc.ItemID, &kindStr, &doc.StorageID, &payload, &meta, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(itemID, kind)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get %s/%s", itemID, kind)
	}
	doc.Kind = Kind(kindStr)
	doc.Payload = json.RawMessage(payload)
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &doc.Metadata); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal metadata")
		}
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	return &doc, nil
}

// ListItems implements Backend.
func (s *SQLiteBackend) ListItems(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT item_id FROM item_documents ORDER BY item_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list items")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan item id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate items")
}

// DeleteItem implements Backend.
func (s *SQLiteBackend) DeleteItem(ctx context.Context, itemID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM item_documents WHERE item_id = ?`, itemID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete %s", itemID)
	}
	return checkRowsAffected(res, itemID)
}

func checkRowsAffected(res sql.Result, itemID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(itemID, "item")
	}
	return nil
}

func marshalMetadata(m map[string]any) (*string, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}
