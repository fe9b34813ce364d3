package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
)

// parquetDoc is one row of the Parquet store. Payload and metadata are
// JSON text.
type parquetDoc struct {
	StorageID string `parquet:"storage_id"`
	ItemID    string `parquet:"item_id"`
	DataType  string `parquet:"data_type"`
	Timestamp string `parquet:"timestamp"`
	Data      string `parquet:"data"`
	Metadata  string `parquet:"metadata"`
}

// ParquetBackend keeps every document in a single Parquet file. Each
// write rewrites the file, so it suits small and offline runs.
type ParquetBackend struct {
	path string
	mu   sync.Mutex
}

// NewParquet creates a ParquetBackend writing to path.
func NewParquet(path string) (*ParquetBackend, error) {
	if path == "" {
		return nil, eris.New("parquet: path is required")
	}
	return &ParquetBackend{path: path}, nil
}

// Name implements Backend.
func (b *ParquetBackend) Name() string { return "parquet" }

// Migrate creates the parent directory and an empty file when missing.
func (b *ParquetBackend) Migrate(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return eris.Wrapf(err, "parquet: create dir for %s", b.path)
	}
	if _, err := os.Stat(b.path); errors.Is(err, fs.ErrNotExist) {
		return b.save(nil)
	}
	return nil
}

// Close implements Backend.
func (b *ParquetBackend) Close() error { return nil }

// Put replaces any row with the same item and kind.
func (b *ParquetBackend) Put(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	meta, err := json.Marshal(doc.Metadata)
	if err != nil {
		return eris.Wrap(err, "parquet: marshal metadata")
	}
	row := parquetDoc{
		StorageID: doc.StorageID,
		ItemID:    doc.ItemID,
		DataType:  string(doc.Kind),
		Timestamp: doc.CreatedAt.Format(time.RFC3339Nano),
		Data:      string(doc.Payload),
		Metadata:  string(meta),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	rows, err := b.load()
	if err != nil {
		return err
	}
	rows = slices.DeleteFunc(rows, func(r parquetDoc) bool {
		return r.ItemID == doc.ItemID && r.DataType == string(doc.Kind)
	})
	return b.save(append(rows, row))
}

// Get implements Backend.
func (b *ParquetBackend) Get(_ context.Context, itemID string, kind Kind) (*Document, error) {
	b.mu.Lock()
	rows, err := b.load()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if r.ItemID == itemID && r.DataType == string(kind) {
			return r.document()
		}
	}
	return nil, notFound(itemID, kind)
}

// ListItems implements Backend.
func (b *ParquetBackend) ListItems(_ context.Context) ([]string, error) {
	b.mu.Lock()
	rows, err := b.load()
	b.mu.Unlock()
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, r := range rows {
		if !slices.Contains(ids, r.ItemID) {
			ids = append(ids, r.ItemID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// DeleteItem removes every row for itemID.
func (b *ParquetBackend) DeleteItem(_ context.Context, itemID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	rows, err := b.load()
	if err != nil {
		return err
	}
	kept := slices.DeleteFunc(rows, func(r parquetDoc) bool { return r.ItemID == itemID })
	if len(kept) == len(rows) {
		return notFound(itemID, "item")
	}
	return b.save(kept)
}

func (b *ParquetBackend) load() ([]parquetDoc, error) {
	if _, err := os.Stat(b.path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[parquetDoc](b.path)
	if err != nil {
		return nil, eris.Wrapf(err, "parquet: read %s", b.path)
	}
	return rows, nil
}

// save writes rows through a temp file and rename.
func (b *ParquetBackend) save(rows []parquetDoc) error {
	tmp, err := os.CreateTemp(filepath.Dir(b.path), ".storage-*.parquet")
	if err != nil {
		return eris.Wrap(err, "parquet: create temp file")
	}
	tmpName := tmp.Name()
	if err := parquet.Write(tmp, rows); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "parquet: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "parquet: close %s", tmpName)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "parquet: rename %s", tmpName)
	}
	return nil
}

func (r parquetDoc) document() (*Document, error) {
	doc := &Document{
		StorageID: r.StorageID,
		ItemID:    r.ItemID,
		Kind:      Kind(r.DataType),
		Payload:   json.RawMessage(r.Data),
	}
	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return nil, eris.Wrapf(err, "parquet: parse timestamp for %s/%s", r.ItemID, r.DataType)
	}
	doc.CreatedAt = ts
	if r.Metadata != "" && r.Metadata != "null" {
		if err := json.Unmarshal([]byte(r.Metadata), &doc.Metadata); err != nil {
			return nil, eris.Wrapf(err, "parquet: unmarshal metadata for %s/%s", r.ItemID, r.DataType)
		}
	}
	return doc, nil
}
