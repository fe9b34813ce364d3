package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/rotisserie/eris"
)

// FilesBackend stores each document as JSON at <root>/<item_id>/<kind>.json.
type FilesBackend struct {
	root string
}

// NewFiles creates a FilesBackend rooted at root.
func NewFiles(root string) (*FilesBackend, error) {
	if root == "" {
		return nil, eris.New("files: root is required")
	}
	return &FilesBackend{root: root}, nil
}

// Name implements Backend.
func (b *FilesBackend) Name() string { return "files" }

// Migrate creates the root directory.
func (b *FilesBackend) Migrate(_ context.Context) error {
	return eris.Wrap(os.MkdirAll(b.root, 0o755), "files: create root")
}

// Close implements Backend.
func (b *FilesBackend) Close() error { return nil }

func (b *FilesBackend) path(itemID string, kind Kind) string {
	return filepath.Join(b.root, itemID, string(kind)+".json")
}

// Put writes doc atomically through a temp file and rename.
func (b *FilesBackend) Put(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(b.root, doc.ItemID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "files: create dir %s", dir)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "files: marshal document")
	}

	tmp, err := os.CreateTemp(dir, "."+string(doc.Kind)+"-*.tmp")
	if err != nil {
		return eris.Wrap(err, "files: create temp file")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "files: write %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "files: close %s", tmpName)
	}
	if err := os.Rename(tmpName, b.path(doc.ItemID, doc.Kind)); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return eris.Wrapf(err, "files: rename %s", tmpName)
	}
	return nil
}

// Get implements Backend.
func (b *FilesBackend) Get(_ context.Context, itemID string, kind Kind) (*Document, error) {
	data, err := os.ReadFile(b.path(itemID, kind))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, notFound(itemID, kind)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "files: read %s/%s", itemID, kind)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "files: unmarshal %s/%s", itemID, kind)
	}
	return &doc, nil
}

// ListItems returns item directories holding at least one document.
func (b *FilesBackend) ListItems(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(b.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "files: list root")
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		for _, k := range Kinds {
			if _, err := os.Stat(b.path(e.Name(), k)); err == nil {
				ids = append(ids, e.Name())
				break
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteItem removes the item directory. Deleting a missing item is a
// not-found error.
func (b *FilesBackend) DeleteItem(_ context.Context, itemID string) error {
	dir := filepath.Join(b.root, itemID)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return notFound(itemID, "item")
	}
	return eris.Wrapf(os.RemoveAll(dir), "files: delete %s", itemID)
}
