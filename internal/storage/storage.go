// Package storage persists per-item attribute records, raw model replies
// and lineage documents.
package storage

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/vis2attr/internal/apperr"
)

// Kind names one of the three documents stored per item.
type Kind string

// Document kinds.
const (
	KindAttributes  Kind = "attributes"
	KindRawResponse Kind = "raw_responses"
	KindLineage     Kind = "lineage"
)

// Kinds lists every document kind in write order.
var Kinds = []Kind{KindAttributes, KindRawResponse, KindLineage}

// ErrNotFound is returned (wrapped) when a document does not exist.
var ErrNotFound = eris.New("storage: not found")

// Document is one stored payload with its envelope.
type Document struct {
	StorageID string          `json:"storage_id"`
	ItemID    string          `json:"item_id"`
	Kind      Kind            `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (d *Document) Decode(v any) error {
	if err := json.Unmarshal(d.Payload, v); err != nil {
		return apperr.Wrapf(apperr.KindStorage, err, "storage: decode %s/%s", d.ItemID, d.Kind)
	}
	return nil
}

// Storage is the persistence port used by the pipeline. Writes for the
// same item and kind replace the previous document. Errors carry
// apperr.KindStorage.
type Storage interface {
	StoreAttributes(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error)
	StoreRawResponse(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error)
	StoreLineage(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error)

	RetrieveAttributes(ctx context.Context, itemID string) (*Document, error)
	RetrieveRawResponse(ctx context.Context, itemID string) (*Document, error)
	RetrieveLineage(ctx context.Context, itemID string) (*Document, error)

	ListItems(ctx context.Context) ([]string, error)
	DeleteItem(ctx context.Context, itemID string) error

	Migrate(ctx context.Context) error
	Close() error
}

// Backend is the raw document store behind a Storage.
type Backend interface {
	Put(ctx context.Context, doc Document) error
	Get(ctx context.Context, itemID string, kind Kind) (*Document, error)
	ListItems(ctx context.Context) ([]string, error)
	DeleteItem(ctx context.Context, itemID string) error
	Migrate(ctx context.Context) error
	Close() error
	Name() string
}

// Store implements Storage over a Backend, validating item ids and
// assigning storage ids.
type Store struct {
	backend Backend
	now     func() time.Time
}

// NewStore wraps b.
func NewStore(b Backend) *Store {
	return &Store{backend: b, now: func() time.Time { return time.Now().UTC() }}
}

// Backend returns the backend name.
func (s *Store) Backend() string { return s.backend.Name() }

// StoreAttributes implements Storage.
func (s *Store) StoreAttributes(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error) {
	return s.put(ctx, itemID, KindAttributes, payload, metadata)
}

// StoreRawResponse implements Storage.
func (s *Store) StoreRawResponse(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error) {
	return s.put(ctx, itemID, KindRawResponse, payload, metadata)
}

// StoreLineage implements Storage.
func (s *Store) StoreLineage(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error) {
	return s.put(ctx, itemID, KindLineage, payload, metadata)
}

// RetrieveAttributes implements Storage.
func (s *Store) RetrieveAttributes(ctx context.Context, itemID string) (*Document, error) {
	return s.get(ctx, itemID, KindAttributes)
}

// RetrieveRawResponse implements Storage.
func (s *Store) RetrieveRawResponse(ctx context.Context, itemID string) (*Document, error) {
	return s.get(ctx, itemID, KindRawResponse)
}

// RetrieveLineage implements Storage.
func (s *Store) RetrieveLineage(ctx context.Context, itemID string) (*Document, error) {
	return s.get(ctx, itemID, KindLineage)
}

// ListItems implements Storage.
func (s *Store) ListItems(ctx context.Context) ([]string, error) {
	ids, err := s.backend.ListItems(ctx)
	return ids, apperr.Ensure(err, apperr.KindStorage)
}

// DeleteItem implements Storage.
func (s *Store) DeleteItem(ctx context.Context, itemID string) error {
	if err := ValidateItemID(itemID); err != nil {
		return err
	}
	return apperr.Ensure(s.backend.DeleteItem(ctx, itemID), apperr.KindStorage)
}

// Migrate implements Storage.
func (s *Store) Migrate(ctx context.Context) error {
	return apperr.Ensure(s.backend.Migrate(ctx), apperr.KindStorage)
}

// Close implements Storage.
func (s *Store) Close() error {
	return apperr.Ensure(s.backend.Close(), apperr.KindStorage)
}

func (s *Store) put(ctx context.Context, itemID string, kind Kind, payload any, metadata map[string]any) (string, error) {
	if err := ValidateItemID(itemID); err != nil {
		return "", err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", apperr.Wrapf(apperr.KindStorage, err, "storage: marshal %s/%s", itemID, kind)
	}
	doc := Document{
		StorageID: itemID + "/" + string(kind) + "/" + uuid.New().String(),
		ItemID:    itemID,
		Kind:      kind,
		CreatedAt: s.now(),
		Metadata:  metadata,
		Payload:   data,
	}
	if err := s.backend.Put(ctx, doc); err != nil {
		return "", apperr.Ensure(err, apperr.KindStorage)
	}
	return doc.StorageID, nil
}

func (s *Store) get(ctx context.Context, itemID string, kind Kind) (*Document, error) {
	if err := ValidateItemID(itemID); err != nil {
		return nil, err
	}
	doc, err := s.backend.Get(ctx, itemID, kind)
	return doc, apperr.Ensure(err, apperr.KindStorage)
}

const invalidIDChars = `/\:*?"<>|`

// ValidateItemID rejects ids that are empty or unsafe as path segments.
func ValidateItemID(itemID string) error {
	if strings.TrimSpace(itemID) == "" {
		return apperr.New(apperr.KindStorage, "storage: item id is empty")
	}
	if strings.ContainsAny(itemID, invalidIDChars) || itemID == "." || itemID == ".." {
		return apperr.Errorf(apperr.KindStorage, "storage: invalid item id %q", itemID)
	}
	return nil
}

func notFound(itemID string, kind Kind) error {
	return apperr.Wrapf(apperr.KindStorage, ErrNotFound, "storage: %s for %s", kind, itemID)
}
