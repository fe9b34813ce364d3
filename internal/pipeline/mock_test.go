package pipeline

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/storage"
)

// --- Provider Mock ---

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string {
	return "fake"
}

func (m *mockProvider) Predict(ctx context.Context, req model.ModelRequest) (*model.ModelReply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// Copy so concurrent callers never share a reply.
	reply := *args.Get(0).(*model.ModelReply)
	return &reply, args.Error(1)
}

// --- Ingestor Mock ---

type mockIngestor struct {
	mock.Mock
}

func (m *mockIngestor) Load(ctx context.Context, source string) (model.Item, error) {
	args := m.Called(ctx, source)
	return args.Get(0).(model.Item), args.Error(1)
}

// --- Storage Mock ---

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) StoreAttributes(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error) {
	args := m.Called(ctx, itemID, payload, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) StoreRawResponse(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error) {
	args := m.Called(ctx, itemID, payload, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) StoreLineage(ctx context.Context, itemID string, payload any, metadata map[string]any) (string, error) {
	args := m.Called(ctx, itemID, payload, metadata)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) RetrieveAttributes(ctx context.Context, itemID string) (*storage.Document, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Document), args.Error(1)
}

func (m *mockStorage) RetrieveRawResponse(ctx context.Context, itemID string) (*storage.Document, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Document), args.Error(1)
}

func (m *mockStorage) RetrieveLineage(ctx context.Context, itemID string) (*storage.Document, error) {
	args := m.Called(ctx, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Document), args.Error(1)
}

func (m *mockStorage) ListItems(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStorage) DeleteItem(ctx context.Context, itemID string) error {
	return m.Called(ctx, itemID).Error(0)
}

func (m *mockStorage) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStorage) Close() error {
	return m.Called().Error(0)
}
