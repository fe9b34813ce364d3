package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/config"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/resilience"
)

// mockProvider implements Provider for testing.
type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Predict(ctx context.Context, req model.ModelRequest) (*model.ModelReply, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ModelReply), args.Error(1)
}

func TestRegistry_Names(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "mistral", "stub"}, NewRegistry().Names())
}

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := NewRegistry().Build(config.ProviderConfig{Name: "openai"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConfig))
	assert.Contains(t, err.Error(), `unknown provider "openai"`)
}

func TestRegistry_MissingKeys(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"anthropic", "mistral"} {
		_, err := reg.Build(config.ProviderConfig{Name: name})
		require.Error(t, err, name)
		assert.True(t, apperr.Is(err, apperr.KindConfig), name)
	}
}

func TestRegistry_Register(t *testing.T) {
	reg := NewRegistry()
	p := &mockProvider{}
	reg.Register("custom", func(config.ProviderConfig) (Provider, error) { return p, nil })

	got, err := reg.Build(config.ProviderConfig{Name: "custom"})
	require.NoError(t, err)
	assert.Same(t, p, got)
}

func TestNew_WrapsProvider(t *testing.T) {
	p, err := New(config.ProviderConfig{Name: "stub", RequestsPerSecond: 5}, config.CircuitConfig{})
	require.NoError(t, err)

	g, ok := p.(*Guarded)
	require.True(t, ok)
	assert.Equal(t, "stub", g.Name())
	_, ok = g.next.(*Limited)
	assert.True(t, ok)

	reply, err := p.Predict(context.Background(), model.ModelRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "stub", reply.Provider)
}

func TestNew_NoRateLimit(t *testing.T) {
	p, err := New(config.ProviderConfig{Name: "stub"}, config.CircuitConfig{})
	require.NoError(t, err)
	_, ok := p.(*Guarded).next.(*Stub)
	assert.True(t, ok)
}

func TestStub_Predict(t *testing.T) {
	s := NewStub(config.ProviderConfig{})
	reply, err := s.Predict(context.Background(), model.ModelRequest{})
	require.NoError(t, err)
	assert.Equal(t, StubResponse, reply.Content)
	assert.Equal(t, "stub-vlm", reply.Model)
	assert.Equal(t, int64(200), reply.Usage.TotalTokens)

	s = NewStub(config.ProviderConfig{StubResponse: `{"brand": null}`, Model: "m"})
	reply, err = s.Predict(context.Background(), model.ModelRequest{})
	require.NoError(t, err)
	assert.Equal(t, `{"brand": null}`, reply.Content)
	assert.Equal(t, "m", reply.Model)
}

func TestStub_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewStub(config.ProviderConfig{}).Predict(ctx, model.ModelRequest{})
	assert.True(t, apperr.Is(err, apperr.KindCanceled))
}

func TestLimited_AdaptsRate(t *testing.T) {
	next := &mockProvider{}
	next.On("Predict", mock.Anything, mock.Anything).Return(&model.ModelReply{Content: "{}"}, nil).Once()
	next.On("Predict", mock.Anything, mock.Anything).Return(nil, apperr.New(apperr.KindRateLimit, "429")).Times(3)

	l := NewLimited(next, 100)
	_, err := l.Predict(context.Background(), model.ModelRequest{})
	require.NoError(t, err)
	assert.InDelta(t, 120, float64(l.Limit()), 0.001)

	for i := 0; i < 3; i++ {
		_, err = l.Predict(context.Background(), model.ModelRequest{})
		require.Error(t, err)
	}
	// 120 -> 60 -> 30 -> 25 (floor at initial/4)
	assert.InDelta(t, 25, float64(l.Limit()), 0.001)
	next.AssertExpectations(t)
}

func TestLimited_CancelledWait(t *testing.T) {
	next := &mockProvider{}
	l := NewLimited(next, 0.001)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Predict(ctx, model.ModelRequest{})
	require.Error(t, err)
	next.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything)
}

func TestGuarded_OpensAfterFailures(t *testing.T) {
	next := &mockProvider{}
	next.On("Predict", mock.Anything, mock.Anything).Return(nil, apperr.New(apperr.KindAPI, "500"))

	g := NewGuarded(next, resilience.CircuitBreakerConfig{FailureThreshold: 2})
	for i := 0; i < 2; i++ {
		_, err := g.Predict(context.Background(), model.ModelRequest{})
		require.Error(t, err)
	}
	assert.Equal(t, resilience.CircuitOpen, g.State())

	_, err := g.Predict(context.Background(), model.ModelRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	next.AssertNumberOfCalls(t, "Predict", 2)
}
