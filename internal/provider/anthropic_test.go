package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/config"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/pkg/anthropic"
)

// mockAnthropicClient implements anthropic.Client for testing.
type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func TestAnthropic_Predict(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return req.Model == "claude-haiku-4-5-20251001" &&
			req.MaxTokens == 512 &&
			len(req.Messages) == 1 &&
			len(req.Messages[0].Images) == 2 &&
			req.Messages[0].Images[0].MediaType == "image/jpeg" &&
			req.Messages[0].Content == "describe"
	})).Return(&anthropic.MessageResponse{
		Model:   "claude-haiku-4-5-20251001",
		Content: []anthropic.ContentBlock{{Type: "text", Text: `{"brand": null}`}},
		Usage:   anthropic.TokenUsage{InputTokens: 1200, OutputTokens: 40},
	}, nil)

	p := newAnthropicWithClient(client, config.ProviderConfig{Model: "claude-haiku-4-5-20251001", MaxTokens: 512})
	reply, err := p.Predict(context.Background(), model.ModelRequest{Prompt: "describe", Images: testImages(2)})
	require.NoError(t, err)
	assert.Equal(t, `{"brand": null}`, reply.Content)
	assert.Equal(t, "anthropic", reply.Provider)
	assert.Equal(t, int64(1240), reply.Usage.TotalTokens)
	client.AssertExpectations(t)
}

func TestAnthropic_Defaults(t *testing.T) {
	p := newAnthropicWithClient(&mockAnthropicClient{}, config.ProviderConfig{})
	assert.Equal(t, defaultAnthropicModel, p.model)
	assert.Equal(t, int64(1024), p.maxTokens)
}

func TestAnthropic_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		errType string
		message string
		want    apperr.Kind
	}{
		{"rate limited", http.StatusTooManyRequests, "rate_limit_error", "Number of requests exceeded", apperr.KindRateLimit},
		{"overloaded", 529, "overloaded_error", "Overloaded", apperr.KindRateLimit},
		{"bad key", http.StatusUnauthorized, "authentication_error", "invalid x-api-key", apperr.KindConfig},
		{"bad request", http.StatusBadRequest, "invalid_request_error", "image too large", apperr.KindAPI},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
					"type":  "error",
					"error": map[string]any{"type": tt.errType, "message": tt.message},
				})
			}))
			defer srv.Close()

			p, err := NewAnthropic(config.ProviderConfig{AnthropicKey: "test-key", AnthropicBaseURL: srv.URL})
			require.NoError(t, err)

			_, err = p.Predict(context.Background(), model.ModelRequest{Prompt: "p"})
			require.Error(t, err)
			assert.Equal(t, tt.want, apperr.KindOf(err))
		})
	}
}

func TestAnthropic_CancelledContext(t *testing.T) {
	client := &mockAnthropicClient{}
	client.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, context.Canceled)

	p := newAnthropicWithClient(client, config.ProviderConfig{})
	_, err := p.Predict(context.Background(), model.ModelRequest{})
	assert.True(t, apperr.Is(err, apperr.KindCanceled))
}
