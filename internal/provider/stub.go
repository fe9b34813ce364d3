package provider

import (
	"context"
	"time"

	"github.com/sells-group/vis2attr/internal/config"
	"github.com/sells-group/vis2attr/internal/model"
)

// StubResponse is the canned reply used when no stub_response is set. It
// covers the built-in product schema.
const StubResponse = `{
  "brand": {"value": "Stub Brand", "confidence": 0.9},
  "model_or_type": {"value": "stub model", "confidence": 0.8},
  "primary_colors": [{"name": "black", "confidence": 0.85}],
  "materials": [{"name": "plastic", "confidence": 0.75}],
  "condition": {"value": "good", "confidence": 0.8},
  "notes": "stub response"
}`

// Stub returns a fixed reply without network access. It backs offline
// runs and tests.
type Stub struct {
	response string
	model    string
}

// NewStub creates a Stub. cfg.StubResponse overrides the canned reply.
func NewStub(cfg config.ProviderConfig) *Stub {
	resp := cfg.StubResponse
	if resp == "" {
		resp = StubResponse
	}
	m := cfg.Model
	if m == "" {
		m = "stub-vlm"
	}
	return &Stub{response: resp, model: m}
}

// Name implements Provider.
func (s *Stub) Name() string { return "stub" }

// Predict implements Provider.
func (s *Stub) Predict(ctx context.Context, req model.ModelRequest) (*model.ModelReply, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m := req.Model
	if m == "" {
		m = s.model
	}
	return &model.ModelReply{
		Content: s.response,
		Usage: model.Usage{
			InputTokens:  150,
			OutputTokens: 50,
			TotalTokens:  200,
		},
		Provider:  s.Name(),
		Model:     m,
		Timestamp: time.Now().UTC(),
	}, nil
}
