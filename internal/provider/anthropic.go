package provider

import (
	"context"
	"encoding/base64"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/config"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/resilience"
	"github.com/sells-group/vis2attr/pkg/anthropic"
)

const defaultAnthropicModel = "claude-sonnet-4-5-20250929"

const anthropicSystemPrompt = "You are a product attribute extractor. Respond with a single JSON object and nothing else."

// Anthropic calls Claude vision models through the Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an Anthropic provider. A missing API key is a
// config error.
func NewAnthropic(cfg config.ProviderConfig) (*Anthropic, error) {
	if cfg.AnthropicKey == "" {
		return nil, apperr.New(apperr.KindConfig, "provider: anthropic requires anthropic_api_key")
	}
	client := anthropic.NewClient(cfg.AnthropicKey, anthropic.ClientOptions{
		BaseURL: cfg.AnthropicBaseURL,
		Timeout: timeoutOf(cfg),
	})
	return newAnthropicWithClient(client, cfg), nil
}

func newAnthropicWithClient(client anthropic.Client, cfg config.ProviderConfig) *Anthropic {
	m := cfg.Model
	if m == "" {
		m = defaultAnthropicModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Anthropic{client: client, model: m, maxTokens: maxTokens}
}

// Name implements Provider.
func (a *Anthropic) Name() string { return "anthropic" }

// Predict implements Provider.
func (a *Anthropic) Predict(ctx context.Context, req model.ModelRequest) (*model.ModelReply, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = a.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = a.maxTokens
	}

	images := make([]anthropic.ImageBlock, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, anthropic.ImageBlock{
			MediaType: img.MediaType,
			Data:      base64.StdEncoding.EncodeToString(img.Data),
		})
	}
	temp := req.Temperature

	start := time.Now()
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       modelID,
		MaxTokens:   maxTokens,
		System:      []anthropic.SystemBlock{{Text: anthropicSystemPrompt}},
		Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt, Images: images}},
		Temperature: &temp,
	})
	latency := time.Since(start)
	if err != nil {
		kind := classifyAnthropic(err)
		zap.L().Warn("provider: anthropic call failed",
			zap.String("model", modelID),
			zap.String("error_kind", string(kind)),
			zap.Error(err),
		)
		return nil, apperr.Wrap(kind, err, "provider: anthropic predict")
	}

	return &model.ModelReply{
		Content: resp.Text(),
		Usage: model.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Latency:   latency,
		Provider:  a.Name(),
		Model:     modelID,
		Timestamp: time.Now().UTC(),
	}, nil
}

func classifyAnthropic(err error) apperr.Kind {
	if status := anthropic.StatusCode(err); status != 0 {
		kind := resilience.KindForStatus(status)
		if kind == apperr.KindAPI {
			kind = resilience.KindForMessage(err.Error(), kind)
		}
		return kind
	}
	return resilience.KindForTransport(err)
}
