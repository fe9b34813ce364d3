package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/config"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/resilience"
)

const (
	mistralChatEndpoint = "https://api.mistral.ai/v1/chat/completions"
	defaultMistralModel = "pixtral-12b-latest"

	// MistralMaxImages is the most images one chat request may carry.
	MistralMaxImages = 8
)

// MistralModels lists the vision-capable Mistral models.
var MistralModels = []string{
	"pixtral-12b-latest",
	"pixtral-large-latest",
	"mistral-medium-latest",
	"mistral-small-latest",
}

// Mistral calls Pixtral and other Mistral vision models over the chat
// completions API.
type Mistral struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string
	client    *http.Client
}

// NewMistral creates a Mistral provider. A missing API key or an
// unsupported model is a config error.
func NewMistral(cfg config.ProviderConfig) (*Mistral, error) {
	if cfg.MistralKey == "" {
		return nil, apperr.New(apperr.KindConfig, "provider: mistral requires mistral_api_key")
	}
	m := cfg.Model
	if m == "" || strings.HasPrefix(m, "claude-") {
		m = defaultMistralModel
	}
	if !slices.Contains(MistralModels, m) {
		return nil, apperr.Errorf(apperr.KindConfig, "provider: unsupported mistral model %q (supported: %s)", m, strings.Join(MistralModels, ", "))
	}
	endpoint := mistralChatEndpoint
	if cfg.MistralBaseURL != "" {
		endpoint = strings.TrimRight(cfg.MistralBaseURL, "/") + "/v1/chat/completions"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Mistral{
		apiKey:    cfg.MistralKey,
		model:     m,
		maxTokens: maxTokens,
		endpoint:  endpoint,
		client:    &http.Client{Timeout: timeoutOf(cfg)},
	}, nil
}

type mistralRequest struct {
	Model          string             `json:"model"`
	Messages       []mistralMessage   `json:"messages"`
	MaxTokens      int                `json:"max_tokens"`
	Temperature    float64            `json:"temperature"`
	ResponseFormat *mistralRespFormat `json:"response_format,omitempty"`
}

type mistralRespFormat struct {
	Type string `json:"type"`
}

type mistralMessage struct {
	Role    string        `json:"role"`
	Content []mistralPart `json:"content"`
}

type mistralPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

type mistralResponse struct {
	Model   string          `json:"model"`
	Choices []mistralChoice `json:"choices"`
	Usage   mistralUsage    `json:"usage"`
}

type mistralChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type mistralUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Name implements Provider.
func (m *Mistral) Name() string { return "mistral" }

// Predict implements Provider.
func (m *Mistral) Predict(ctx context.Context, req model.ModelRequest) (*model.ModelReply, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = m.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = m.maxTokens
	}

	images := req.Images
	if len(images) > MistralMaxImages {
		zap.L().Warn("provider: mistral image limit exceeded, truncating",
			zap.Int("images", len(images)),
			zap.Int("max", MistralMaxImages),
		)
		images = images[:MistralMaxImages]
	}

	parts := make([]mistralPart, 0, len(images)+1)
	parts = append(parts, mistralPart{Type: "text", Text: req.Prompt})
	for _, img := range images {
		mediaType := img.MediaType
		if mediaType == "" {
			mediaType = "image/jpeg"
		}
		parts = append(parts, mistralPart{
			Type:     "image_url",
			ImageURL: "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(img.Data),
		})
	}

	bodyBytes, err := json.Marshal(mistralRequest{
		Model:          modelID,
		Messages:       []mistralMessage{{Role: "user", Content: parts}},
		MaxTokens:      maxTokens,
		Temperature:    req.Temperature,
		ResponseFormat: &mistralRespFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "provider: marshal mistral request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "provider: create mistral request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+m.apiKey)

	start := time.Now()
	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, apperr.Wrap(resilience.KindForTransport(err), err, "provider: mistral API call")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	latency := time.Since(start)
	if err != nil {
		return nil, apperr.Wrap(resilience.KindForTransport(err), err, "provider: read mistral response")
	}

	if resp.StatusCode != http.StatusOK {
		kind := resilience.KindForStatus(resp.StatusCode)
		if kind == apperr.KindAPI {
			kind = resilience.KindForMessage(string(respBody), kind)
		}
		zap.L().Warn("provider: mistral call failed",
			zap.String("model", modelID),
			zap.Int("status", resp.StatusCode),
			zap.String("error_kind", string(kind)),
		)
		return nil, apperr.Errorf(kind, "provider: mistral API returned %d: %s", resp.StatusCode, string(respBody))
	}

	var chatResp mistralResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, apperr.Wrap(apperr.KindAPI, err, "provider: unmarshal mistral response")
	}
	if len(chatResp.Choices) == 0 {
		return nil, apperr.New(apperr.KindAPI, "provider: mistral response has no choices")
	}

	usage := model.Usage{
		InputTokens:  chatResp.Usage.PromptTokens,
		OutputTokens: chatResp.Usage.CompletionTokens,
		TotalTokens:  chatResp.Usage.TotalTokens,
	}
	return &model.ModelReply{
		Content:   chatResp.Choices[0].Message.Content,
		Usage:     usage,
		Latency:   latency,
		Provider:  m.Name(),
		Model:     modelID,
		Timestamp: time.Now().UTC(),
	}, nil
}
