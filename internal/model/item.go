// Package model defines the data types that flow through the attribute
// extraction pipeline.
package model

import "time"

// Image is a single prepared image payload for an item.
type Image struct {
	Data      []byte `json:"-"`
	MediaType string `json:"media_type"`
	Path      string `json:"path,omitempty"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
}

// Item is one product to analyze. Items are read-only once ingested.
type Item struct {
	ItemID string         `json:"item_id"`
	Source string         `json:"source"`
	Images []Image        `json:"images"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// ModelRequest is a provider-neutral request for a vision model call.
type ModelRequest struct {
	Model       string  `json:"model"`
	Prompt      string  `json:"prompt"`
	Images      []Image `json:"images"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
}

// Usage holds token consumption and estimated cost for one model call.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add returns the sum of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		TotalTokens:  u.TotalTokens + o.TotalTokens,
		CostUSD:      u.CostUSD + o.CostUSD,
	}
}

// ModelReply is the uninterpreted reply from a provider. Content is
// untrusted text until normalized.
type ModelReply struct {
	Content   string        `json:"content"`
	Usage     Usage         `json:"usage"`
	Latency   time.Duration `json:"latency_ns"`
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Timestamp time.Time     `json:"timestamp"`
	// Attempts is the number of provider calls it took to obtain the reply.
	Attempts int `json:"attempts"`
}
