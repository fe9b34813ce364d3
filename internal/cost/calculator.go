// Package cost estimates the USD cost of vision model calls.
package cost

import "github.com/sells-group/vis2attr/internal/model"

// Rates holds per-provider, per-model token pricing.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Mistral   map[string]ModelRate `yaml:"mistral" mapstructure:"mistral"`
	// Fallback applies to models missing from the tables above.
	Fallback ModelRate `yaml:"fallback" mapstructure:"fallback"`
}

// ModelRate holds token pricing in USD per million tokens.
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Calculator computes costs for model usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Estimate returns the cost of a call to model on provider.
func (c *Calculator) Estimate(provider, modelID string, input, output int64) float64 {
	rate := c.rate(provider, modelID)
	return (float64(input)/1e6)*rate.Input + (float64(output)/1e6)*rate.Output
}

// Apply fills u.CostUSD and u.TotalTokens and returns the updated usage.
func (c *Calculator) Apply(provider, modelID string, u model.Usage) model.Usage {
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	u.CostUSD = c.Estimate(provider, modelID, u.InputTokens, u.OutputTokens)
	return u
}

func (c *Calculator) rate(provider, modelID string) ModelRate {
	var table map[string]ModelRate
	switch provider {
	case "anthropic":
		table = c.rates.Anthropic
	case "mistral":
		table = c.rates.Mistral
	}
	if r, ok := table[modelID]; ok {
		return r
	}
	return c.rates.Fallback
}

// Merge overlays configured rates on top of r.
func (r Rates) Merge(o Rates) Rates {
	out := Rates{
		Anthropic: make(map[string]ModelRate, len(r.Anthropic)+len(o.Anthropic)),
		Mistral:   make(map[string]ModelRate, len(r.Mistral)+len(o.Mistral)),
		Fallback:  r.Fallback,
	}
	for k, v := range r.Anthropic {
		out.Anthropic[k] = v
	}
	for k, v := range o.Anthropic {
		out.Anthropic[k] = v
	}
	for k, v := range r.Mistral {
		out.Mistral[k] = v
	}
	for k, v := range o.Mistral {
		out.Mistral[k] = v
	}
	if o.Fallback != (ModelRate{}) {
		out.Fallback = o.Fallback
	}
	return out
}

// DefaultRates returns the default pricing rates. Mistral publishes a
// blended per-1K price, used here for both directions.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
			"claude-opus-4-6":            {Input: 15.00, Output: 75.00},
		},
		Mistral: map[string]ModelRate{
			"pixtral-12b-latest":    {Input: 0.30, Output: 0.30},
			"pixtral-large-latest":  {Input: 0.60, Output: 0.60},
			"mistral-medium-latest": {Input: 0.40, Output: 0.40},
			"mistral-small-latest":  {Input: 0.20, Output: 0.20},
		},
		Fallback: ModelRate{Input: 0.30, Output: 0.30},
	}
}
