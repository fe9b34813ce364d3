package pipeline

import (
	"context"

	"github.com/sells-group/vis2attr/internal/config"
	"github.com/sells-group/vis2attr/internal/cost"
	"github.com/sells-group/vis2attr/internal/decision"
	"github.com/sells-group/vis2attr/internal/ingest"
	"github.com/sells-group/vis2attr/internal/monitoring"
	"github.com/sells-group/vis2attr/internal/prompt"
	"github.com/sells-group/vis2attr/internal/provider"
	"github.com/sells-group/vis2attr/internal/resilience"
	"github.com/sells-group/vis2attr/internal/schema"
	"github.com/sells-group/vis2attr/internal/storage"
)

// FromConfig wires a Pipeline from configuration: schema, ingestor, prompt
// builder, guarded provider and storage backend. Close releases storage.
func FromConfig(ctx context.Context, cfg *config.Config, metrics *monitoring.Accumulator) (*Pipeline, error) {
	s := schema.Default()
	if cfg.Schema.Path != "" {
		var err error
		if s, err = schema.Load(cfg.Schema.Path); err != nil {
			return nil, err
		}
	}

	thresholds, err := decision.ParseThresholds(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	builder, err := prompt.NewBuilder(prompt.Options{
		MaxTokens:    cfg.Provider.MaxTokens,
		Temperature:  cfg.Provider.Temperature,
		TemplatePath: cfg.Prompt.TemplatePath,
	})
	if err != nil {
		return nil, err
	}

	prov, err := provider.New(cfg.Provider, cfg.Circuit)
	if err != nil {
		return nil, err
	}

	st, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	p, err := New(Deps{
		Schema: s,
		Ingestor: ingest.NewFileSystem(ingest.Options{
			MaxImagesPerItem: cfg.IO.MaxImagesPerItem,
			MaxResolution:    cfg.IO.MaxResolution,
			SupportedFormats: cfg.IO.SupportedFormats,
			StripEXIF:        cfg.IO.StripEXIF,
		}),
		Prompts:    builder,
		Provider:   prov,
		Storage:    st,
		Thresholds: thresholds,
		Retry: resilience.FromSettings(
			cfg.Retry.MaxAttempts,
			cfg.Retry.InitialBackoffMs,
			cfg.Retry.MaxBackoffMs,
			cfg.Retry.Multiplier,
			cfg.Retry.JitterFraction,
		),
		Costs:   cost.NewCalculator(cfg.Pricing),
		Metrics: metrics,
		Model:   cfg.Provider.Model,
	})
	if err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return p, nil
}

// Close releases the storage backend.
func (p *Pipeline) Close() error {
	return p.store.Close()
}
