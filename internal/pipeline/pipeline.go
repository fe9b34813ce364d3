// Package pipeline runs items through ingestion, prompting, the model call,
// normalization, the decision engine and storage.
package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/cost"
	"github.com/sells-group/vis2attr/internal/decision"
	"github.com/sells-group/vis2attr/internal/ingest"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/monitoring"
	"github.com/sells-group/vis2attr/internal/prompt"
	"github.com/sells-group/vis2attr/internal/provider"
	"github.com/sells-group/vis2attr/internal/resilience"
	"github.com/sells-group/vis2attr/internal/schema"
	"github.com/sells-group/vis2attr/internal/storage"
)

// Version is recorded in every lineage document.
const Version = "1.0.0"

// Deps holds the collaborators of a Pipeline.
type Deps struct {
	Schema     *schema.Schema
	Ingestor   ingest.Ingestor
	Prompts    *prompt.Builder
	Provider   provider.Provider
	Storage    storage.Storage
	Thresholds decision.Thresholds
	Retry      resilience.RetryConfig
	Costs      *cost.Calculator
	// Metrics, when set, receives every item result.
	Metrics *monitoring.Accumulator
	// Model is reported by Status.
	Model string
}

// Pipeline processes one item at a time. It is safe for concurrent use;
// the schema and thresholds are read-only.
type Pipeline struct {
	schema     *schema.Schema
	ingestor   ingest.Ingestor
	prompts    *prompt.Builder
	provider   provider.Provider
	store      storage.Storage
	thresholds decision.Thresholds
	retry      resilience.RetryConfig
	costCalc   *cost.Calculator
	metrics    *monitoring.Accumulator
	model      string
	now        func() time.Time
}

// New creates a Pipeline and validates its dependencies.
func New(d Deps) (*Pipeline, error) {
	costs := d.Costs
	if costs == nil {
		costs = cost.NewCalculator(cost.DefaultRates())
	}
	retry := d.Retry
	if retry.ShouldRetry == nil {
		retry.ShouldRetry = apperr.IsRetryable
	}
	if retry.OnRetry == nil && d.Provider != nil {
		retry.OnRetry = resilience.RetryLogger(d.Provider.Name(), "predict")
	}
	p := &Pipeline{
		schema:     d.Schema,
		ingestor:   d.Ingestor,
		prompts:    d.Prompts,
		provider:   d.Provider,
		store:      d.Storage,
		thresholds: d.Thresholds,
		retry:      retry,
		costCalc:   costs,
		metrics:    d.Metrics,
		model:      d.Model,
		now:        time.Now,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate reports configuration problems that make every item fail:
// an empty schema, a missing collaborator or out-of-range thresholds.
func (p *Pipeline) Validate() error {
	if p.schema == nil || p.schema.Len() == 0 {
		return apperr.New(apperr.KindSchema, "pipeline: schema has no fields")
	}
	if p.provider == nil {
		return apperr.New(apperr.KindConfig, "pipeline: no provider configured")
	}
	if p.ingestor == nil {
		return apperr.New(apperr.KindConfig, "pipeline: no ingestor configured")
	}
	if p.prompts == nil {
		return apperr.New(apperr.KindConfig, "pipeline: no prompt builder configured")
	}
	if p.store == nil {
		return apperr.New(apperr.KindConfig, "pipeline: no storage configured")
	}
	if _, err := decision.ParseThresholds(p.thresholds.Map()); err != nil {
		return err
	}
	return nil
}

// Schema returns the schema items are shaped to.
func (p *Pipeline) Schema() *schema.Schema { return p.schema }

// Storage returns the store results are written to.
func (p *Pipeline) Storage() storage.Storage { return p.store }

// Metrics returns the accumulator, or nil.
func (p *Pipeline) Metrics() *monitoring.Accumulator { return p.metrics }

// Status describes the running configuration.
type Status struct {
	PipelineVersion string             `json:"pipeline_version"`
	Provider        string             `json:"provider"`
	Model           string             `json:"model"`
	StorageBackend  string             `json:"storage_backend"`
	SchemaName      string             `json:"schema_name"`
	SchemaFields    int                `json:"schema_fields"`
	Thresholds      map[string]float64 `json:"thresholds"`
	Circuit         string             `json:"circuit,omitempty"`
}

// Status returns the pipeline version and its configured collaborators.
func (p *Pipeline) Status() Status {
	st := Status{
		PipelineVersion: Version,
		Provider:        p.provider.Name(),
		Model:           p.model,
		StorageBackend:  "unknown",
		SchemaName:      p.schema.Name(),
		SchemaFields:    p.schema.Len(),
		Thresholds:      p.thresholds.Map(),
	}
	if b, ok := p.store.(backendNamer); ok {
		st.StorageBackend = b.Backend()
	}
	if g, ok := p.provider.(circuitStater); ok {
		st.Circuit = g.State().String()
	}
	return st
}

type backendNamer interface {
	Backend() string
}

type circuitStater interface {
	State() resilience.CircuitState
}

// Process runs one source through every stage. It never returns an error:
// failures are reported in the result with the stage they occurred in.
func (p *Pipeline) Process(ctx context.Context, source string) model.ItemResult {
	r := &run{
		p:   p,
		log: zap.L().With(zap.String("source", source)),
		res: model.ItemResult{
			ItemID:    source,
			Source:    source,
			Stage:     model.StagePending,
			StartedAt: p.now().UTC(),
		},
	}
	started := time.Now()
	r.execute(ctx)
	r.res.ProcessingTime = time.Since(started)

	if p.metrics != nil {
		p.metrics.Record(r.res)
	}
	if r.res.Success {
		r.log.Info("pipeline: item complete",
			zap.String("item_id", r.res.ItemID),
			zap.Bool("accepted", r.res.Accepted()),
			zap.Float64("confidence_score", r.res.Decision.ConfidenceScore),
			zap.Int("attempts", r.res.Attempts),
			zap.Duration("duration", r.res.ProcessingTime),
		)
	}
	return r.res
}
