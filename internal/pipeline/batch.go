package pipeline

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/monitoring"
)

// DefaultConcurrency bounds a Batch built with a non-positive concurrency.
const DefaultConcurrency = 4

// Batch runs many sources through a Pipeline with bounded concurrency.
type Batch struct {
	p           *Pipeline
	concurrency int
	alerts      monitoring.AlertThresholds
}

// NewBatch creates a Batch.
func NewBatch(p *Pipeline, concurrency int) *Batch {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Batch{p: p, concurrency: concurrency, alerts: monitoring.DefaultAlertThresholds()}
}

// Run processes sources and returns one result per source in input order.
// A failing item never aborts the batch. Configuration problems that would
// fail every item are returned before any item starts.
//
// Cancelling ctx stops dispatch: items already started finish on a
// detached context and the rest fail with kind canceled.
func (b *Batch) Run(ctx context.Context, sources []string) ([]model.ItemResult, error) {
	if b.p == nil {
		return nil, apperr.New(apperr.KindConfig, "batch: nil pipeline")
	}
	if err := b.p.Validate(); err != nil {
		return nil, err
	}

	zap.L().Info("batch: starting",
		zap.Int("items", len(sources)),
		zap.Int("concurrency", b.concurrency),
	)

	results := make([]model.ItemResult, len(sources))
	dispatched := make([]bool, len(sources))
	detached := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(b.concurrency)
	slots := make(chan struct{}, b.concurrency)

dispatch:
	for i, src := range sources {
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		if ctx.Err() != nil {
			<-slots
			break
		}
		dispatched[i] = true
		g.Go(func() error {
			defer func() { <-slots }()
			results[i] = b.p.Process(detached, src)
			return nil
		})
	}
	_ = g.Wait()

	canceled := 0
	for i, src := range sources {
		if dispatched[i] {
			continue
		}
		canceled++
		results[i] = model.ItemResult{
			ItemID:      src,
			Source:      src,
			Stage:       model.StageFailed,
			FailedStage: model.StagePending,
			ErrorKind:   apperr.KindCanceled,
			Error:       "batch: canceled before dispatch",
		}
		if b.p.metrics != nil {
			b.p.metrics.Record(results[i])
		}
	}

	succeeded, accepted := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
		if r.Accepted() {
			accepted++
		}
	}
	zap.L().Info("batch: complete",
		zap.Int("items", len(results)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(results)-succeeded),
		zap.Int("accepted", accepted),
		zap.Int("canceled", canceled),
	)
	if b.p.metrics != nil {
		monitoring.LogAlerts(monitoring.Evaluate(b.p.metrics.Snapshot(), b.alerts))
	}
	return results, nil
}
