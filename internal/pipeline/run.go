package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/normalize"
	"github.com/sells-group/vis2attr/internal/resilience"
)

// run carries the state of one item between stages.
type run struct {
	p   *Pipeline
	log *zap.Logger
	res model.ItemResult

	item     model.Item
	req      model.ModelRequest
	reply    *model.ModelReply
	record   *model.AttributeRecord
	decision model.Decision
}

func (r *run) execute(ctx context.Context) {
	if !r.stage(model.StageIngesting, func() error { return r.ingest(ctx) }) {
		return
	}
	if !r.stage(model.StagePromptBuilt, r.buildPrompt) {
		return
	}
	if !r.stage(model.StageModelCalled, func() error { return r.callModel(ctx) }) {
		return
	}
	if !r.stage(model.StageNormalized, r.normalize) {
		return
	}
	if !r.stage(model.StageDecided, r.decide) {
		return
	}
	r.stage(model.StageStored, func() error { return r.store(ctx) })
}

// stage runs fn as the step leading to next and records its duration.
// On error the item moves to Failed and stage reports false.
func (r *run) stage(next model.Stage, fn func() error) bool {
	start := time.Now()
	err := fn()
	d := time.Since(start)
	r.res.Stages = append(r.res.Stages, model.StageTiming{Stage: next, Duration: d})

	if err != nil {
		kind := apperr.KindOf(err)
		r.res.Stage = model.StageFailed
		r.res.FailedStage = next
		r.res.ErrorKind = kind
		r.res.Error = err.Error()
		r.res.Record = nil
		r.res.Decision = nil
		r.log.Error("pipeline: stage failed",
			zap.String("item_id", r.res.ItemID),
			zap.String("stage", string(next)),
			zap.String("error_kind", string(kind)),
			zap.Duration("duration", d),
			zap.Error(err),
		)
		return false
	}

	r.res.Stage = next
	r.log.Debug("pipeline: stage complete",
		zap.String("item_id", r.res.ItemID),
		zap.String("stage", string(next)),
		zap.Duration("duration", d),
	)
	return true
}

func (r *run) ingest(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.KindOf(err), err, "pipeline: ingest")
	}
	item, err := r.p.ingestor.Load(ctx, r.res.Source)
	if err != nil {
		return apperr.Ensure(err, apperr.KindIngest)
	}
	r.item = item
	r.res.ItemID = item.ItemID
	return nil
}

func (r *run) buildPrompt() error {
	req, err := r.p.prompts.Build(r.item, r.p.schema)
	if err != nil {
		return apperr.Ensure(err, apperr.KindPrompt)
	}
	r.req = req
	return nil
}

// callModel retries rate limits and timeouts only.
func (r *run) callModel(ctx context.Context) error {
	reply, attempts, err := resilience.Retry(ctx, r.p.retry, func(ctx context.Context) (*model.ModelReply, error) {
		rep, err := r.p.provider.Predict(ctx, r.req)
		if err != nil {
			return nil, apperr.Ensure(err, apperr.KindAPI)
		}
		return rep, nil
	})
	r.res.Attempts = attempts
	if err != nil {
		return err
	}

	reply.Attempts = attempts
	if reply.Provider == "" {
		reply.Provider = r.p.provider.Name()
	}
	reply.Usage = r.p.costCalc.Apply(reply.Provider, reply.Model, reply.Usage)
	r.res.Usage = reply.Usage
	r.reply = reply
	return nil
}

func (r *run) normalize() error {
	rec, err := normalize.Normalize(*r.reply, r.p.schema)
	if err != nil {
		return err
	}
	rec.ItemID = r.item.ItemID
	r.record = rec
	return nil
}

func (r *run) decide() error {
	r.decision = r.p.thresholds.Decide(r.record)
	return nil
}

// store makes exactly three writes: attributes, raw reply and lineage.
func (r *run) store(ctx context.Context) error {
	id := r.item.ItemID
	refs := &model.StorageRefs{}
	var err error

	refs.Attributes, err = r.p.store.StoreAttributes(ctx, id, r.record, map[string]any{
		"accepted":         r.decision.Accepted,
		"confidence_score": r.decision.ConfidenceScore,
		"schema":           r.p.schema.Name(),
	})
	if err != nil {
		return apperr.Ensure(err, apperr.KindStorage)
	}

	refs.RawResponse, err = r.p.store.StoreRawResponse(ctx, id, r.reply, map[string]any{
		"provider": r.reply.Provider,
		"model":    r.reply.Model,
		"attempts": r.reply.Attempts,
	})
	if err != nil {
		return apperr.Ensure(err, apperr.KindStorage)
	}

	// Stage timings up to the decision; storage is still in progress.
	stages := append([]model.StageTiming(nil), r.res.Stages...)
	refs.Lineage, err = r.p.store.StoreLineage(ctx, id, model.LineageDocument{
		PipelineVersion: Version,
		ItemID:          id,
		Source:          r.item.Source,
		Provider:        r.reply.Provider,
		Model:           r.reply.Model,
		SchemaFields:    r.p.schema.Fields(),
		Thresholds:      r.p.thresholds.Map(),
		Stages:          stages,
		Record:          r.record.Lineage,
		Decision:        r.decision,
		ImageCount:      len(r.item.Images),
		CreatedAt:       r.p.now().UTC(),
	}, nil)
	if err != nil {
		return apperr.Ensure(err, apperr.KindStorage)
	}

	r.res.Success = true
	r.res.Record = r.record
	r.res.Decision = &r.decision
	r.res.StorageIDs = refs
	return nil
}
