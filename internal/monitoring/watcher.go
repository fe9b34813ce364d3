package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Watch logs progress from acc every interval and raises alerts the first
// time each type fires. It blocks until ctx is cancelled.
func Watch(ctx context.Context, acc *Accumulator, interval time.Duration, th AlertThresholds) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := zap.L().With(zap.String("component", "monitoring.watch"))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	fired := make(map[AlertType]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := acc.Snapshot()
			log.Info("batch progress",
				zap.Int("finished", snap.Total),
				zap.Int("failed", snap.Failed),
				zap.Int("accepted", snap.Accepted),
				zap.Float64("cost_usd", snap.CostUSD),
			)
			var fresh []Alert
			for _, a := range Evaluate(snap, th) {
				if !fired[a.Type] {
					fired[a.Type] = true
					fresh = append(fresh, a)
				}
			}
			LogAlerts(fresh)
		}
	}
}
