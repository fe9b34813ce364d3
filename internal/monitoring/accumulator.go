// Package monitoring accumulates batch metrics and evaluates them against
// alert thresholds.
package monitoring

import (
	"maps"
	"sync"
	"time"

	"github.com/sells-group/vis2attr/internal/model"
)

// Snapshot is a point-in-time view of a batch.
type Snapshot struct {
	Total          int            `json:"total"`
	Succeeded      int            `json:"succeeded"`
	Failed         int            `json:"failed"`
	Accepted       int            `json:"accepted"`
	FailRate       float64        `json:"fail_rate"`
	AcceptRate     float64        `json:"accept_rate"`
	Attempts       int            `json:"attempts"`
	InputTokens    int64          `json:"input_tokens"`
	OutputTokens   int64          `json:"output_tokens"`
	CostUSD        float64        `json:"cost_usd"`
	MeanLatency    time.Duration  `json:"mean_latency_ns"`
	FailuresByKind map[string]int `json:"failures_by_kind"`
	StartedAt      time.Time      `json:"started_at"`
	CollectedAt    time.Time      `json:"collected_at"`
}

// Accumulator collects item results from concurrent workers.
type Accumulator struct {
	mu        sync.Mutex
	startedAt time.Time
	total     int
	succeeded int
	failed    int
	accepted  int
	attempts  int
	usage     model.Usage
	latency   time.Duration
	byKind    map[string]int
	now       func() time.Time
}

// NewAccumulator creates an empty Accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		startedAt: time.Now().UTC(),
		byKind:    make(map[string]int),
		now:       time.Now,
	}
}

// Record adds one item result. Safe for concurrent use.
func (a *Accumulator) Record(res model.ItemResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.attempts += res.Attempts
	a.usage = a.usage.Add(res.Usage)
	a.latency += res.ProcessingTime
	if !res.Success {
		a.failed++
		a.byKind[string(res.ErrorKind)]++
		return
	}
	a.succeeded++
	if res.Accepted() {
		a.accepted++
	}
}

// Snapshot returns a copy of the current totals.
func (a *Accumulator) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Snapshot{
		Total:          a.total,
		Succeeded:      a.succeeded,
		Failed:         a.failed,
		Accepted:       a.accepted,
		Attempts:       a.attempts,
		InputTokens:    a.usage.InputTokens,
		OutputTokens:   a.usage.OutputTokens,
		CostUSD:        a.usage.CostUSD,
		FailuresByKind: maps.Clone(a.byKind),
		StartedAt:      a.startedAt,
		CollectedAt:    a.now().UTC(),
	}
	if a.total > 0 {
		s.FailRate = float64(a.failed) / float64(a.total)
		s.AcceptRate = float64(a.accepted) / float64(a.total)
		s.MeanLatency = a.latency / time.Duration(a.total)
	}
	return s
}
