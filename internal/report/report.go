// Package report summarizes a predictions file: acceptance, per-field
// coverage and confidence, and failures by error kind.
package report

import (
	"fmt"
	"maps"
	"slices"

	"github.com/sells-group/vis2attr/internal/decision"
	"github.com/sells-group/vis2attr/internal/export"
	"github.com/sells-group/vis2attr/internal/model"
)

// FieldStats aggregates one schema field over the successful items.
type FieldStats struct {
	Field          string  `json:"field" yaml:"field"`
	Present        int     `json:"present" yaml:"present"`
	Coverage       float64 `json:"coverage" yaml:"coverage"`
	MeanConfidence float64 `json:"mean_confidence" yaml:"mean_confidence"`
	Accepted       int     `json:"accepted" yaml:"accepted"`
	LowConfidence  int     `json:"low_confidence" yaml:"low_confidence"`
	Missing        int     `json:"missing" yaml:"missing"`
}

// Summary is the aggregate view of a predictions file.
type Summary struct {
	Items          int            `json:"items" yaml:"items"`
	Succeeded      int            `json:"succeeded" yaml:"succeeded"`
	Failed         int            `json:"failed" yaml:"failed"`
	Accepted       int            `json:"accepted" yaml:"accepted"`
	AcceptRate     float64        `json:"accept_rate" yaml:"accept_rate"`
	MeanConfidence float64        `json:"mean_confidence" yaml:"mean_confidence"`
	MeanLatencyMS  float64        `json:"mean_processing_time_ms" yaml:"mean_processing_time_ms"`
	Threshold      *float64       `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	Fields         []FieldStats   `json:"fields" yaml:"fields"`
	FailuresByKind map[string]int `json:"failures_by_kind" yaml:"failures_by_kind"`
}

// Summarize aggregates rows. fields fixes the order of Summary.Fields.
// AcceptRate is over all items; field statistics cover successful items.
func Summarize(rows []export.Row, fields []string) Summary {
	s := Summary{
		Items:          len(rows),
		FailuresByKind: make(map[string]int),
	}
	stats := make([]FieldStats, len(fields))
	confSums := make([]float64, len(fields))
	for i, f := range fields {
		stats[i].Field = f
	}

	var scoreSum float64
	var latencySum int64
	for _, r := range rows {
		latencySum += r.ProcessingTimeMS
		if !r.Success {
			s.Failed++
			kind := r.ErrorKind
			if kind == "" {
				kind = "unknown"
			}
			s.FailuresByKind[kind]++
			continue
		}
		s.Succeeded++
		scoreSum += r.ConfidenceScore
		if r.Accepted {
			s.Accepted++
		}
		for i, f := range fields {
			switch r.FieldFlags[f] {
			case model.FlagMissing:
				stats[i].Missing++
				continue
			case model.FlagAccepted:
				stats[i].Accepted++
			case model.FlagLowConfidence:
				stats[i].LowConfidence++
			}
			stats[i].Present++
			confSums[i] += r.Confidences[f]
		}
	}

	if s.Items > 0 {
		s.AcceptRate = float64(s.Accepted) / float64(s.Items)
		s.MeanLatencyMS = float64(latencySum) / float64(s.Items)
	}
	if s.Succeeded > 0 {
		s.MeanConfidence = scoreSum / float64(s.Succeeded)
		for i := range stats {
			stats[i].Coverage = float64(stats[i].Present) / float64(s.Succeeded)
			if stats[i].Present > 0 {
				stats[i].MeanConfidence = confSums[i] / float64(stats[i].Present)
			}
		}
	}
	s.Fields = stats
	return s
}

// Recompute re-decides every successful row under t and returns updated
// copies. Failed rows pass through unchanged.
func Recompute(rows []export.Row, fields []string, t decision.Thresholds) []export.Row {
	out := make([]export.Row, len(rows))
	for i, r := range rows {
		if !r.Success {
			out[i] = r
			continue
		}
		d := t.Decide(recordOf(r, fields))
		r.Accepted = d.Accepted
		r.ConfidenceScore = d.ConfidenceScore
		r.FieldFlags = maps.Clone(d.FieldFlags)
		r.Reasons = nil
		for _, reason := range d.Reasons {
			r.Reasons = append(r.Reasons, reason.Message)
		}
		out[i] = r
	}
	return out
}

// recordOf rebuilds the parts of an AttributeRecord the decision engine
// reads. A field previously flagged missing keeps its missing tag.
func recordOf(r export.Row, fields []string) *model.AttributeRecord {
	rec := &model.AttributeRecord{
		ItemID:      r.ItemID,
		Fields:      slices.Clone(fields),
		Confidences: make(map[string]float64, len(fields)),
		FieldTags:   make(map[string][]string),
	}
	for _, f := range fields {
		rec.Confidences[f] = r.Confidences[f]
		if r.FieldFlags[f] == model.FlagMissing {
			rec.FieldTags[f] = []string{model.TagMissingField}
		}
	}
	return rec
}

// Kinds returns the failure kinds in descending count order, ties by name.
func (s Summary) Kinds() []string {
	kinds := slices.Collect(maps.Keys(s.FailuresByKind))
	slices.SortFunc(kinds, func(a, b string) int {
		if d := s.FailuresByKind[b] - s.FailuresByKind[a]; d != 0 {
			return d
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return kinds
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
