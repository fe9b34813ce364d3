package decision

import (
	"maps"
	"slices"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/model"
)

// DefaultKey is the thresholds entry applied to fields without their own.
const DefaultKey = "default"

// Thresholds holds the configured quality gates.
type Thresholds struct {
	Default float64
	Fields  map[string]float64
}

// DefaultThresholds returns the stock product thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Default: 0.75,
		Fields: map[string]float64{
			"brand":          0.80,
			"model_or_type":  0.70,
			"primary_colors": 0.65,
			"materials":      0.70,
			"condition":      0.75,
		},
	}
}

// ParseThresholds builds Thresholds from a flat map that must contain a
// "default" entry. Every value must lie in [0,1].
func ParseThresholds(m map[string]float64) (Thresholds, error) {
	def, ok := m[DefaultKey]
	if !ok {
		return Thresholds{}, apperr.New(apperr.KindConfig, "thresholds: missing \"default\" entry")
	}

	t := Thresholds{Default: def, Fields: make(map[string]float64, len(m))}
	for _, name := range slices.Sorted(maps.Keys(m)) {
		v := m[name]
		if v < 0 || v > 1 {
			return Thresholds{}, apperr.Errorf(apperr.KindConfig, "thresholds: %s=%v outside [0,1]", name, v)
		}
		if name != DefaultKey {
			t.Fields[name] = v
		}
	}
	return t, nil
}

// Resolve returns the threshold that applies to field.
func (t Thresholds) Resolve(field string) float64 {
	if v, ok := t.Fields[field]; ok {
		return v
	}
	return t.Default
}

// Map returns the thresholds as a flat map including the default entry.
func (t Thresholds) Map() map[string]float64 {
	out := make(map[string]float64, len(t.Fields)+1)
	maps.Copy(out, t.Fields)
	out[DefaultKey] = t.Default
	return out
}

// WithDefault returns a copy using a different default threshold.
func (t Thresholds) WithDefault(v float64) Thresholds {
	return Thresholds{Default: v, Fields: maps.Clone(t.Fields)}
}

// Decide applies these thresholds to record.
func (t Thresholds) Decide(record *model.AttributeRecord) model.Decision {
	return Decide(record, t.Fields, t.Default)
}
