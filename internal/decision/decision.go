// Package decision applies confidence thresholds to normalized records.
package decision

import (
	"fmt"

	"github.com/sells-group/vis2attr/internal/model"
)

// Decide flags each field of record and returns the item verdict. A field
// passes when its confidence is at or above its threshold (thresholds[field],
// falling back to defaultThreshold). A field tagged missing_field is always
// flagged missing. The item is accepted only when every field passes and the
// mean confidence reaches defaultThreshold. Decide has no side effects.
func Decide(record *model.AttributeRecord, thresholds map[string]float64, defaultThreshold float64) model.Decision {
	d := model.Decision{
		FieldFlags: make(map[string]model.FieldFlag),
		Reasons:    []model.Reason{},
	}
	if record == nil {
		d.Reasons = append(d.Reasons, model.Reason{
			Flag:    model.FlagLowOverall,
			Message: "no attribute record to evaluate",
		})
		return d
	}

	for _, field := range record.Fields {
		conf := record.Confidences[field]
		threshold, ok := thresholds[field]
		if !ok {
			threshold = defaultThreshold
		}

		switch {
		case record.FieldHasTag(field, model.TagMissingField):
			d.FieldFlags[field] = model.FlagMissing
			d.Reasons = append(d.Reasons, model.Reason{
				Field:   field,
				Flag:    model.FlagMissing,
				Message: fmt.Sprintf("%s: missing from model reply", field),
			})
		case conf >= threshold:
			d.FieldFlags[field] = model.FlagAccepted
		default:
			d.FieldFlags[field] = model.FlagLowConfidence
			d.Reasons = append(d.Reasons, model.Reason{
				Field:   field,
				Flag:    model.FlagLowConfidence,
				Message: fmt.Sprintf("%s: confidence %.2f below threshold %.2f", field, conf, threshold),
			})
		}
	}

	d.ConfidenceScore = record.MeanConfidence()
	fieldsPass := len(d.Reasons) == 0
	d.Accepted = fieldsPass && d.ConfidenceScore >= defaultThreshold

	if fieldsPass && !d.Accepted {
		d.Reasons = append(d.Reasons, model.Reason{
			Flag:    model.FlagLowOverall,
			Message: fmt.Sprintf("overall confidence %.2f below minimum %.2f", d.ConfidenceScore, defaultThreshold),
		})
	}
	return d
}
