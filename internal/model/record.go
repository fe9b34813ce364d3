package model

import (
	"encoding/json"
	"slices"
	"time"
)

// Quality tags attached to records and fields.
const (
	TagMissingField      = "missing_field"
	TagConfidenceClamped = "confidence_clamped"
	TagMissingConfidence = "missing_confidence"
	TagCoerced           = "coerced"
	TagSalvaged          = "salvaged"
	TagEmptyList         = "empty_list"
	TagHighConfidence    = "high_confidence"
	TagMediumConfidence  = "medium_confidence"
	TagLowConfidence     = "low_confidence"
)

// TagSet is an unordered set of labels. It marshals as a sorted list.
type TagSet map[string]struct{}

// NewTagSet returns a set holding tags.
func NewTagSet(tags ...string) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// Add inserts a tag.
func (s TagSet) Add(tag string) {
	s[tag] = struct{}{}
}

// Has reports whether tag is present.
func (s TagSet) Has(tag string) bool {
	_, ok := s[tag]
	return ok
}

// Sorted returns the tags in lexical order.
func (s TagSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s TagSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes an array of tags.
func (s *TagSet) UnmarshalJSON(data []byte) error {
	var tags []string
	if err := json.Unmarshal(data, &tags); err != nil {
		return err
	}
	*s = NewTagSet(tags...)
	return nil
}

// Lineage is the forensic trail of how a record was derived.
type Lineage struct {
	InputBytes        int                       `json:"input_bytes"`
	Salvaged          bool                      `json:"salvaged"`
	Coercions         int                       `json:"coercions"`
	Provider          string                    `json:"provider,omitempty"`
	Model             string                    `json:"model,omitempty"`
	LatencyMS         int64                     `json:"latency_ms"`
	ReplyTimestamp    time.Time                 `json:"reply_timestamp"`
	ModelCallAttempts int                       `json:"model_call_attempts"`
	UnknownKeys       map[string]any            `json:"unknown_keys,omitempty"`
	FieldExtras       map[string]map[string]any `json:"field_extras,omitempty"`
}

// AttributeRecord is the normalized, schema-shaped result for one item.
// It is built once by the normalizer and not modified afterwards.
type AttributeRecord struct {
	ItemID string `json:"item_id"`
	// Fields lists the schema fields in schema order.
	Fields             []string             `json:"fields"`
	Data               map[string]any       `json:"data"`
	Confidences        map[string]float64   `json:"confidences"`
	ElementConfidences map[string][]float64 `json:"element_confidences,omitempty"`
	Tags               TagSet               `json:"tags"`
	FieldTags          map[string][]string  `json:"field_tags,omitempty"`
	Notes              string               `json:"notes,omitempty"`
	Lineage            Lineage              `json:"lineage"`
}

// FieldHasTag reports whether field carries tag.
func (r *AttributeRecord) FieldHasTag(field, tag string) bool {
	return slices.Contains(r.FieldTags[field], tag)
}

// MeanConfidence returns the arithmetic mean of all field confidences.
func (r *AttributeRecord) MeanConfidence() float64 {
	if len(r.Fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range r.Fields {
		sum += r.Confidences[f]
	}
	return sum / float64(len(r.Fields))
}
