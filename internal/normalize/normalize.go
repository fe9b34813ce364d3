// Package normalize turns raw model reply text into a schema-conformant
// attribute record with per-field confidences.
package normalize

import (
	"strconv"

	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/schema"
)

// Keys recognized inside a field object.
const (
	keyValue      = "value"
	keyName       = "name"
	keyConfidence = "confidence"
	keyNotes      = "notes"
)

// Quality band boundaries applied to the mean confidence.
const (
	highConfidence   = 0.8
	mediumConfidence = 0.5
)

// Normalize parses reply.Content and shapes it to s. It fails with a
// *ParseError when the content is not JSON or cannot be made to fit the
// schema. Data is never dropped: unknown keys land in the lineage.
func Normalize(reply model.ModelReply, s *schema.Schema) (*model.AttributeRecord, error) {
	parsed, salvaged, err := decode(reply.Content)
	if err != nil {
		return nil, err
	}

	n := &normalizer{
		rec: &model.AttributeRecord{
			Fields:             s.Fields(),
			Data:               make(map[string]any, s.Len()),
			Confidences:        make(map[string]float64, s.Len()),
			ElementConfidences: make(map[string][]float64),
			Tags:               model.NewTagSet(),
			FieldTags:          make(map[string][]string),
			Lineage: model.Lineage{
				InputBytes:        len(reply.Content),
				Salvaged:          salvaged,
				Provider:          reply.Provider,
				Model:             reply.Model,
				LatencyMS:         reply.Latency.Milliseconds(),
				ReplyTimestamp:    reply.Timestamp,
				ModelCallAttempts: reply.Attempts,
			},
		},
	}
	if salvaged {
		n.rec.Tags.Add(model.TagSalvaged)
	}

	obj, perr := n.topLevel(parsed)
	if perr != nil {
		perr.Text = reply.Content
		return nil, perr
	}

	for _, d := range s.Descriptors() {
		raw, present := obj[d.Name]
		if !present {
			n.missing(d)
			continue
		}
		if d.IsList() {
			perr = n.list(d, raw)
		} else {
			perr = n.scalar(d, raw)
		}
		if perr != nil {
			perr.Text = reply.Content
			return nil, perr
		}
	}

	n.unknown(obj, s)
	n.band()
	return n.rec, nil
}

type normalizer struct {
	rec *model.AttributeRecord
}

// topLevel accepts an object, or a single-element array wrapping one.
func (n *normalizer) topLevel(parsed any) (map[string]any, *ParseError) {
	switch v := parsed.(type) {
	case map[string]any:
		return v, nil
	case []any:
		if len(v) == 1 {
			if obj, ok := v[0].(map[string]any); ok {
				n.coerced("")
				return obj, nil
			}
		}
		return nil, mismatch("", "top-level value is a list of %d elements, expected an object", len(v))
	default:
		return nil, mismatch("", "top-level value is %s, expected an object", describe(parsed))
	}
}

func (n *normalizer) missing(d schema.Descriptor) {
	n.rec.Data[d.Name] = d.DefaultValue()
	n.rec.Confidences[d.Name] = 0
	n.tag(d.Name, model.TagMissingField)
}

func (n *normalizer) scalar(d schema.Descriptor, raw any) *ParseError {
	if list, ok := raw.([]any); ok {
		if len(list) != 1 {
			return mismatch(d.Name, "expected a scalar, found a list of %d elements", len(list))
		}
		raw = list[0]
		n.coerced(d.Name)
	}

	value, conf, err := n.element(d, raw, "")
	if err != nil {
		return err
	}
	n.rec.Data[d.Name] = value
	n.rec.Confidences[d.Name] = conf
	return nil
}

func (n *normalizer) list(d schema.Descriptor, raw any) *ParseError {
	var elems []any
	switch v := raw.(type) {
	case []any:
		elems = v
	case nil:
		elems = []any{}
	default:
		elems = []any{v}
		n.coerced(d.Name)
	}

	values := make([]any, 0, len(elems))
	confs := make([]float64, 0, len(elems))
	for i, el := range elems {
		if _, nested := el.([]any); nested {
			return mismatch(d.Name, "nested list elements are not supported")
		}
		value, conf, err := n.element(d, el, strconv.Itoa(i)+".")
		if err != nil {
			return err
		}
		values = append(values, value)
		confs = append(confs, conf)
	}

	n.rec.Data[d.Name] = values
	n.rec.ElementConfidences[d.Name] = confs
	if len(confs) == 0 {
		n.rec.Confidences[d.Name] = 0
		n.tag(d.Name, model.TagEmptyList)
		return nil
	}
	lowest := confs[0]
	for _, c := range confs[1:] {
		lowest = min(lowest, c)
	}
	n.rec.Confidences[d.Name] = lowest
	return nil
}

// element extracts a value and its confidence from either a
// {"value"|"name": v, "confidence": c} object or a bare value. Other keys
// are kept in the lineage under prefix.
func (n *normalizer) element(d schema.Descriptor, raw any, prefix string) (any, float64, *ParseError) {
	obj, isObj := raw.(map[string]any)
	if !isObj {
		if !schema.MatchesType(d.ValueType, raw) {
			return nil, 0, mismatch(d.Name, "value %s does not match type %s", describe(raw), d.ValueType)
		}
		n.tag(d.Name, model.TagMissingConfidence)
		return raw, 0, nil
	}

	valueKey := keyValue
	if _, ok := obj[keyValue]; !ok {
		if _, ok := obj[keyName]; !ok {
			return nil, 0, mismatch(d.Name, "object has no %q key", keyValue)
		}
		valueKey = keyName
	}
	value := obj[valueKey]
	if _, nested := value.([]any); nested {
		return nil, 0, mismatch(d.Name, "value is a list inside a field object")
	}
	if !schema.MatchesType(d.ValueType, value) {
		return nil, 0, mismatch(d.Name, "value %s does not match type %s", describe(value), d.ValueType)
	}

	conf, err := n.confidence(d.Name, obj)
	if err != nil {
		return nil, 0, err
	}

	for k, v := range obj {
		if k == valueKey || k == keyConfidence {
			continue
		}
		n.extra(d.Name, prefix+k, v)
	}
	return value, conf, nil
}

func (n *normalizer) confidence(field string, obj map[string]any) (float64, *ParseError) {
	raw, ok := obj[keyConfidence]
	if !ok || raw == nil {
		n.tag(field, model.TagMissingConfidence)
		return 0, nil
	}
	c, ok := raw.(float64)
	if !ok {
		return 0, mismatch(field, "confidence %s is not a number", describe(raw))
	}
	if c < 0 || c > 1 {
		n.tag(field, model.TagConfidenceClamped)
		c = max(0, min(1, c))
	}
	return c, nil
}

func (n *normalizer) unknown(obj map[string]any, s *schema.Schema) {
	for k, v := range obj {
		if s.Has(k) {
			continue
		}
		if text, ok := v.(string); ok && k == keyNotes {
			n.rec.Notes = text
			continue
		}
		if n.rec.Lineage.UnknownKeys == nil {
			n.rec.Lineage.UnknownKeys = make(map[string]any)
		}
		n.rec.Lineage.UnknownKeys[k] = v
	}
}

func (n *normalizer) band() {
	mean := n.rec.MeanConfidence()
	switch {
	case mean > highConfidence:
		n.rec.Tags.Add(model.TagHighConfidence)
	case mean > mediumConfidence:
		n.rec.Tags.Add(model.TagMediumConfidence)
	default:
		n.rec.Tags.Add(model.TagLowConfidence)
	}
}

func (n *normalizer) tag(field, tag string) {
	n.rec.Tags.Add(tag)
	if field == "" {
		return
	}
	for _, t := range n.rec.FieldTags[field] {
		if t == tag {
			return
		}
	}
	n.rec.FieldTags[field] = append(n.rec.FieldTags[field], tag)
}

func (n *normalizer) coerced(field string) {
	n.rec.Lineage.Coercions++
	n.tag(field, model.TagCoerced)
}

func (n *normalizer) extra(field, key string, v any) {
	if n.rec.Lineage.FieldExtras == nil {
		n.rec.Lineage.FieldExtras = make(map[string]map[string]any)
	}
	if n.rec.Lineage.FieldExtras[field] == nil {
		n.rec.Lineage.FieldExtras[field] = make(map[string]any)
	}
	n.rec.Lineage.FieldExtras[field][key] = v
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	case []any:
		return "a list"
	case map[string]any:
		return "an object"
	default:
		return "an unknown value"
	}
}
