package schema

import (
	"math"

	"github.com/sells-group/vis2attr/internal/apperr"
)

var requiredKeys = []string{"name", "kind", "value_type"}

func descriptorFrom(pos int, raw map[string]any) (Descriptor, error) {
	for _, k := range requiredKeys {
		v, ok := raw[k]
		if !ok || v == nil {
			return Descriptor{}, apperr.Errorf(apperr.KindSchema, "schema: field #%d: missing required key %q", pos+1, k)
		}
		if s, ok := v.(string); !ok || s == "" {
			return Descriptor{}, apperr.Errorf(apperr.KindSchema, "schema: field #%d: key %q must be a non-empty string", pos+1, k)
		}
	}

	d := Descriptor{
		Name:      raw["name"].(string),
		Kind:      Kind(raw["kind"].(string)),
		ValueType: ValueType(raw["value_type"].(string)),
	}
	if desc, ok := raw["description"].(string); ok {
		d.Description = desc
	}

	switch d.Kind {
	case KindScalar, KindList:
	default:
		return Descriptor{}, apperr.Errorf(apperr.KindSchema, "schema: field %q: unknown kind %q", d.Name, d.Kind)
	}

	switch d.ValueType {
	case TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeAny:
	case "list", "array":
		return Descriptor{}, apperr.Errorf(apperr.KindSchema, "schema: field %q: nested lists are not supported", d.Name)
	default:
		return Descriptor{}, apperr.Errorf(apperr.KindSchema, "schema: field %q: unknown value_type %q", d.Name, d.ValueType)
	}

	def, err := defaultFor(d, raw["default"])
	if err != nil {
		return Descriptor{}, err
	}
	d.Default = def
	return d, nil
}

func defaultFor(d Descriptor, raw any) (any, error) {
	v := canonical(raw)

	if d.Kind == KindScalar {
		if _, isList := v.([]any); isList {
			return nil, apperr.Errorf(apperr.KindSchema, "schema: field %q: scalar default must not be a list", d.Name)
		}
		if !MatchesType(d.ValueType, v) {
			return nil, apperr.Errorf(apperr.KindSchema, "schema: field %q: default does not match value_type %s", d.Name, d.ValueType)
		}
		return v, nil
	}

	if v == nil {
		return []any{}, nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil, apperr.Errorf(apperr.KindSchema, "schema: field %q: list default must be a list", d.Name)
	}
	for _, el := range list {
		if _, nested := el.([]any); nested {
			return nil, apperr.Errorf(apperr.KindSchema, "schema: field %q: nested lists are not supported", d.Name)
		}
		if el == nil || !MatchesType(d.ValueType, el) {
			return nil, apperr.Errorf(apperr.KindSchema, "schema: field %q: default element does not match value_type %s", d.Name, d.ValueType)
		}
	}
	return list, nil
}

// canonical converts YAML-decoded numbers to float64 so defaults compare
// equal to JSON-decoded values.
func canonical(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case uint64:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = canonical(el)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, el := range t {
			out[k] = canonical(el)
		}
		return out
	default:
		return v
	}
}

// MatchesType reports whether a JSON-decoded value is acceptable for vt.
// Null matches every type.
func MatchesType(vt ValueType, v any) bool {
	if v == nil || vt == TypeAny {
		return true
	}
	switch vt {
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeNumber:
		_, ok := v.(float64)
		return ok
	case TypeInteger:
		f, ok := v.(float64)
		return ok && f == math.Trunc(f)
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	default:
		return false
	}
}
