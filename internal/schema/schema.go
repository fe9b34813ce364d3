// Package schema loads and validates the attribute schema that defines the
// fields a model reply is normalized into.
package schema

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sells-group/vis2attr/internal/apperr"
)

// Kind is the shape of a field.
type Kind string

// Field kinds.
const (
	KindScalar Kind = "scalar"
	KindList   Kind = "list"
)

// ValueType is the type of a field value (or of each list element).
type ValueType string

// Value types.
const (
	TypeString  ValueType = "string"
	TypeNumber  ValueType = "number"
	TypeInteger ValueType = "integer"
	TypeBoolean ValueType = "boolean"
	TypeAny     ValueType = "any"
)

// Format is the encoding of a schema document.
type Format string

// Schema formats.
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Descriptor describes one field.
type Descriptor struct {
	Name        string    `json:"name" yaml:"name"`
	Kind        Kind      `json:"kind" yaml:"kind"`
	ValueType   ValueType `json:"value_type" yaml:"value_type"`
	Default     any       `json:"default" yaml:"default"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
}

// IsList reports whether the field holds a list.
func (d Descriptor) IsList() bool {
	return d.Kind == KindList
}

// DefaultValue returns a fresh copy of the field default, so callers may
// keep it without aliasing the schema.
func (d Descriptor) DefaultValue() any {
	if list, ok := d.Default.([]any); ok {
		return append([]any{}, list...)
	}
	if d.IsList() && d.Default == nil {
		return []any{}
	}
	return d.Default
}

// Schema is an immutable, ordered set of field descriptors. It is safe for
// concurrent use.
type Schema struct {
	name   string
	fields []Descriptor
	index  map[string]int
}

// Name returns the schema name, if one was declared.
func (s *Schema) Name() string {
	return s.name
}

// Fields returns the field names in declaration order.
func (s *Schema) Fields() []string {
	out := make([]string, len(s.fields))
	for i, d := range s.fields {
		out[i] = d.Name
	}
	return out
}

// Describe returns the descriptor of a field.
func (s *Schema) Describe(name string) (Descriptor, bool) {
	i, ok := s.index[name]
	if !ok {
		return Descriptor{}, false
	}
	return s.fields[i], true
}

// Descriptors returns a copy of all descriptors in order.
func (s *Schema) Descriptors() []Descriptor {
	return append([]Descriptor(nil), s.fields...)
}

// Len returns the number of fields.
func (s *Schema) Len() int {
	return len(s.fields)
}

// Has reports whether name is a schema field.
func (s *Schema) Has(name string) bool {
	_, ok := s.index[name]
	return ok
}

//go:embed default.yaml
var defaultSchema []byte

// Default returns the built-in product attribute schema.
func Default() *Schema {
	s, err := Parse(defaultSchema, FormatYAML)
	if err != nil {
		panic(err)
	}
	return s
}

// Load reads a schema file. The format follows the extension: .yaml, .yml
// or .json.
func Load(path string) (*Schema, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".json":
		format = FormatJSON
	default:
		return nil, apperr.Errorf(apperr.KindSchema, "schema: unsupported file extension %q", filepath.Ext(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrapf(apperr.KindSchema, err, "schema: read %s", path)
	}
	return Parse(data, format)
}

type document struct {
	Name   string           `json:"name" yaml:"name"`
	Fields []map[string]any `json:"fields" yaml:"fields"`
}

// Parse decodes and validates a schema document.
func Parse(data []byte, format Format) (*Schema, error) {
	var doc document
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, apperr.Errorf(apperr.KindSchema, "schema: unknown format %q", format)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSchema, err, "schema: decode")
	}
	return build(doc)
}

func build(doc document) (*Schema, error) {
	if len(doc.Fields) == 0 {
		return nil, apperr.New(apperr.KindSchema, "schema: no fields declared")
	}

	s := &Schema{
		name:   doc.Name,
		fields: make([]Descriptor, 0, len(doc.Fields)),
		index:  make(map[string]int, len(doc.Fields)),
	}
	for i, raw := range doc.Fields {
		d, err := descriptorFrom(i, raw)
		if err != nil {
			return nil, err
		}
		if _, dup := s.index[d.Name]; dup {
			return nil, apperr.Errorf(apperr.KindSchema, "schema: duplicate field %q", d.Name)
		}
		s.index[d.Name] = len(s.fields)
		s.fields = append(s.fields, d)
	}
	return s, nil
}
