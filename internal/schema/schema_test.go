package schema

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/vis2attr/internal/apperr"
)

func TestDefault(t *testing.T) {
	s := Default()
	assert.Equal(t, "product", s.Name())
	assert.Equal(t, []string{"brand", "model_or_type", "primary_colors", "materials", "condition"}, s.Fields())

	d, ok := s.Describe("primary_colors")
	require.True(t, ok)
	assert.Equal(t, KindList, d.Kind)
	assert.Equal(t, TypeString, d.ValueType)
	assert.Equal(t, []any{}, d.DefaultValue())

	d, ok = s.Describe("brand")
	require.True(t, ok)
	assert.Nil(t, d.DefaultValue())
	assert.False(t, d.IsList())
}

func TestParse_YAMLPreservesOrderAndDefaults(t *testing.T) {
	doc := `
fields:
  - {name: size, kind: scalar, value_type: integer, default: 0}
  - {name: tags, kind: list, value_type: string, default: [a, b]}
  - {name: weight, kind: scalar, value_type: number}
`
	s, err := Parse([]byte(doc), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"size", "tags", "weight"}, s.Fields())

	size, _ := s.Describe("size")
	assert.Equal(t, float64(0), size.Default)

	tags, _ := s.Describe("tags")
	assert.Equal(t, []any{"a", "b"}, tags.DefaultValue())
	assert.Equal(t, 3, s.Len())
	assert.True(t, s.Has("weight"))
	assert.False(t, s.Has("Weight"))
}

func TestParse_JSON(t *testing.T) {
	doc := `{"fields":[{"name":"brand","kind":"scalar","value_type":"string","default":"unknown"}]}`
	s, err := Parse([]byte(doc), FormatJSON)
	require.NoError(t, err)
	d, _ := s.Describe("brand")
	assert.Equal(t, "unknown", d.Default)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no fields", `fields: []`, "no fields declared"},
		{"missing name", `fields: [{kind: scalar, value_type: string}]`, `missing required key "name"`},
		{"missing kind", `fields: [{name: a, value_type: string}]`, `missing required key "kind"`},
		{"missing value_type", `fields: [{name: a, kind: list}]`, `missing required key "value_type"`},
		{"non-string name", `fields: [{name: 3, kind: scalar, value_type: string}]`, `key "name" must be a non-empty string`},
		{"duplicate", "fields:\n  - {name: a, kind: scalar, value_type: string}\n  - {name: a, kind: list, value_type: string}", `duplicate field "a"`},
		{"bad kind", `fields: [{name: a, kind: map, value_type: string}]`, `unknown kind "map"`},
		{"bad type", `fields: [{name: a, kind: scalar, value_type: date}]`, `unknown value_type "date"`},
		{"nested list type", `fields: [{name: a, kind: list, value_type: list}]`, "nested lists are not supported"},
		{"nested list default", `fields: [{name: a, kind: list, value_type: string, default: [[x]]}]`, "nested lists are not supported"},
		{"list default not list", `fields: [{name: a, kind: list, value_type: string, default: x}]`, "list default must be a list"},
		{"scalar default list", `fields: [{name: a, kind: scalar, value_type: string, default: [x]}]`, "scalar default must not be a list"},
		{"default type mismatch", `fields: [{name: a, kind: scalar, value_type: number, default: x}]`, "default does not match value_type number"},
		{"malformed yaml", `fields: [`, "schema: decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), FormatYAML)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, apperr.KindSchema, apperr.KindOf(err))
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "s.yml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("fields: [{name: a, kind: scalar, value_type: any}]"), 0o644))
	s, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, s.Fields())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindSchema, apperr.KindOf(err))

	txt := filepath.Join(dir, "s.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, err = Load(txt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported file extension")
}

func TestSchema_AccessorsDoNotExposeInternals(t *testing.T) {
	s := Default()
	fields := s.Fields()
	fields[0] = "mutated"
	assert.Equal(t, "brand", s.Fields()[0])

	d, _ := s.Describe("materials")
	v := d.DefaultValue().([]any)
	v = append(v, "steel")
	_ = v
	assert.Equal(t, []any{}, d.DefaultValue())
}

func TestSchema_ConcurrentReads(t *testing.T) {
	s := Default()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, f := range s.Fields() {
				_, ok := s.Describe(f)
				assert.True(t, ok)
			}
		}()
	}
	wg.Wait()
}

func TestMatchesType(t *testing.T) {
	assert.True(t, MatchesType(TypeString, "x"))
	assert.False(t, MatchesType(TypeString, 1.0))
	assert.True(t, MatchesType(TypeInteger, 3.0))
	assert.False(t, MatchesType(TypeInteger, 3.5))
	assert.True(t, MatchesType(TypeNumber, 3.5))
	assert.True(t, MatchesType(TypeBoolean, false))
	assert.True(t, MatchesType(TypeAny, map[string]any{}))
	assert.True(t, MatchesType(TypeNumber, nil))
}
