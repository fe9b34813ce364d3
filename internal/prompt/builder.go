// Package prompt renders the instruction sent with an item's images.
package prompt

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/schema"
)

//go:embed default.tmpl
var defaultTemplate string

// Options configures the request fields a Builder fills in.
type Options struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	TemplatePath string
}

// Builder turns an item and a schema into a model request.
type Builder struct {
	tmpl *template.Template
	opts Options
}

// NewBuilder parses the template at opts.TemplatePath, or the embedded
// default when empty.
func NewBuilder(opts Options) (*Builder, error) {
	text := defaultTemplate
	name := "default"
	if opts.TemplatePath != "" {
		data, err := os.ReadFile(opts.TemplatePath)
		if err != nil {
			return nil, apperr.Wrapf(apperr.KindPrompt, err, "prompt: read template %s", opts.TemplatePath)
		}
		text = string(data)
		name = opts.TemplatePath
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPrompt, err, "prompt: parse template")
	}
	return &Builder{tmpl: tmpl, opts: opts}, nil
}

type templateData struct {
	ItemID            string
	NumImages         int
	SchemaName        string
	Fields            []string
	SchemaDescription string
	ExampleOutput     string
	Meta              map[string]any
	MetaLines         []string
}

// Build renders the prompt for item and returns a request carrying the
// item's images.
func (b *Builder) Build(item model.Item, s *schema.Schema) (model.ModelRequest, error) {
	if s == nil {
		return model.ModelRequest{}, apperr.New(apperr.KindPrompt, "prompt: nil schema")
	}
	if len(item.Images) == 0 {
		return model.ModelRequest{}, apperr.Errorf(apperr.KindPrompt, "prompt: item %s has no images", item.ItemID)
	}

	example, err := ExampleOutput(s)
	if err != nil {
		return model.ModelRequest{}, err
	}
	data := templateData{
		ItemID:            item.ItemID,
		NumImages:         len(item.Images),
		SchemaName:        s.Name(),
		Fields:            s.Fields(),
		SchemaDescription: b.Describe(s),
		ExampleOutput:     example,
		Meta:              item.Meta,
		MetaLines:         metaLines(item.Meta),
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, data); err != nil {
		return model.ModelRequest{}, apperr.Wrapf(apperr.KindPrompt, err, "prompt: render item %s", item.ItemID)
	}

	return model.ModelRequest{
		Model:       b.opts.Model,
		Prompt:      strings.TrimSpace(buf.String()),
		Images:      item.Images,
		MaxTokens:   b.opts.MaxTokens,
		Temperature: b.opts.Temperature,
	}, nil
}

// Describe lists the schema fields one per line, in schema order.
func (b *Builder) Describe(s *schema.Schema) string {
	// A Caser holds state and must not be shared across goroutines.
	title := cases.Title(language.English)
	lines := make([]string, 0, s.Len())
	for _, d := range s.Descriptors() {
		label := title.String(strings.ReplaceAll(d.Name, "_", " "))
		shape := fmt.Sprintf("single %s value", d.ValueType)
		if d.IsList() {
			shape = fmt.Sprintf("list of %s values", d.ValueType)
		}
		line := fmt.Sprintf("- %s (%s): %s", d.Name, label, shape)
		if d.Description != "" {
			line += ". " + d.Description
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ExampleOutput renders a sample reply with keys in schema order.
func ExampleOutput(s *schema.Schema) (string, error) {
	var sb strings.Builder
	sb.WriteString("{\n")
	for i, d := range s.Descriptors() {
		var v any
		if d.IsList() {
			v = []map[string]any{{"name": exampleValue(d.ValueType), "confidence": 0.8}}
		} else {
			v = map[string]any{"value": exampleValue(d.ValueType), "confidence": 0.85}
		}
		enc, err := json.Marshal(v)
		if err != nil {
			return "", apperr.Wrap(apperr.KindPrompt, err, "prompt: marshal example")
		}
		fmt.Fprintf(&sb, "  %q: %s", d.Name, enc)
		if i < s.Len()-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String(), nil
}

func exampleValue(vt schema.ValueType) any {
	switch vt {
	case schema.TypeNumber:
		return 1.5
	case schema.TypeInteger:
		return 1
	case schema.TypeBoolean:
		return true
	default:
		return "example_value"
	}
}

func metaLines(meta map[string]any) []string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, meta[k]))
	}
	return lines
}
