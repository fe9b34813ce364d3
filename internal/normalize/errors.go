package normalize

import (
	"fmt"

	"github.com/sells-group/vis2attr/internal/apperr"
)

// ParseErrorKind distinguishes unparseable text from a shape the schema
// cannot accept.
type ParseErrorKind string

// Parse error kinds.
const (
	MalformedJSON  ParseErrorKind = "malformed_json"
	SchemaMismatch ParseErrorKind = "schema_mismatch"
)

const previewLen = 120

// ParseError reports a reply that could not be normalized. Text keeps the
// full offending content for diagnostics.
type ParseError struct {
	Kind   ParseErrorKind
	Field  string
	Detail string
	Text   string
}

func (e *ParseError) Error() string {
	switch {
	case e.Kind == SchemaMismatch && e.Field != "":
		return fmt.Sprintf("normalize: schema mismatch on field %q: %s", e.Field, e.Detail)
	case e.Kind == SchemaMismatch:
		return fmt.Sprintf("normalize: schema mismatch: %s", e.Detail)
	default:
		return fmt.Sprintf("normalize: malformed json: %s (content %q)", e.Detail, preview(e.Text))
	}
}

// ErrorKind maps the parse kind onto the stable error kinds.
func (e *ParseError) ErrorKind() apperr.Kind {
	if e.Kind == SchemaMismatch {
		return apperr.KindSchemaMismatch
	}
	return apperr.KindMalformedJSON
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen]) + "..."
}

func mismatch(field, format string, args ...any) *ParseError {
	return &ParseError{Kind: SchemaMismatch, Field: field, Detail: fmt.Sprintf(format, args...)}
}
