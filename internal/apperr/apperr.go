// Package apperr defines the stable error kinds reported for failed items.
package apperr

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
)

// Kind is a stable, machine-readable error tag.
type Kind string

// Error kinds.
const (
	KindSchema         Kind = "schema"
	KindIngest         Kind = "ingest"
	KindPrompt         Kind = "prompt"
	KindStorage        Kind = "storage"
	KindAPI            Kind = "api"
	KindConfig         Kind = "config"
	KindRateLimit      Kind = "rate_limit"
	KindTimeout        Kind = "timeout"
	KindMalformedJSON  Kind = "parse_malformed_json"
	KindSchemaMismatch Kind = "parse_schema_mismatch"
	KindCanceled       Kind = "canceled"
	KindInternal       Kind = "internal"
)

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kinder is implemented by error types that carry their own kind.
type Kinder interface {
	ErrorKind() Kind
}

// New creates a kinded error with an eris root.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Err: eris.New(msg)}
}

// Errorf creates a kinded error from a format string.
func Errorf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Err: eris.Errorf(format, args...)}
}

// Wrap wraps err with a message and tags it with kind. Returns nil for a nil err.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: eris.Wrap(err, msg)}
}

// Wrapf is Wrap with a format string.
func Wrapf(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Err: eris.Wrapf(err, format, args...)}
}

// Ensure returns err unchanged if it already carries a kind, otherwise it
// tags err with fallback.
func Ensure(err error, fallback Kind) error {
	if err == nil {
		return nil
	}
	if _, ok := lookup(err); ok {
		return err
	}
	return &Error{Kind: fallback, Err: err}
}

// KindOf reports the kind of err. Untagged errors report KindInternal,
// context cancellation reports KindCanceled and deadlines KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if k, ok := lookup(err); ok {
		return k
	}
	switch {
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether a model call failing with err may be retried.
// Only rate limits and timeouts qualify.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindRateLimit, KindTimeout:
		return true
	default:
		return false
	}
}

// IsParse reports whether err is a response parsing failure.
func IsParse(err error) bool {
	switch KindOf(err) {
	case KindMalformedJSON, KindSchemaMismatch:
		return true
	default:
		return false
	}
}

func lookup(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	var k Kinder
	if errors.As(err, &k) {
		return k.ErrorKind(), true
	}
	return "", false
}
