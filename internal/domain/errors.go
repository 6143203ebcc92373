package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyResult marks a valid upstream response that contained zero usable
// rows. It is a skip condition, not a failure: legitimately data-sparse
// windows must not raise alarms.
var ErrEmptyResult = errors.New("no usable rows in response")

// SchemaError reports an upstream payload whose shape is no longer
// recognized: a missing coordinate or time axis, or a required field absent
// from the vocabulary. It is never retried and never guessed around; it
// indicates an incompatible upstream change and aborts the provider run.
type SchemaError struct {
	Reason  string
	Columns []string // the identifiers that were actually present
}

func (e *SchemaError) Error() string {
	if len(e.Columns) == 0 {
		return "schema: " + e.Reason
	}
	return fmt.Sprintf("schema: %s (found: %s)", e.Reason, strings.Join(e.Columns, ", "))
}

// TransientFetchError wraps a failure that is scoped to a single fetch
// window: network errors, 5xx responses, truncated or malformed payloads.
// The affected window is skipped and the run continues.
type TransientFetchError struct {
	Op  string
	Err error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("transient fetch failure: %s: %v", e.Op, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientFetchError. A nil err yields nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientFetchError{Op: op, Err: err}
}

// Transientf creates a TransientFetchError from a formatted message.
func Transientf(op, format string, args ...any) error {
	return &TransientFetchError{Op: op, Err: fmt.Errorf(format, args...)}
}

// StoreCorruptionError reports a persisted store that could not be read or
// parsed. The run must not merge against an unknown state, so this is fatal
// for the provider.
type StoreCorruptionError struct {
	Path string
	Err  error
}

func (e *StoreCorruptionError) Error() string {
	return fmt.Sprintf("store corrupted: %s: %v", e.Path, e.Err)
}

func (e *StoreCorruptionError) Unwrap() error { return e.Err }
