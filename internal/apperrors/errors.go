// Package apperrors defines the error taxonomy shared across the pipeline:
// sentinel errors for request handling, typed errors for provider, schema,
// invariant and persistence failures, and the retryability classification.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to HTTP responses at the API boundary.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrEmptyMessage = errors.New("message is empty")
)

// ProviderKind classifies a reasoning-provider failure.
type ProviderKind string

const (
	ProviderTimeout         ProviderKind = "timeout"
	ProviderMalformedOutput ProviderKind = "malformed_output"
	ProviderRateLimited     ProviderKind = "rate_limited"
	ProviderUpstreamFailure ProviderKind = "upstream_failure"
)

// ProviderError is any failure of the reasoning provider. Malformed output is
// not retryable; the other kinds are.
type ProviderError struct {
	Kind       ProviderKind
	StatusCode int
	Message    string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError builds a provider error without a wrapped cause.
func NewProviderError(kind ProviderKind, statusCode int, message string) *ProviderError {
	return &ProviderError{Kind: kind, StatusCode: statusCode, Message: message}
}

// InvariantError reports a graph-model violation: a broken forest, a dangling
// connection endpoint, an unknown enum value or an out-of-range score.
type InvariantError struct {
	Invariant string
	Detail    string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

// NewInvariantError builds an invariant error with a formatted detail.
func NewInvariantError(invariant, format string, args ...any) *InvariantError {
	return &InvariantError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}

// SchemaError reports provider output that parsed as JSON but does not
// satisfy a stage's expected shape.
type SchemaError struct {
	Stage  string
	Detail string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("stage %s: schema violation: %s", e.Stage, e.Detail)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// NewSchemaError builds a schema error for the given pipeline stage.
func NewSchemaError(stage, detail string, err error) *SchemaError {
	return &SchemaError{Stage: stage, Detail: detail, Err: err}
}

// PersistenceError wraps a storage failure. Unlike provider errors these
// propagate to the caller; a turn that cannot be persisted fails.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// NewPersistenceError wraps err with the failing storage operation.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// IsRetryable reports whether retrying the same call may succeed. Malformed
// output is deterministic for a given response and is not retried.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	switch pe.Kind {
	case ProviderTimeout, ProviderRateLimited, ProviderUpstreamFailure:
		return true
	default:
		return false
	}
}

// IsRecoverable reports whether a turn can continue in degraded mode after
// this error. Provider and schema failures degrade; everything else fails
// the turn.
func IsRecoverable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return true
	}
	var se *SchemaError
	return errors.As(err, &se)
}
