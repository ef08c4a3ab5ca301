// Package requestid tags a request with a stable id and carries it through
// context into every log line the request produces.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey struct{}

// New mints a request id and returns the enriched context and the id.
func New(ctx context.Context) (context.Context, string) {
	id := uuid.New().String()
	return WithRequestID(ctx, id), id
}

// WithRequestID stores an externally supplied id, e.g. an X-Request-ID header.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request id, or the empty string when the context
// carries none.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
