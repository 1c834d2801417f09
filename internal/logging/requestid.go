// Package logging provides zerolog setup and request ID context propagation.
package logging

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

type ctxKey struct{}

// RequestIDHeader is read from inbound requests and echoed on responses.
const RequestIDHeader = "X-Request-ID"

const maxInboundRequestIDLen = 64

// NewRequestID returns a short random id for log correlation.
func NewRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// inboundRequestID accepts a caller-supplied id when it is short and
// printable, and generates one otherwise.
func inboundRequestID(v string) string {
	if v == "" || len(v) > maxInboundRequestIDLen {
		return NewRequestID()
	}
	for _, c := range v {
		if c < 0x21 || c > 0x7e {
			return NewRequestID()
		}
	}
	return v
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, requestID)
}

// RequestIDFromContext returns "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
