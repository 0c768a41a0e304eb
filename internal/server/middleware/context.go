package middleware

import (
	"context"

	"github.com/gosuda/relaygate/internal/domain"
)

type contextKey string

const ContextKeyCaller contextKey = "caller"

// WithCaller returns a copy of ctx carrying caller.
func WithCaller(ctx context.Context, caller domain.Caller) context.Context {
	return context.WithValue(ctx, ContextKeyCaller, caller)
}

// CallerFromContext returns the caller set by Identify. A request that never
// passed through Identify yields an anonymous caller.
func CallerFromContext(ctx context.Context) domain.Caller {
	v, _ := ctx.Value(ContextKeyCaller).(domain.Caller)
	return v
}
