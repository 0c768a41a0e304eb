package rpc

import (
	"context"
	"encoding/json"
)

// Executor runs a whitelisted function against the data layer. It only ever
// receives sanitized parameters.
type Executor interface {
	Execute(ctx context.Context, function string, params map[string]any) (json.RawMessage, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, function string, params map[string]any) (json.RawMessage, error)

func (f ExecutorFunc) Execute(ctx context.Context, function string, params map[string]any) (json.RawMessage, error) {
	return f(ctx, function, params)
}
