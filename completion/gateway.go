// Package completion is the boundary to the hosted language model.
package completion

import (
	"context"
	"errors"
)

// ErrCompletionFailed wraps every failure of the gateway. Network errors,
// rate limiting and malformed responses all surface as this one condition.
var ErrCompletionFailed = errors.New("completion failed")

// Gateway turns a prompt into a single completed reply. There are no partial results.
type Gateway interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GatewayFunc adapts a function to Gateway
type GatewayFunc func(ctx context.Context, prompt string) (string, error)

func (f GatewayFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
