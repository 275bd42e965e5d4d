package completion

import (
	"context"
	"errors"
	"fmt"

	"adichat/backend/pkg/resilience"
)

// BreakerGateway stops calling a failing upstream for a while
type BreakerGateway struct {
	next    Gateway
	breaker *resilience.Breaker
}

// WithBreaker wraps next in breaker
func WithBreaker(next Gateway, breaker *resilience.Breaker) *BreakerGateway {
	return &BreakerGateway{next: next, breaker: breaker}
}

func (g *BreakerGateway) Complete(ctx context.Context, prompt string) (string, error) {
	var reply string
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		reply, err = g.next.Complete(ctx, prompt)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", fmt.Errorf("%w: %w", ErrCompletionFailed, err)
	}
	return reply, err
}
