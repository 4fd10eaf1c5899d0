package ws

import (
	"context"

	"github.com/quantfall/tradegate/infra/breakers"
	"github.com/quantfall/tradegate/internal/domain/gates"
)

// GuardedProvider routes freshness queries through a circuit breaker so a
// flapping feed collaborator fails fast instead of stalling decisions.
type GuardedProvider struct {
	inner   gates.FreshnessProvider
	breaker *breakers.Breaker
}

var _ gates.FreshnessProvider = (*GuardedProvider)(nil)

// NewGuardedProvider wraps a freshness provider with a breaker.
func NewGuardedProvider(inner gates.FreshnessProvider, breaker *breakers.Breaker) *GuardedProvider {
	return &GuardedProvider{inner: inner, breaker: breaker}
}

// Freshness executes the query through the breaker; an open breaker
// surfaces as an error, which the N0 gate treats as a fail-closed reject.
func (g *GuardedProvider) Freshness(ctx context.Context, symbol string) (gates.Freshness, error) {
	result, err := g.breaker.Execute(func() (any, error) {
		return g.inner.Freshness(ctx, symbol)
	})
	if err != nil {
		return gates.Freshness{}, err
	}
	return result.(gates.Freshness), nil
}
