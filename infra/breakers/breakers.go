// Package breakers wraps sony/gobreaker with the trip policy used around
// external feed queries.
package breakers

import (
	"time"

	cb "github.com/sony/gobreaker"
)

type Breaker struct{ cb *cb.CircuitBreaker }

// New creates a breaker that trips on 3 consecutive failures, or on a
// failure rate above 5% once at least 20 requests were seen.
func New(name string) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

func (b *Breaker) Execute(fn func() (any, error)) (any, error) { return b.cb.Execute(fn) }

// State returns the breaker state name.
func (b *Breaker) State() string { return b.cb.State().String() }
