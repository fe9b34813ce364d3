package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/resilience"
)

// Guarded fails fast while the underlying provider keeps failing.
type Guarded struct {
	next    Provider
	breaker *resilience.CircuitBreaker
}

// NewGuarded wraps next with a circuit breaker built from cfg. State
// changes are logged.
func NewGuarded(next Provider, cfg resilience.CircuitBreakerConfig) *Guarded {
	name := next.Name()
	if cfg.OnStateChange == nil {
		cfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("provider: circuit breaker state change",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		}
	}
	return &Guarded{next: next, breaker: resilience.NewCircuitBreaker(cfg)}
}

// Name implements Provider.
func (g *Guarded) Name() string { return g.next.Name() }

// State reports the breaker state.
func (g *Guarded) State() resilience.CircuitState { return g.breaker.State() }

// Predict implements Provider.
func (g *Guarded) Predict(ctx context.Context, req model.ModelRequest) (*model.ModelReply, error) {
	return resilience.Call(ctx, g.breaker, func(ctx context.Context) (*model.ModelReply, error) {
		return g.next.Predict(ctx, req)
	})
}
