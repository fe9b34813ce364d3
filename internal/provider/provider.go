// Package provider adapts vision-language model APIs to a single
// Predict call used by the pipeline.
package provider

import (
	"context"
	"sort"
	"time"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/config"
	"github.com/sells-group/vis2attr/internal/model"
	"github.com/sells-group/vis2attr/internal/resilience"
)

// Provider sends one prompt plus images to a vision model and returns its
// raw text reply. Errors carry apperr kinds rate_limit, timeout, api or
// config.
type Provider interface {
	Name() string
	Predict(ctx context.Context, req model.ModelRequest) (*model.ModelReply, error)
}

// Constructor builds a Provider from configuration.
type Constructor func(cfg config.ProviderConfig) (Provider, error)

// Registry maps configuration keys to provider constructors.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry returns a registry preloaded with the built-in providers.
func NewRegistry() *Registry {
	r := &Registry{constructors: make(map[string]Constructor)}
	r.Register("anthropic", func(cfg config.ProviderConfig) (Provider, error) { return NewAnthropic(cfg) })
	r.Register("mistral", func(cfg config.ProviderConfig) (Provider, error) { return NewMistral(cfg) })
	r.Register("stub", func(cfg config.ProviderConfig) (Provider, error) { return NewStub(cfg), nil })
	return r
}

// Register adds or replaces the constructor for name.
func (r *Registry) Register(name string, c Constructor) {
	r.constructors[name] = c
}

// Names returns the registered provider keys in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.constructors))
	for n := range r.constructors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Build constructs the provider selected by cfg.Name.
func (r *Registry) Build(cfg config.ProviderConfig) (Provider, error) {
	c, ok := r.constructors[cfg.Name]
	if !ok {
		return nil, apperr.Errorf(apperr.KindConfig, "provider: unknown provider %q", cfg.Name)
	}
	return c(cfg)
}

// New builds the configured provider and wraps it with rate limiting and
// a circuit breaker.
func New(cfg config.ProviderConfig, circuit config.CircuitConfig) (Provider, error) {
	p, err := NewRegistry().Build(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.RequestsPerSecond > 0 {
		p = NewLimited(p, cfg.RequestsPerSecond)
	}
	return NewGuarded(p, resilience.FromCircuitSettings(circuit.FailureThreshold, circuit.ResetTimeoutSecs)), nil
}

func timeoutOf(cfg config.ProviderConfig) time.Duration {
	if cfg.TimeoutSecs <= 0 {
		return 60 * time.Second
	}
	return time.Duration(cfg.TimeoutSecs) * time.Second
}
