package provider

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/vis2attr/internal/apperr"
	"github.com/sells-group/vis2attr/internal/model"
)

// Limited throttles calls to an underlying provider. The rate adapts:
// each success raises it by 20% (up to 2x initial), each rate-limit
// reply halves it (down to initial/4).
type Limited struct {
	next Provider

	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewLimited wraps next with a limiter allowing rps requests per second.
func NewLimited(next Provider, rps float64) *Limited {
	initial := rate.Limit(rps)
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Limited{
		next:        next,
		limiter:     rate.NewLimiter(initial, burst),
		maxRate:     initial * 2,
		minRate:     initial / 4,
		currentRate: initial,
	}
}

// Name implements Provider.
func (l *Limited) Name() string { return l.next.Name() }

// Predict waits for a token, then delegates.
func (l *Limited) Predict(ctx context.Context, req model.ModelRequest) (*model.ModelReply, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		// Wait also fails early when the deadline cannot be met.
		kind := apperr.KindTimeout
		if ctx.Err() != nil {
			kind = apperr.KindOf(ctx.Err())
		}
		return nil, apperr.Wrap(kind, err, "provider: rate limiter wait")
	}
	reply, err := l.next.Predict(ctx, req)
	switch {
	case err == nil:
		l.adjust(1.2)
	case apperr.Is(err, apperr.KindRateLimit):
		l.adjust(0.5)
		zap.L().Warn("provider: reducing request rate after rate limit",
			zap.String("provider", l.next.Name()),
			zap.Float64("new_rate", float64(l.Limit())),
		)
	}
	return reply, err
}

// Limit returns the current rate.
func (l *Limited) Limit() rate.Limit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentRate
}

func (l *Limited) adjust(factor float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	newRate := l.currentRate * rate.Limit(factor)
	if newRate > l.maxRate {
		newRate = l.maxRate
	}
	if newRate < l.minRate {
		newRate = l.minRate
	}
	l.currentRate = newRate
	l.limiter.SetLimit(newRate)
}
