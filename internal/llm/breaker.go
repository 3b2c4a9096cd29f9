package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Default circuit breaker settings, matching the magnitudes used for LLM
// providers elsewhere in the corpus.
const (
	defaultMaxFailures uint32        = 5
	defaultOpenTimeout time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// breakerProvider wraps a Provider with circuit breaker protection so a
// provider failing repeatedly fails fast instead of being retried into the
// ground by every concurrent session's invoker loop. Grounded on
// hieuntg81-alfred-ai's internal/adapter/llm/circuitbreaker.go.
type breakerProvider struct {
	inner   Provider
	breaker *gobreaker.CircuitBreaker[CallResult]
}

func wrapWithBreaker(p Provider, logger *slog.Logger) *breakerProvider {
	name := p.Name()
	cb := gobreaker.NewCircuitBreaker[CallResult](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1,
		Interval:    defaultInterval,
		Timeout:     defaultOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= defaultMaxFailures
		},
		OnStateChange: func(breakerName string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state change", "breaker", breakerName, "from", from.String(), "to", to.String())
		},
	})
	return &breakerProvider{inner: p, breaker: cb}
}

func (b *breakerProvider) Name() string { return b.inner.Name() }

func (b *breakerProvider) SupportsModel(model string) bool { return b.inner.SupportsModel(model) }

func (b *breakerProvider) Stream(ctx context.Context, req CallRequest, onDelta func(Delta)) (CallResult, error) {
	return b.breaker.Execute(func() (CallResult, error) {
		return b.inner.Stream(ctx, req, onDelta)
	})
}
