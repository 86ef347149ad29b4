package resilience

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/MrWong99/baristagate/internal/observe"
	"github.com/MrWong99/baristagate/pkg/provider/retrieval"
	"github.com/MrWong99/baristagate/pkg/types"
)

var _ retrieval.Retriever = (*GuardedRetriever)(nil)

// Degradation reasons recorded on [observe.Metrics.RetrievalDegradations].
const (
	ReasonCircuitOpen   = "circuit_open"
	ReasonUpstreamError = "upstream_error"
	ReasonCanceled      = "canceled"
)

// GuardedRetriever puts a [CircuitBreaker] in front of a [retrieval.Source].
// It keeps the Retriever contract: every failure, including an open circuit,
// yields an empty result.
type GuardedRetriever struct {
	source  retrieval.Source
	breaker *CircuitBreaker
	metrics *observe.Metrics
}

// NewGuardedRetriever wraps source with a breaker built from cfg. A nil
// metrics uses [observe.DefaultMetrics].
func NewGuardedRetriever(source retrieval.Source, cfg CircuitBreakerConfig, metrics *observe.Metrics) *GuardedRetriever {
	if cfg.Name == "" {
		cfg.Name = "retrieval"
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &GuardedRetriever{
		source:  source,
		breaker: NewCircuitBreaker(cfg),
		metrics: metrics,
	}
}

// Breaker exposes the underlying breaker for health reporting.
func (g *GuardedRetriever) Breaker() *CircuitBreaker { return g.breaker }

// Retrieve implements [retrieval.Retriever].
func (g *GuardedRetriever) Retrieve(ctx context.Context, query string) []types.Passage {
	ctx, span := observe.StartSpan(ctx, "retrieval.retrieve")
	defer span.End()

	start := time.Now()
	var passages []types.Passage
	err := g.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		passages, err = g.source.RetrieveWithErr(ctx, query)
		return err
	})
	g.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())

	if err == nil {
		g.metrics.RecordProviderRequest(ctx, g.breaker.Name(), "retrieval", observe.StatusOK)
		return passages
	}

	reason := ReasonUpstreamError
	switch {
	case errors.Is(err, ErrCircuitOpen):
		reason = ReasonCircuitOpen
	case ctx.Err() != nil:
		reason = ReasonCanceled
	default:
		g.metrics.RecordProviderRequest(ctx, g.breaker.Name(), "retrieval", observe.StatusError)
		g.metrics.RecordProviderError(ctx, g.breaker.Name(), "retrieval")
	}
	g.metrics.RecordRetrievalDegraded(ctx, reason)
	observe.Logger(ctx).WarnContext(ctx, "knowledge retrieval degraded, continuing without reference data",
		slog.String("reason", reason),
		slog.Any("err", err),
	)
	return nil
}
