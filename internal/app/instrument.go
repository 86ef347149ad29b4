package app

import (
	"context"
	"time"

	"github.com/MrWong99/baristagate/internal/observe"
	"github.com/MrWong99/baristagate/pkg/provider/credentials"
)

// instrumentedCredentials records every real exchange. It sits under the
// cache, so cache hits are not counted.
type instrumentedCredentials struct {
	next    credentials.Provider
	metrics *observe.Metrics
}

func (p *instrumentedCredentials) Token(ctx context.Context) (*credentials.Credential, error) {
	ctx, span := observe.StartSpan(ctx, "credentials.exchange")
	defer span.End()

	start := time.Now()
	cred, err := p.next.Token(ctx)
	p.metrics.CredentialDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		observe.Fail(span, err)
		p.metrics.RecordProviderRequest(ctx, "federation", "credentials", observe.StatusError)
		p.metrics.RecordProviderError(ctx, "federation", "credentials")
		return nil, err
	}
	p.metrics.RecordProviderRequest(ctx, "federation", "credentials", observe.StatusOK)
	observe.Logger(ctx).DebugContext(ctx, "federated credential issued", "expiry", cred.Expiry)
	return cred, nil
}
