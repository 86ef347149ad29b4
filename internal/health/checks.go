package health

import (
	"context"
	"fmt"
	"time"

	"github.com/MrWong99/baristagate/internal/resilience"
	"github.com/MrWong99/baristagate/pkg/provider/credentials"
)

// CredentialsChecker reports ready when p can produce a usable credential.
// Backed by the shared cache, a probe costs nothing while the cached token is
// fresh and warms it otherwise.
func CredentialsChecker(p credentials.Provider) Checker {
	return Checker{
		Name: "credentials",
		Check: func(ctx context.Context) error {
			cred, err := p.Token(ctx)
			if err != nil {
				return err
			}
			if cred.Expired(time.Now(), 0) {
				return fmt.Errorf("credential already expired")
			}
			return nil
		},
	}
}

// BreakerChecker reports the state of cb as an optional dependency.
func BreakerChecker(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name:     cb.Name(),
		Optional: true,
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %s", s)
			}
			return nil
		},
	}
}
