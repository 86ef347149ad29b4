package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/baristagate/internal/resilience"
	"github.com/MrWong99/baristagate/pkg/provider/credentials"
	"github.com/MrWong99/baristagate/pkg/provider/credentials/mock"
)

func TestCredentialsChecker(t *testing.T) {
	tests := []struct {
		name    string
		p       *mock.Provider
		wantErr bool
	}{
		{
			name: "fresh token",
			p:    &mock.Provider{Credential: &credentials.Credential{BearerToken: "ya29", Expiry: time.Now().Add(time.Hour)}},
		},
		{
			name:    "exchange fails",
			p:       &mock.Provider{Err: &credentials.Error{Hop: credentials.HopExchange, Err: errors.New("denied")}},
			wantErr: true,
		},
		{
			name:    "expired token",
			p:       &mock.Provider{Credential: &credentials.Credential{BearerToken: "ya29", Expiry: time.Now().Add(-time.Minute)}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CredentialsChecker(tt.p)
			if c.Optional {
				t.Error("credentials checker must be required")
			}
			err := c.Check(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBreakerChecker(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "retrieval",
		MaxFailures:  1,
		ResetTimeout: time.Hour,
	})
	c := BreakerChecker(cb)
	if !c.Optional || c.Name != "retrieval" {
		t.Fatalf("checker = %+v, want optional retrieval", c)
	}
	if err := c.Check(context.Background()); err != nil {
		t.Fatalf("closed breaker: %v", err)
	}

	_ = cb.ExecuteContext(context.Background(), func(context.Context) error { return errors.New("corpus unavailable") })
	if err := c.Check(context.Background()); err == nil {
		t.Fatal("open breaker should fail the check")
	}
}
