package credentials_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/baristagate/pkg/provider/credentials"
	"github.com/MrWong99/baristagate/pkg/provider/credentials/mock"
)

func TestCredential_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		cred *credentials.Credential
		skew time.Duration
		want bool
	}{
		{"nil", nil, 0, true},
		{"empty token", &credentials.Credential{Expiry: now.Add(time.Hour)}, 0, true},
		{"zero expiry", &credentials.Credential{BearerToken: "t"}, 0, true},
		{"fresh", &credentials.Credential{BearerToken: "t", Expiry: now.Add(time.Hour)}, time.Minute, false},
		{"inside skew", &credentials.Credential{BearerToken: "t", Expiry: now.Add(30 * time.Second)}, time.Minute, true},
		{"past", &credentials.Credential{BearerToken: "t", Expiry: now.Add(-time.Second)}, 0, true},
		{"exactly at expiry", &credentials.Credential{BearerToken: "t", Expiry: now}, 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cred.Expired(now, tc.skew); got != tc.want {
				t.Errorf("Expired = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCache_ReusesFreshCredential(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := &mock.Provider{Credential: &credentials.Credential{BearerToken: "tok", Expiry: now.Add(time.Hour)}}
	c := credentials.NewCache(p, "sa@example", credentials.WithClock(func() time.Time { return now }))

	for i := 0; i < 3; i++ {
		cred, err := c.Token(context.Background())
		if err != nil {
			t.Fatalf("Token: %v", err)
		}
		if cred.BearerToken != "tok" {
			t.Errorf("token = %q, want %q", cred.BearerToken, "tok")
		}
	}
	if n := p.CallCount(); n != 1 {
		t.Errorf("provider calls = %d, want 1", n)
	}
}

func TestCache_RefreshesAfterExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := now
	p := &mock.Provider{Credential: &credentials.Credential{BearerToken: "tok", Expiry: now.Add(10 * time.Minute)}}
	c := credentials.NewCache(p, "sa@example",
		credentials.WithClock(func() time.Time { return clock }),
		credentials.WithExpirySkew(time.Minute),
	)

	if _, err := c.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	// Inside the skew window the credential counts as expired.
	clock = now.Add(9*time.Minute + 30*time.Second)
	if _, err := c.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if n := p.CallCount(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}
}

func TestCache_ErrorIsNotCached(t *testing.T) {
	hopErr := &credentials.Error{Hop: credentials.HopExchange, Err: errors.New("denied")}
	p := &mock.Provider{Err: hopErr}
	c := credentials.NewCache(p, "sa@example")

	_, err := c.Token(context.Background())
	var ce *credentials.Error
	if !errors.As(err, &ce) {
		t.Fatalf("err = %v, want *credentials.Error", err)
	}
	if ce.Hop != credentials.HopExchange {
		t.Errorf("hop = %q, want %q", ce.Hop, credentials.HopExchange)
	}

	_, _ = c.Token(context.Background())
	if n := p.CallCount(); n != 2 {
		t.Errorf("provider calls = %d, want 2 (errors must not be cached)", n)
	}
}

func TestCache_Invalidate(t *testing.T) {
	p := &mock.Provider{Credential: &credentials.Credential{BearerToken: "tok", Expiry: time.Now().Add(time.Hour)}}
	c := credentials.NewCache(p, "sa@example")

	_, _ = c.Token(context.Background())
	c.Invalidate()
	_, _ = c.Token(context.Background())
	if n := p.CallCount(); n != 2 {
		t.Errorf("provider calls = %d, want 2", n)
	}
}

func TestCache_SingleExchangeInFlight(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	p := credentials.ProviderFunc(func(ctx context.Context) (*credentials.Credential, error) {
		calls.Add(1)
		<-release
		return &credentials.Credential{BearerToken: "tok", Expiry: time.Now().Add(time.Hour)}, nil
	})
	c := credentials.NewCache(p, "sa@example")

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Token(context.Background())
			errs <- err
		}()
	}

	// Give the goroutines time to queue on the in-flight exchange.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Token: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("exchanges = %d, want 1", got)
	}
}

func TestCache_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	p := credentials.ProviderFunc(func(ctx context.Context) (*credentials.Credential, error) {
		<-block
		return nil, errors.New("unreachable")
	})
	c := credentials.NewCache(p, "sa@example")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Token(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestCache_CancelledLeaderDoesNotFailWaiters(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	p := credentials.ProviderFunc(func(ctx context.Context) (*credentials.Credential, error) {
		close(started)
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &credentials.Credential{BearerToken: "shared", Expiry: time.Now().Add(time.Hour)}, nil
	})
	c := credentials.NewCache(p, "sa@example")

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := c.Token(leaderCtx)
		leaderErr <- err
	}()
	<-started

	waiter := make(chan *credentials.Credential, 1)
	go func() {
		cred, _ := c.Token(context.Background())
		waiter <- cred
	}()

	cancelLeader()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("leader err = %v, want context.Canceled", err)
	}
	close(release)

	select {
	case cred := <-waiter:
		if cred == nil || cred.BearerToken != "shared" {
			t.Fatalf("waiter credential = %+v, want shared token", cred)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("waiter did not receive the shared credential")
	}
}

func TestInvalidate_DropsCachedCredential(t *testing.T) {
	p := &mock.Provider{Credential: &credentials.Credential{BearerToken: "tok", Expiry: time.Now().Add(time.Hour)}}
	var provider credentials.Provider = credentials.NewCache(p, "sa@example")

	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	credentials.Invalidate(provider)
	if _, err := provider.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if p.CallCount() != 2 {
		t.Errorf("exchanges = %d, want 2 after Invalidate", p.CallCount())
	}

	// Providers without a reused credential are left alone.
	credentials.Invalidate(p)
	if p.CallCount() != 2 {
		t.Errorf("Invalidate called Token on a plain provider")
	}
}
