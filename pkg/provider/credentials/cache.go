package credentials

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	// DefaultExpirySkew is how long before its Expiry a cached credential is
	// already treated as expired.
	DefaultExpirySkew = time.Minute

	// exchangeTimeout bounds one shared exchange. It runs detached from the
	// caller that started it, so a cancelled caller does not fail the others
	// waiting on the same exchange.
	exchangeTimeout = 30 * time.Second
)

// Cache wraps a Provider and reuses its credential until it expires. At most
// one exchange is in flight at a time; concurrent callers that find the cache
// empty or stale wait for that single exchange and share its result.
//
// The cache lives in process memory only. It is safe for concurrent use.
type Cache struct {
	provider Provider
	key      string
	skew     time.Duration
	now      func() time.Time

	group singleflight.Group

	mu   sync.Mutex
	cred *Credential
}

// CacheOption is a functional option for [Cache].
type CacheOption func(*Cache)

// WithExpirySkew overrides [DefaultExpirySkew]. Negative values are ignored.
func WithExpirySkew(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d >= 0 {
			c.skew = d
		}
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache returns a Cache in front of provider. key names the target
// identity and is used to deduplicate in-flight refreshes.
func NewCache(provider Provider, key string, opts ...CacheOption) *Cache {
	c := &Cache{
		provider: provider,
		key:      key,
		skew:     DefaultExpirySkew,
		now:      time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Token implements [Provider]. It returns the cached credential while it is
// fresh and otherwise runs the wrapped provider's exchange again.
func (c *Cache) Token(ctx context.Context) (*Credential, error) {
	if cred := c.current(); cred != nil {
		return cred, nil
	}

	ch := c.group.DoChan(c.key, func() (any, error) {
		// Another caller may have refreshed while we were queued.
		if cred := c.current(); cred != nil {
			return cred, nil
		}
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), exchangeTimeout)
		defer cancel()
		cred, err := c.provider.Token(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.cred = cred
		c.mu.Unlock()
		return cred, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credential), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate implements [Invalidator]. It drops the cached credential so the next Token call runs a fresh
// exchange.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.cred = nil
	c.mu.Unlock()
}

// current returns the cached credential if it is still fresh, or nil.
func (c *Cache) current() *Credential {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cred.Expired(c.now(), c.skew) {
		c.cred = nil
		return nil
	}
	return c.cred
}
