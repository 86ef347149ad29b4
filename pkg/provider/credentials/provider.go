// Package credentials defines the Provider interface for short-lived bearer
// credentials accepted by the remote (Google Cloud) APIs.
//
// A Provider hides how a credential is minted. The production implementation
// in the federation sub-package converts the local AWS execution identity into
// a Google access token through workload identity federation; [Cache] adds
// in-memory reuse until expiry on top of any Provider.
//
// Credentials are never written to durable storage. [Credential] implements
// [slog.LogValuer] so an accidentally logged credential prints redacted.
package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Credential is a bearer token together with the instant it stops being valid.
type Credential struct {
	// BearerToken is the opaque access token sent as "Authorization: Bearer".
	BearerToken string

	// Expiry is the instant after which the token must not be used. A zero
	// Expiry is treated as already expired.
	Expiry time.Time
}

// Expired reports whether c should be considered unusable at now, treating
// the final skew of its lifetime as expired.
func (c *Credential) Expired(now time.Time, skew time.Duration) bool {
	if c == nil || c.BearerToken == "" || c.Expiry.IsZero() {
		return true
	}
	return !now.Add(skew).Before(c.Expiry)
}

// LogValue implements [slog.LogValuer]. The token itself is never emitted.
func (c *Credential) LogValue() slog.Value {
	if c == nil {
		return slog.StringValue("<nil>")
	}
	return slog.GroupValue(
		slog.String("bearer_token", "REDACTED"),
		slog.Time("expiry", c.Expiry),
	)
}

// Provider mints bearer credentials for the remote cloud.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
type Provider interface {
	// Token returns a credential valid at the time of the call. Failures are
	// reported as *Error naming the step that failed.
	Token(ctx context.Context) (*Credential, error)
}

// ProviderFunc adapts a plain function to [Provider].
type ProviderFunc func(ctx context.Context) (*Credential, error)

// Token implements [Provider].
func (f ProviderFunc) Token(ctx context.Context) (*Credential, error) { return f(ctx) }

// Static returns a Provider that always yields cred. Used once a credential
// has been obtained for the current invocation.
func Static(cred *Credential) Provider {
	return ProviderFunc(func(context.Context) (*Credential, error) { return cred, nil })
}

// Invalidator is implemented by providers that reuse credentials across
// calls, such as [Cache].
type Invalidator interface {
	// Invalidate discards the reused credential.
	Invalidate()
}

// Invalidate discards the credential p is reusing, if any. Call it when an
// upstream rejects a token that has not yet expired.
func Invalidate(p Provider) {
	if i, ok := p.(Invalidator); ok {
		i.Invalidate()
	}
}

// Hop identifies one step of the credential exchange.
type Hop string

const (
	// HopSubjectToken produces the signed local identity assertion.
	HopSubjectToken Hop = "subject_token"

	// HopExchange trades the subject token for a federated access token.
	HopExchange Hop = "sts_exchange"

	// HopImpersonation trades the federated token for a service account token.
	HopImpersonation Hop = "impersonation"
)

// Error is returned when any hop of the credential exchange fails. The whole
// exchange is void; no partial state is usable.
type Error struct {
	// Hop is the step that failed.
	Hop Hop

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	return fmt.Sprintf("credentials: %s hop failed: %v", e.Hop, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }
