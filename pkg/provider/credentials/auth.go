package credentials

import (
	"context"
	"fmt"
	"net/http"

	"cloud.google.com/go/auth"
)

// authTokenProvider adapts a Provider to [auth.TokenProvider].
type authTokenProvider struct {
	p Provider
}

// Token implements [auth.TokenProvider].
func (a authTokenProvider) Token(ctx context.Context) (*auth.Token, error) {
	cred, err := a.p.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &auth.Token{
		Value:  cred.BearerToken,
		Type:   "Bearer",
		Expiry: cred.Expiry,
	}, nil
}

// AuthCredentials exposes p as Google Cloud client credentials so SDK clients
// that take [auth.Credentials] can authenticate with it.
func AuthCredentials(p Provider) *auth.Credentials {
	return auth.NewCredentials(&auth.CredentialsOptions{
		TokenProvider: authTokenProvider{p: p},
	})
}

// Transport is an [http.RoundTripper] that adds a bearer token from Source to
// every outgoing request.
type Transport struct {
	// Source supplies the credential. Required.
	Source Provider

	// Base is the underlying transport. Nil means http.DefaultTransport.
	Base http.RoundTripper
}

// RoundTrip implements [http.RoundTripper].
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	cred, err := t.Source.Token(req.Context())
	if err != nil {
		return nil, err
	}
	if cred == nil || cred.BearerToken == "" {
		return nil, fmt.Errorf("credentials: empty bearer token")
	}
	// RoundTrippers must not modify the caller's request.
	r := req.Clone(req.Context())
	r.Header.Set("Authorization", "Bearer "+cred.BearerToken)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(r)
}
