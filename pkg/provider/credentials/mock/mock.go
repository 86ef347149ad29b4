// Package mock provides a test double for the credentials.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Credential: &credentials.Credential{BearerToken: "tok", Expiry: time.Now().Add(time.Hour)}}
//	cred, err := p.Token(ctx)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/baristagate/pkg/provider/credentials"
)

// Provider is a mock implementation of credentials.Provider.
type Provider struct {
	mu sync.Mutex

	// Credential is returned by Token. May be nil.
	Credential *credentials.Credential

	// Err, if non-nil, is returned by Token instead of Credential.
	Err error

	// Calls counts Token invocations.
	Calls int
}

// Token implements credentials.Provider.
func (p *Provider) Token(_ context.Context) (*credentials.Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls++
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Credential, nil
}

// CallCount returns the number of Token calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls
}
