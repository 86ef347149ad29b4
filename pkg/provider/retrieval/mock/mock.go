// Package mock provides a test double for the retrieval.Retriever interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/baristagate/pkg/types"
)

// Retriever is a mock implementation of retrieval.Retriever and
// retrieval.Source.
type Retriever struct {
	mu sync.Mutex

	// Passages is returned by Retrieve when Err is nil.
	Passages []types.Passage

	// Err, if non-nil, is returned by RetrieveWithErr; Retrieve then yields
	// nil passages.
	Err error

	// Queries records every query in call order.
	Queries []string
}

// Retrieve implements retrieval.Retriever.
func (r *Retriever) Retrieve(ctx context.Context, query string) []types.Passage {
	passages, err := r.RetrieveWithErr(ctx, query)
	if err != nil {
		return nil
	}
	return passages
}

// RetrieveWithErr implements retrieval.Source.
func (r *Retriever) RetrieveWithErr(_ context.Context, query string) ([]types.Passage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Queries = append(r.Queries, query)
	if r.Err != nil {
		return nil, r.Err
	}
	out := make([]types.Passage, len(r.Passages))
	copy(out, r.Passages)
	return out, nil
}

// CallCount returns the number of lookups so far.
func (r *Retriever) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Queries)
}
