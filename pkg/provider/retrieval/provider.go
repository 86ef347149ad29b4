// Package retrieval defines the Retriever interface for best-effort knowledge
// lookups that enrich a model prompt.
//
// Retrieval is an enrichment, never a precondition: a Retriever never fails
// towards its caller. Any internal failure is logged and collapses to an empty
// result, indistinguishable from "no matches".
package retrieval

import (
	"context"

	"github.com/MrWong99/baristagate/pkg/types"
)

// Retriever looks up reference passages relevant to a query.
//
// Implementations must be safe for concurrent use and must honour context
// cancellation by returning early with an empty result.
type Retriever interface {
	// Retrieve returns passages for query in backend ranking order. It never
	// returns an error; failures yield a nil slice.
	Retrieve(ctx context.Context, query string) []types.Passage
}

// Source is implemented by retrievers that can also report why a lookup
// failed. Resilience wrappers use it to count failures; the plain Retriever
// contract still hides them from the request flow.
type Source interface {
	Retriever

	// RetrieveWithErr is like Retrieve but surfaces the failure cause.
	RetrieveWithErr(ctx context.Context, query string) ([]types.Passage, error)
}

// Nop is a Retriever that never finds anything. It is used when no corpus is
// configured.
type Nop struct{}

// Retrieve implements [Retriever].
func (Nop) Retrieve(context.Context, string) []types.Passage { return nil }
