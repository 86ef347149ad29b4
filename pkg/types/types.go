// Package types defines the shared types used across all baristagate packages.
//
// These types form the lingua franca between the router, the prompt assembler
// and the providers. Each package keeps its own domain types; the cross-cutting
// ones live here to avoid circular imports.
package types

// Role values accepted on a [Message].
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of the caller-supplied conversation history.
// A conversation is an ordered slice of Messages; order is significant and is
// preserved through to the outbound model request.
type Message struct {
	// Role is "user" or "assistant". Unknown roles are treated as "user".
	Role string `json:"role"`

	// Content is the plain-text body of the turn.
	Content string `json:"content"`
}

// Passage is a single piece of reference text returned by a knowledge
// retriever. Passages keep the ranking order of the retrieval backend.
type Passage struct {
	// SourceLabel names where the passage came from (display name, URI or a
	// positional placeholder such as "Source 2").
	SourceLabel string

	// RelevanceScore is the backend's relevance score when reported. Nil means
	// the backend did not supply one.
	RelevanceScore *float64

	// Text is the passage body.
	Text string
}

// Result is the normalised outcome of a single model invocation.
type Result struct {
	// Text is the generated text, or a fixed fallback when the model produced
	// nothing.
	Text string

	// TokenCount is the total token usage reported by the model, or 0.
	TokenCount int

	// ModelID identifies the model that served the request.
	ModelID string
}
