// Package generative defines the Client interface for hosted generative
// models and the model-agnostic request shape sent to them.
//
// A Request carries ordered conversation turns, an optional system instruction
// on its own channel, and per-modality generation parameters. Clients return
// the upstream response envelope unchanged; turning it into a uniform result
// is the caller's job.
package generative

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// Modality is the input/output mode of a generative request.
type Modality int

const (
	// ModalityChat is a text conversation.
	ModalityChat Modality = iota

	// ModalityVision is single-turn image analysis.
	ModalityVision
)

// String returns the lower-case modality name used in logs and metrics.
func (m Modality) String() string {
	switch m {
	case ModalityChat:
		return "chat"
	case ModalityVision:
		return "vision"
	default:
		return "unknown"
	}
}

// Turn roles in the outbound request.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Blob is inline binary data embedded in a turn.
type Blob struct {
	MIMEType string
	Data     []byte
}

// Part is one piece of a turn: text or inline data.
type Part struct {
	Text       string
	InlineData *Blob
}

// Turn is one entry of the request contents.
type Turn struct {
	// Role is [RoleUser] or [RoleModel].
	Role  string
	Parts []Part
}

// Params are the sampling parameters of a request.
type Params struct {
	Temperature     float32
	MaxOutputTokens int32

	// TopP is nil when nucleus sampling is left at the model default.
	TopP *float32
}

// Request is a single outbound model request.
type Request struct {
	Modality Modality

	// Contents are the conversation turns in order.
	Contents []Turn

	// SystemInstruction is sent on the dedicated system channel. Empty means
	// the field is omitted.
	SystemInstruction string

	Params Params
}

// Client invokes a hosted generative model.
//
// Implementations must be safe for concurrent use. A Client makes exactly one
// attempt per call; retry policy belongs to the caller.
type Client interface {
	// Generate sends req to the model configured for req.Modality and returns
	// the raw response envelope. Transport failures and non-success statuses
	// are returned as *UpstreamError; credential failures keep their own type
	// in the error chain.
	Generate(ctx context.Context, req Request) (*genai.GenerateContentResponse, error)

	// ModelID returns the model identifier used for modality m.
	ModelID(m Modality) string
}

// UpstreamError reports a failed model invocation.
type UpstreamError struct {
	// Model is the model identifier that was called.
	Model string

	// StatusCode is the upstream HTTP status, or 0 for transport failures.
	StatusCode int

	// Status is the upstream status name (e.g. "RESOURCE_EXHAUSTED"), if any.
	Status string

	// Message is the upstream error message, if any.
	Message string

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("generative: model %s returned %d %s: %s", e.Model, e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("generative: model %s: %v", e.Model, e.Err)
}

// Unwrap returns the underlying cause.
func (e *UpstreamError) Unwrap() error { return e.Err }
