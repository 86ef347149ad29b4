package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Operation names.
const (
	OpChat   = "geminiChat"
	OpVision = "geminiVision"
)

// KnownOperations lists every operation name the router accepts.
var KnownOperations = []string{OpChat, OpVision}

var (
	// ErrInvalidArguments is returned when the operation arguments cannot be
	// decoded or are malformed.
	ErrInvalidArguments = errors.New("gateway: invalid arguments")

	// ErrMissingImage is returned when a vision request carries no image.
	ErrMissingImage = errors.New("gateway: imageBase64 is required")
)

// OperationNotFoundError is returned for an operation name the router does
// not know.
type OperationNotFoundError struct {
	Name  string
	Known []string
}

// Error implements error.
func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("gateway: unknown operation %q (valid: %s)", e.Name, strings.Join(e.Known, ", "))
}

// Envelope is one invocation as delivered by the host.
//
// The GraphQL resolver shape carries the operation in info.fieldName and its
// arguments under "arguments". Direct invocations may instead put fieldName
// at the top level next to the arguments themselves.
type Envelope struct {
	FieldName string
	Arguments json.RawMessage
}

type rawEnvelope struct {
	Info *struct {
		FieldName string `json:"fieldName"`
	} `json:"info"`
	FieldName string          `json:"fieldName"`
	Arguments json.RawMessage `json:"arguments"`
}

// UnmarshalJSON implements json.Unmarshaler for both envelope shapes.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var raw rawEnvelope
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	e.FieldName = raw.FieldName
	if raw.Info != nil && raw.Info.FieldName != "" {
		e.FieldName = raw.Info.FieldName
	}
	e.Arguments = raw.Arguments
	if len(raw.Arguments) == 0 || string(raw.Arguments) == "null" {
		e.Arguments = append(json.RawMessage(nil), data...)
	}
	return nil
}

// Operation is a decoded, validated request. The set of implementations is
// closed: [ChatOperation] and [VisionOperation].
type Operation interface {
	// Name returns the operation name as addressed by callers.
	Name() string

	operation()
}

// ChatOperation is a conversational turn with optional base instruction.
type ChatOperation struct {
	// Messages are JSON-encoded {role, content} objects in conversation order.
	Messages []string `json:"messages"`

	// SystemPrompt is an optional base instruction.
	SystemPrompt string `json:"systemPrompt"`
}

// Name implements [Operation].
func (ChatOperation) Name() string { return OpChat }
func (ChatOperation) operation()   {}

// VisionOperation asks the model to describe an image.
type VisionOperation struct {
	// ImageBase64 is a base64-encoded JPEG.
	ImageBase64 string `json:"imageBase64"`

	// Prompt replaces the default analysis question when set.
	Prompt string `json:"prompt"`
}

// Name implements [Operation].
func (VisionOperation) Name() string { return OpVision }
func (VisionOperation) operation()   {}

// Resolve decodes env into its [Operation]. It performs no I/O.
func Resolve(env Envelope) (Operation, error) {
	switch env.FieldName {
	case OpChat:
		var op ChatOperation
		if err := decodeArgs(env.Arguments, &op); err != nil {
			return nil, err
		}
		if op.Messages == nil {
			return nil, fmt.Errorf("%w: messages is required", ErrInvalidArguments)
		}
		return op, nil
	case OpVision:
		var op VisionOperation
		if err := decodeArgs(env.Arguments, &op); err != nil {
			return nil, err
		}
		if op.ImageBase64 == "" {
			return nil, ErrMissingImage
		}
		return op, nil
	default:
		return nil, &OperationNotFoundError{Name: env.FieldName, Known: KnownOperations}
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}
