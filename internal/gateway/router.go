// Package gateway routes host invocations to the chat and vision flows.
//
// A [Router] resolves the operation named in an [Envelope], runs the matching
// flow (knowledge retrieval, prompt assembly and model invocation for chat;
// a single image turn for vision) and returns the result as a JSON string.
// Retrieval is best-effort. Credential and model failures are returned to the
// host unchanged in the error chain.
package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/genai"

	"github.com/MrWong99/baristagate/internal/observe"
	"github.com/MrWong99/baristagate/internal/prompt"
	"github.com/MrWong99/baristagate/pkg/provider/generative"
	"github.com/MrWong99/baristagate/pkg/provider/retrieval"
)

// DefaultVisionPrompt is sent when a vision request carries no prompt.
const DefaultVisionPrompt = "What kind of coffee beans or equipment is in this image? " +
	"Provide details about origin, roast level, grinder type, or any other relevant information."

// ChatResult is the JSON payload returned by the chat operation.
type ChatResult struct {
	Response   string `json:"response"`
	TokensUsed int    `json:"tokensUsed"`
	ModelUsed  string `json:"modelUsed"`
}

// VisionResult is the JSON payload returned by the vision operation.
type VisionResult struct {
	Analysis   string `json:"analysis"`
	TokensUsed int    `json:"tokensUsed"`
}

// Router dispatches invocations. It holds no per-request state and is safe
// for concurrent use.
type Router struct {
	retriever retrieval.Retriever
	client    generative.Client
	metrics   *observe.Metrics
}

// Option is a functional option for [Router].
type Option func(*Router)

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

// NewRouter creates a Router. A nil retriever disables retrieval.
func NewRouter(retriever retrieval.Retriever, client generative.Client, opts ...Option) *Router {
	if retriever == nil {
		retriever = retrieval.Nop{}
	}
	r := &Router{retriever: retriever, client: client}
	for _, o := range opts {
		o(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r
}

// Handle runs one invocation and returns the JSON-encoded result.
func (r *Router) Handle(ctx context.Context, env Envelope) (string, error) {
	ctx, span := observe.StartSpan(ctx, "gateway.handle")
	defer span.End()
	span.SetAttributes(attribute.String("gateway.operation", env.FieldName))

	r.metrics.InFlight.Add(ctx, 1)
	defer r.metrics.InFlight.Add(ctx, -1)
	start := time.Now()

	out, err := r.handle(ctx, env)

	status := observe.StatusOK
	if err != nil {
		status = observe.StatusError
		observe.Fail(span, err)
	}
	r.metrics.RecordInvocation(ctx, operationLabel(env.FieldName), status, time.Since(start).Seconds())
	return out, err
}

func (r *Router) handle(ctx context.Context, env Envelope) (string, error) {
	log := observe.Logger(ctx)

	op, err := Resolve(env)
	if err != nil {
		log.WarnContext(ctx, "rejected invocation",
			slog.String("operation", env.FieldName),
			slog.Any("err", err),
		)
		return "", err
	}

	switch op := op.(type) {
	case ChatOperation:
		log.InfoContext(ctx, "invocation",
			slog.String("operation", op.Name()),
			slog.Int("messages", len(op.Messages)),
			slog.Bool("system_prompt", op.SystemPrompt != ""),
		)
		return r.chat(ctx, op)
	case VisionOperation:
		log.InfoContext(ctx, "invocation",
			slog.String("operation", op.Name()),
			slog.Int("image_base64_bytes", len(op.ImageBase64)),
			slog.Bool("custom_prompt", op.Prompt != ""),
		)
		return r.vision(ctx, op)
	default:
		panic(fmt.Sprintf("gateway: unhandled operation %T", op))
	}
}

func (r *Router) chat(ctx context.Context, op ChatOperation) (string, error) {
	msgs, err := prompt.ParseMessages(op.Messages)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	passages := r.retriever.Retrieve(ctx, prompt.LastUserMessage(msgs))
	req := prompt.Assemble(msgs, op.SystemPrompt, passages)

	resp, err := r.generate(ctx, req)
	if err != nil {
		return "", err
	}

	model := r.client.ModelID(generative.ModalityChat)
	res := Normalize(resp, generative.ModalityChat, model)
	observe.Logger(ctx).InfoContext(ctx, "chat completed",
		slog.String("model", model),
		slog.Int("passages", len(passages)),
		slog.Int("tokens", res.TokenCount),
	)
	return encode(ChatResult{Response: res.Text, TokensUsed: res.TokenCount, ModelUsed: res.ModelID})
}

func (r *Router) vision(ctx context.Context, op VisionOperation) (string, error) {
	image, err := base64.StdEncoding.DecodeString(op.ImageBase64)
	if err != nil {
		return "", fmt.Errorf("%w: imageBase64: %v", ErrInvalidArguments, err)
	}
	text := op.Prompt
	if text == "" {
		text = DefaultVisionPrompt
	}

	resp, err := r.generate(ctx, prompt.AssembleVision(text, image))
	if err != nil {
		return "", err
	}

	res := Normalize(resp, generative.ModalityVision, r.client.ModelID(generative.ModalityVision))
	return encode(VisionResult{Analysis: res.Text, TokensUsed: res.TokenCount})
}

// generate calls the model once and records its latency and outcome.
func (r *Router) generate(ctx context.Context, req generative.Request) (*genai.GenerateContentResponse, error) {
	ctx, span := observe.StartSpan(ctx, "model.generate")
	defer span.End()

	model := r.client.ModelID(req.Modality)
	span.SetAttributes(
		attribute.String("model.id", model),
		attribute.String("model.modality", req.Modality.String()),
	)

	start := time.Now()
	resp, err := r.client.Generate(ctx, req)
	r.metrics.ModelDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("modality", req.Modality.String())),
	)
	if err != nil {
		observe.Fail(span, err)
		r.metrics.RecordProviderRequest(ctx, model, "model", observe.StatusError)
		r.metrics.RecordProviderError(ctx, model, "model")
		return nil, fmt.Errorf("gateway: %s: %w", req.Modality, err)
	}
	r.metrics.RecordProviderRequest(ctx, model, "model", observe.StatusOK)
	return resp, nil
}

func encode(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("gateway: encode result: %w", err)
	}
	return string(b), nil
}

// operationLabel bounds the metric label to known names.
func operationLabel(name string) string {
	for _, k := range KnownOperations {
		if name == k {
			return name
		}
	}
	return "unknown"
}
