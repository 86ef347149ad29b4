// Package vertex implements generative.Client on Vertex AI Gemini using the
// google.golang.org/genai SDK.
//
// Every call first obtains a bearer credential from a credentials.Provider so
// that credential failures surface with their own error type, then issues a
// single generateContent request against the regional endpoint of the
// configured project.
package vertex

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"

	"github.com/MrWong99/baristagate/pkg/provider/credentials"
	"github.com/MrWong99/baristagate/pkg/provider/generative"
)

const (
	// DefaultChatModel serves text conversations.
	DefaultChatModel = "gemini-2.0-flash-lite-001"

	// DefaultVisionModel serves image analysis.
	DefaultVisionModel = "gemini-2.0-flash-001"

	apiVersion = "v1"
)

// Compile-time interface assertion.
var _ generative.Client = (*Client)(nil)

// Config is the immutable model-serving setup.
type Config struct {
	// Project is the Google Cloud project ID.
	Project string

	// Region is the model-serving location (e.g. "us-south1").
	Region string

	// ChatModel overrides [DefaultChatModel].
	ChatModel string

	// VisionModel overrides [DefaultVisionModel].
	VisionModel string

	// BaseURL overrides the regional endpoint. Used in tests.
	BaseURL string
}

// Client implements generative.Client. It is safe for concurrent use.
type Client struct {
	cfg   Config
	creds credentials.Provider
	base  http.RoundTripper
}

// Option is a functional option for [Client].
type Option func(*Client)

// WithTransport sets the base HTTP transport under the bearer-token layer.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.base = rt }
}

// New constructs a Client. Project and Region are required.
func New(cfg Config, creds credentials.Provider, opts ...Option) (*Client, error) {
	if creds == nil {
		return nil, fmt.Errorf("vertex: credentials provider must not be nil")
	}
	if cfg.Project == "" {
		return nil, fmt.Errorf("vertex: project must not be empty")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("vertex: region must not be empty")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = DefaultChatModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = DefaultVisionModel
	}
	c := &Client{cfg: cfg, creds: creds}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ModelID implements generative.Client.
func (c *Client) ModelID(m generative.Modality) string {
	if m == generative.ModalityVision {
		return c.cfg.VisionModel
	}
	return c.cfg.ChatModel
}

// Generate implements generative.Client.
func (c *Client) Generate(ctx context.Context, req generative.Request) (*genai.GenerateContentResponse, error) {
	model := c.ModelID(req.Modality)

	cred, err := c.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("vertex: %w", err)
	}

	gc, err := c.newGenAIClient(ctx, cred)
	if err != nil {
		return nil, &generative.UpstreamError{Model: model, Err: fmt.Errorf("create client: %w", err)}
	}

	resp, err := gc.Models.GenerateContent(ctx, model, toContents(req.Contents), toConfig(req))
	if err != nil {
		err = upstreamError(model, err)
		var ue *generative.UpstreamError
		if errors.As(err, &ue) && ue.StatusCode == http.StatusUnauthorized {
			credentials.Invalidate(c.creds)
		}
		return nil, err
	}
	return resp, nil
}

// newGenAIClient builds a genai client bound to cred for one call.
func (c *Client) newGenAIClient(ctx context.Context, cred *credentials.Credential) (*genai.Client, error) {
	static := credentials.Static(cred)
	cc := &genai.ClientConfig{
		Backend:     genai.BackendVertexAI,
		Project:     c.cfg.Project,
		Location:    c.cfg.Region,
		Credentials: credentials.AuthCredentials(static),
		HTTPClient: &http.Client{
			Transport: &credentials.Transport{Source: static, Base: c.base},
		},
		HTTPOptions: genai.HTTPOptions{
			APIVersion: apiVersion,
			BaseURL:    c.cfg.BaseURL,
		},
	}
	return genai.NewClient(ctx, cc)
}

// toContents converts request turns to genai contents, preserving order.
func toContents(turns []generative.Turn) []*genai.Content {
	out := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		content := &genai.Content{Role: t.Role}
		for _, p := range t.Parts {
			if p.InlineData != nil {
				content.Parts = append(content.Parts, &genai.Part{
					InlineData: &genai.Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data},
				})
				continue
			}
			content.Parts = append(content.Parts, &genai.Part{Text: p.Text})
		}
		out = append(out, content)
	}
	return out
}

// toConfig maps the system instruction and sampling parameters.
func toConfig(req generative.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.Params.Temperature),
		MaxOutputTokens: req.Params.MaxOutputTokens,
		TopP:            req.Params.TopP,
	}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}
	return cfg
}

// upstreamError wraps a genai failure, keeping credential errors and
// extracting the HTTP status from API errors.
func upstreamError(model string, err error) error {
	var credErr *credentials.Error
	if errors.As(err, &credErr) {
		return fmt.Errorf("vertex: %w", err)
	}
	ue := &generative.UpstreamError{Model: model, Err: err}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		ue.StatusCode = apiErr.Code
		ue.Status = apiErr.Status
		ue.Message = apiErr.Message
	}
	return ue
}
