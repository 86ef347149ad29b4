// Package vertexrag provides a retrieval.Retriever backed by a Vertex AI RAG
// Engine corpus.
//
// Lookups go to the regional retrieveContexts endpoint with a bearer token
// from a credentials.Provider. The retriever is best-effort: Retrieve logs and
// swallows every failure, while RetrieveWithErr exposes it to resilience
// wrappers.
package vertexrag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/MrWong99/baristagate/pkg/provider/credentials"
	"github.com/MrWong99/baristagate/pkg/provider/retrieval"
	"github.com/MrWong99/baristagate/pkg/types"
)

const (
	// DefaultTopK is the maximum number of passages requested.
	DefaultTopK = 5

	// DefaultDistanceThreshold is the vector distance cutoff; contexts further
	// away are dropped by the backend.
	DefaultDistanceThreshold = 0.3

	maxErrorBody = 4 << 10
)

// Compile-time interface assertions.
var (
	_ retrieval.Retriever = (*Retriever)(nil)
	_ retrieval.Source    = (*Retriever)(nil)
)

// Config is the immutable retrieval setup.
type Config struct {
	// Project is the Google Cloud project ID.
	Project string

	// Region hosts the RAG corpus (e.g. "us-south1").
	Region string

	// Corpus is the full corpus resource name
	// ("projects/{p}/locations/{l}/ragCorpora/{id}").
	Corpus string

	// TopK overrides [DefaultTopK].
	TopK int

	// DistanceThreshold overrides [DefaultDistanceThreshold].
	DistanceThreshold float64

	// BaseURL overrides the regional endpoint
	// ("https://{region}-aiplatform.googleapis.com"). Used in tests.
	BaseURL string
}

// Retriever implements retrieval.Retriever against Vertex AI RAG Engine.
// It is safe for concurrent use.
type Retriever struct {
	cfg        Config
	creds      credentials.Provider
	httpClient *http.Client
}

// Option is a functional option for [Retriever].
type Option func(*Retriever)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(r *Retriever) { r.httpClient = c }
}

// New constructs a Retriever. Project, Region and Corpus are required.
func New(cfg Config, creds credentials.Provider, opts ...Option) (*Retriever, error) {
	if creds == nil {
		return nil, fmt.Errorf("vertexrag: credentials provider must not be nil")
	}
	switch {
	case cfg.Project == "":
		return nil, fmt.Errorf("vertexrag: project must not be empty")
	case cfg.Region == "":
		return nil, fmt.Errorf("vertexrag: region must not be empty")
	case cfg.Corpus == "":
		return nil, fmt.Errorf("vertexrag: corpus must not be empty")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.DistanceThreshold <= 0 {
		cfg.DistanceThreshold = DefaultDistanceThreshold
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com", cfg.Region)
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	r := &Retriever{
		cfg:        cfg,
		creds:      creds,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

// retrieveRequest is the JSON body of retrieveContexts.
type retrieveRequest struct {
	VertexRagStore ragStore `json:"vertexRagStore"`
	Query          ragQuery `json:"query"`
}

type ragStore struct {
	RagResources []ragResource `json:"ragResources"`
}

type ragResource struct {
	RagCorpus string `json:"ragCorpus"`
}

type ragQuery struct {
	Text               string             `json:"text"`
	RagRetrievalConfig ragRetrievalConfig `json:"ragRetrievalConfig"`
}

type ragRetrievalConfig struct {
	TopK   int       `json:"topK"`
	Filter ragFilter `json:"filter"`
}

type ragFilter struct {
	VectorDistanceThreshold float64 `json:"vectorDistanceThreshold"`
}

// retrieveResponse is the JSON body returned by retrieveContexts.
type retrieveResponse struct {
	Contexts struct {
		Contexts []ragContext `json:"contexts"`
	} `json:"contexts"`
}

type ragContext struct {
	SourceURI         string   `json:"sourceUri"`
	SourceDisplayName string   `json:"sourceDisplayName"`
	Text              string   `json:"text"`
	Score             *float64 `json:"score"`
}

// Retrieve implements retrieval.Retriever. Failures are logged at warn level
// and yield nil.
func (r *Retriever) Retrieve(ctx context.Context, query string) []types.Passage {
	passages, err := r.RetrieveWithErr(ctx, query)
	if err != nil {
		slog.WarnContext(ctx, "knowledge retrieval degraded, continuing without reference data",
			"corpus", r.cfg.Corpus,
			"err", err,
		)
		return nil
	}
	return passages
}

// RetrieveWithErr implements retrieval.Source.
func (r *Retriever) RetrieveWithErr(ctx context.Context, query string) ([]types.Passage, error) {
	cred, err := r.creds.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("vertexrag: %w", err)
	}

	body, err := json.Marshal(retrieveRequest{
		VertexRagStore: ragStore{RagResources: []ragResource{{RagCorpus: r.cfg.Corpus}}},
		Query: ragQuery{
			Text: query,
			RagRetrievalConfig: ragRetrievalConfig{
				TopK:   r.cfg.TopK,
				Filter: ragFilter{VectorDistanceThreshold: r.cfg.DistanceThreshold},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("vertexrag: marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/projects/%s/locations/%s:retrieveContexts", r.cfg.BaseURL, r.cfg.Project, r.cfg.Region)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("vertexrag: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cred.BearerToken)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vertexrag: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized {
			credentials.Invalidate(r.creds)
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("vertexrag: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("vertexrag: decode response: %w", err)
	}

	passages := make([]types.Passage, 0, len(out.Contexts.Contexts))
	for i, c := range out.Contexts.Contexts {
		passages = append(passages, types.Passage{
			SourceLabel:    sourceLabel(c, i),
			RelevanceScore: c.Score,
			Text:           c.Text,
		})
	}
	return passages, nil
}

// sourceLabel picks the display name, then the URI, then a 1-based
// positional placeholder.
func sourceLabel(c ragContext, i int) string {
	switch {
	case c.SourceDisplayName != "":
		return c.SourceDisplayName
	case c.SourceURI != "":
		return c.SourceURI
	default:
		return fmt.Sprintf("Source %d", i+1)
	}
}
