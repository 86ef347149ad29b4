// Package app wires the gateway subsystems into a running application.
//
// New builds the credential broker and its cache, the optional knowledge
// retriever behind a circuit breaker, and the model client, then hands them
// to a gateway.Router. The same App serves both hosts: Invoke is the
// serverless entry point and Run serves the local HTTP surface.
//
// For testing, inject doubles via functional options (WithCredentials,
// WithRetrievalSource, WithModelClient). When an option is not provided, New
// creates the real implementation from the config.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/MrWong99/baristagate/internal/config"
	"github.com/MrWong99/baristagate/internal/gateway"
	"github.com/MrWong99/baristagate/internal/health"
	"github.com/MrWong99/baristagate/internal/observe"
	"github.com/MrWong99/baristagate/internal/resilience"
	"github.com/MrWong99/baristagate/pkg/provider/credentials"
	"github.com/MrWong99/baristagate/pkg/provider/credentials/federation"
	"github.com/MrWong99/baristagate/pkg/provider/generative"
	"github.com/MrWong99/baristagate/pkg/provider/generative/vertex"
	"github.com/MrWong99/baristagate/pkg/provider/retrieval"
	"github.com/MrWong99/baristagate/pkg/provider/retrieval/vertexrag"
)

// App owns the gateway components. All fields are set in New and never
// change afterwards, so an App is safe for concurrent invocations.
type App struct {
	cfg     *config.Config
	metrics *observe.Metrics

	creds     credentials.Provider
	source    retrieval.Source
	retriever *resilience.GuardedRetriever
	model     generative.Client
	router    *gateway.Router
	health    *health.Handler
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithCredentials injects the credential provider instead of building the
// federation broker. The provider is still wrapped in the shared cache.
func WithCredentials(p credentials.Provider) Option {
	return func(a *App) { a.creds = p }
}

// WithRetrievalSource injects the knowledge source instead of building the
// RAG corpus client.
func WithRetrievalSource(s retrieval.Source) Option {
	return func(a *App) { a.source = s }
}

// WithModelClient injects the model client instead of building the Vertex AI
// client.
func WithModelClient(c generative.Client) Option {
	return func(a *App) { a.model = c }
}

// WithMetrics overrides the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all components together. It performs no
// network calls; credentials are exchanged on first use.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initCredentials(ctx); err != nil {
		return nil, fmt.Errorf("app: init credentials: %w", err)
	}
	if err := a.initRetrieval(); err != nil {
		return nil, fmt.Errorf("app: init retrieval: %w", err)
	}
	if err := a.initModel(); err != nil {
		return nil, fmt.Errorf("app: init model: %w", err)
	}

	var retriever retrieval.Retriever = retrieval.Nop{}
	checkers := []health.Checker{health.CredentialsChecker(a.creds)}
	if a.retriever != nil {
		retriever = a.retriever
		checkers = append(checkers, health.BreakerChecker(a.retriever.Breaker()))
	}
	a.router = gateway.NewRouter(retriever, a.model, gateway.WithMetrics(a.metrics))
	a.health = health.New(checkers...)
	return a, nil
}

// transport is the traced base transport for every outbound call.
func transport() http.RoundTripper {
	return otelhttp.NewTransport(http.DefaultTransport)
}

// initCredentials builds broker -> instrumentation -> cache. Only the cache
// is shared; every component asks it for tokens.
func (a *App) initCredentials(ctx context.Context) error {
	g := a.cfg.Google
	if a.creds == nil {
		subject, err := federation.LoadAWSSubjectTokenSource(ctx, a.cfg.AWS.Region)
		if err != nil {
			return err
		}
		broker, err := federation.New(federation.Config{
			ProjectNumber:     g.ProjectNumber,
			PoolID:            g.PoolID,
			ProviderID:        g.ProviderID,
			ServiceAccount:    g.ServiceAccount,
			STSURL:            g.STSURL,
			IAMCredentialsURL: g.IAMCredentialsURL,
			Lifetime:          a.cfg.Credentials.Lifetime,
		}, subject, federation.WithHTTPClient(&http.Client{Transport: transport()}))
		if err != nil {
			return err
		}
		a.creds = broker
	}
	a.creds = credentials.NewCache(
		&instrumentedCredentials{next: a.creds, metrics: a.metrics},
		g.ServiceAccount,
		credentials.WithExpirySkew(a.cfg.Credentials.ExpirySkew),
	)
	return nil
}

// initRetrieval builds the guarded retriever. Without a configured corpus
// the gateway runs without reference data.
func (a *App) initRetrieval() error {
	rc := a.cfg.Retrieval
	if a.source == nil {
		if rc.Corpus == "" {
			slog.Warn("no knowledge corpus configured, chat runs without reference data")
			return nil
		}
		src, err := vertexrag.New(vertexrag.Config{
			Project:           a.cfg.Google.ProjectID,
			Region:            rc.Region,
			Corpus:            rc.Corpus,
			TopK:              rc.TopK,
			DistanceThreshold: rc.DistanceThreshold,
			BaseURL:           rc.BaseURL,
		}, a.creds, vertexrag.WithHTTPClient(&http.Client{Transport: transport()}))
		if err != nil {
			return err
		}
		a.source = src
	}
	a.retriever = resilience.NewGuardedRetriever(a.source, resilience.CircuitBreakerConfig{
		Name:         "retrieval",
		MaxFailures:  rc.Breaker.MaxFailures,
		ResetTimeout: rc.Breaker.ResetTimeout,
	}, a.metrics)
	return nil
}

func (a *App) initModel() error {
	if a.model != nil {
		return nil
	}
	client, err := vertex.New(vertex.Config{
		Project:     a.cfg.Google.ProjectID,
		Region:      a.cfg.Google.ModelRegion,
		ChatModel:   a.cfg.Models.Chat,
		VisionModel: a.cfg.Models.Vision,
		BaseURL:     a.cfg.Google.VertexBaseURL,
	}, a.creds, vertex.WithTransport(transport()))
	if err != nil {
		return err
	}
	a.model = client
	return nil
}

// Router returns the gateway router.
func (a *App) Router() *gateway.Router { return a.router }

// Invoke decodes a raw host event and handles it. It is the serverless entry
// point; errors are returned unmodified for the host to report.
func (a *App) Invoke(ctx context.Context, event json.RawMessage) (string, error) {
	var env gateway.Envelope
	if err := json.Unmarshal(event, &env); err != nil {
		return "", fmt.Errorf("%w: decode event: %v", gateway.ErrInvalidArguments, err)
	}
	return a.router.Handle(ctx, env)
}
