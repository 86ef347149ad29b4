// Package federation implements credentials.Provider with Google Cloud
// workload identity federation.
//
// A [Broker] runs three sequential hops, each feeding the next:
//
//  1. A [SubjectTokenSource] produces a signed assertion of the local
//     execution identity (for AWS, a SigV4-signed GetCallerIdentity request).
//  2. The subject token is exchanged at the Google Security Token Service for
//     a short-lived federated access token scoped to the configured workload
//     identity pool provider.
//  3. The federated token is used to impersonate the target service account
//     through the IAM Credentials API, yielding the final bearer token.
//
// No hop is skipped or retried. A failure anywhere is returned as a
// *credentials.Error naming the hop.
package federation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/baristagate/pkg/provider/credentials"
)

var tracer = otel.Tracer("github.com/MrWong99/baristagate/pkg/provider/credentials/federation")

const (
	// DefaultSTSURL is the Google Security Token Service exchange endpoint.
	DefaultSTSURL = "https://sts.googleapis.com/v1/token"

	// DefaultIAMCredentialsURL is the base URL of the IAM Credentials API.
	DefaultIAMCredentialsURL = "https://iamcredentials.googleapis.com/v1"

	// DefaultLifetime is the lifetime requested for impersonated tokens.
	DefaultLifetime = time.Hour

	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	tokenExchangeGrant = "urn:ietf:params:oauth:grant-type:token-exchange"
	accessTokenType    = "urn:ietf:params:oauth:token-type:access_token"

	// maxErrorBody caps how much of an error response is kept for messages.
	maxErrorBody = 4 << 10
)

// Compile-time interface assertion.
var _ credentials.Provider = (*Broker)(nil)

// Config is the immutable federation setup of one deployment.
type Config struct {
	// ProjectNumber is the numeric ID of the project owning the pool.
	ProjectNumber string

	// PoolID is the workload identity pool ID.
	PoolID string

	// ProviderID is the pool provider ID trusting the local cloud.
	ProviderID string

	// ServiceAccount is the email of the service account to impersonate.
	ServiceAccount string

	// STSURL overrides [DefaultSTSURL].
	STSURL string

	// IAMCredentialsURL overrides [DefaultIAMCredentialsURL].
	IAMCredentialsURL string

	// Lifetime overrides [DefaultLifetime].
	Lifetime time.Duration
}

// Audience returns the full resource name of the pool provider, which is the
// audience presented in both the subject token and the STS exchange.
func (c Config) Audience() string {
	return fmt.Sprintf("//iam.googleapis.com/projects/%s/locations/global/workloadIdentityPools/%s/providers/%s",
		c.ProjectNumber, c.PoolID, c.ProviderID)
}

// SubjectTokenSource produces the subject token for the first hop.
type SubjectTokenSource interface {
	// SubjectToken returns a signed assertion of the local identity bound to
	// audience.
	SubjectToken(ctx context.Context, audience string) (string, error)

	// TokenType is the RFC 8693 subject token type URN.
	TokenType() string
}

// Broker implements credentials.Provider by running the three-hop exchange on
// every call. Wrap it in a credentials.Cache to reuse results.
type Broker struct {
	cfg        Config
	subject    SubjectTokenSource
	httpClient *http.Client
}

// Option is a functional option for [Broker].
type Option func(*Broker)

// WithHTTPClient sets the HTTP client used for the STS and IAM Credentials
// calls.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Broker) { b.httpClient = c }
}

// New creates a Broker. All identifying fields of cfg are required.
func New(cfg Config, subject SubjectTokenSource, opts ...Option) (*Broker, error) {
	if subject == nil {
		return nil, fmt.Errorf("federation: subject token source must not be nil")
	}
	switch {
	case cfg.ProjectNumber == "":
		return nil, fmt.Errorf("federation: project number must not be empty")
	case cfg.PoolID == "":
		return nil, fmt.Errorf("federation: pool ID must not be empty")
	case cfg.ProviderID == "":
		return nil, fmt.Errorf("federation: provider ID must not be empty")
	case cfg.ServiceAccount == "":
		return nil, fmt.Errorf("federation: service account must not be empty")
	}
	if cfg.STSURL == "" {
		cfg.STSURL = DefaultSTSURL
	}
	if cfg.IAMCredentialsURL == "" {
		cfg.IAMCredentialsURL = DefaultIAMCredentialsURL
	}
	cfg.IAMCredentialsURL = strings.TrimRight(cfg.IAMCredentialsURL, "/")
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultLifetime
	}

	b := &Broker{
		cfg:        cfg,
		subject:    subject,
		httpClient: &http.Client{},
	}
	for _, o := range opts {
		o(b)
	}
	return b, nil
}

// Token implements credentials.Provider.
func (b *Broker) Token(ctx context.Context) (*credentials.Credential, error) {
	var (
		subject, federated string
		cred               *credentials.Credential
	)
	err := hop(ctx, credentials.HopSubjectToken, func(ctx context.Context) (err error) {
		subject, err = b.SubjectToken(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = hop(ctx, credentials.HopExchange, func(ctx context.Context) (err error) {
		federated, err = b.Exchange(ctx, subject)
		return err
	})
	if err != nil {
		return nil, err
	}
	err = hop(ctx, credentials.HopImpersonation, func(ctx context.Context) (err error) {
		cred, err = b.Impersonate(ctx, federated)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cred, nil
}

// hop runs fn inside a span named after the hop.
func hop(ctx context.Context, name credentials.Hop, fn func(context.Context) error) error {
	ctx, span := tracer.Start(ctx, "federation."+string(name), trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	if err := fn(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// SubjectToken runs hop 1.
func (b *Broker) SubjectToken(ctx context.Context) (string, error) {
	tok, err := b.subject.SubjectToken(ctx, b.cfg.Audience())
	if err != nil {
		return "", &credentials.Error{Hop: credentials.HopSubjectToken, Err: err}
	}
	if tok == "" {
		return "", &credentials.Error{Hop: credentials.HopSubjectToken, Err: fmt.Errorf("empty subject token")}
	}
	return tok, nil
}

// stsResponse is the success body of the STS token endpoint.
type stsResponse struct {
	AccessToken     string `json:"access_token"`
	IssuedTokenType string `json:"issued_token_type"`
	TokenType       string `json:"token_type"`
	ExpiresIn       int    `json:"expires_in"`
}

// stsError is the OAuth error body of the STS token endpoint.
type stsError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Exchange runs hop 2 and returns the federated access token.
func (b *Broker) Exchange(ctx context.Context, subjectToken string) (string, error) {
	fail := func(err error) (string, error) {
		return "", &credentials.Error{Hop: credentials.HopExchange, Err: err}
	}

	form := url.Values{}
	form.Set("grant_type", tokenExchangeGrant)
	form.Set("audience", b.cfg.Audience())
	form.Set("scope", cloudPlatformScope)
	form.Set("requested_token_type", accessTokenType)
	form.Set("subject_token_type", b.subject.TokenType())
	form.Set("subject_token", subjectToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.STSURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("http: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var e stsError
		if json.Unmarshal(body, &e) == nil && e.Error != "" {
			return fail(fmt.Errorf("status %d: %s: %s", resp.StatusCode, e.Error, e.ErrorDescription))
		}
		return fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out stsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	if out.AccessToken == "" {
		return fail(fmt.Errorf("response carries no access_token"))
	}
	return out.AccessToken, nil
}

// impersonationRequest is the body of generateAccessToken.
type impersonationRequest struct {
	Scope    []string `json:"scope"`
	Lifetime string   `json:"lifetime"`
}

// impersonationResponse is the success body of generateAccessToken.
type impersonationResponse struct {
	AccessToken string `json:"accessToken"`
	ExpireTime  string `json:"expireTime"`
}

// googleError is the canonical Google API error envelope.
type googleError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Impersonate runs hop 3 and returns the final credential.
func (b *Broker) Impersonate(ctx context.Context, federatedToken string) (*credentials.Credential, error) {
	fail := func(err error) (*credentials.Credential, error) {
		return nil, &credentials.Error{Hop: credentials.HopImpersonation, Err: err}
	}

	body, err := json.Marshal(impersonationRequest{
		Scope:    []string{cloudPlatformScope},
		Lifetime: fmt.Sprintf("%ds", int(b.cfg.Lifetime.Seconds())),
	})
	if err != nil {
		return fail(fmt.Errorf("marshal request: %w", err))
	}

	endpoint := fmt.Sprintf("%s/projects/-/serviceAccounts/%s:generateAccessToken",
		b.cfg.IAMCredentialsURL, url.PathEscape(b.cfg.ServiceAccount))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fail(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+federatedToken)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("http: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var e googleError
		if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
			return fail(fmt.Errorf("status %d: %s: %s", resp.StatusCode, e.Error.Status, e.Error.Message))
		}
		return fail(fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var out impersonationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fail(fmt.Errorf("decode response: %w", err))
	}
	if out.AccessToken == "" {
		return fail(fmt.Errorf("response carries no accessToken"))
	}
	expiry, err := time.Parse(time.RFC3339, out.ExpireTime)
	if err != nil {
		return fail(fmt.Errorf("parse expireTime %q: %w", out.ExpireTime, err))
	}
	return &credentials.Credential{BearerToken: out.AccessToken, Expiry: expiry}, nil
}
