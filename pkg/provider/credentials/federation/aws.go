package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
)

// AWSSubjectTokenType is the subject token type for signed AWS
// GetCallerIdentity requests.
const AWSSubjectTokenType = "urn:ietf:params:aws:token-type:aws4_request"

const (
	// callerIdentityURL is the regional STS GetCallerIdentity URL. %s is the
	// AWS region.
	callerIdentityURL = "https://sts.%s.amazonaws.com?Action=GetCallerIdentity&Version=2011-06-15"

	// targetResourceHeader binds the signed request to the pool provider.
	targetResourceHeader = "x-goog-cloud-target-resource"

	// emptyPayloadHash is the hex SHA-256 of an empty body.
	emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

// Compile-time interface assertion.
var _ SubjectTokenSource = (*AWSSubjectTokenSource)(nil)

// AWSSubjectTokenSource signs a GetCallerIdentity request with the execution
// role's transient credentials. The request is never sent; Google STS replays
// it to verify the caller.
type AWSSubjectTokenSource struct {
	creds  aws.CredentialsProvider
	region string
	signer *v4.Signer
	now    func() time.Time
}

// AWSOption is a functional option for [AWSSubjectTokenSource].
type AWSOption func(*AWSSubjectTokenSource)

// WithSigningClock replaces time.Now for the signature timestamp. Intended for
// tests.
func WithSigningClock(now func() time.Time) AWSOption {
	return func(s *AWSSubjectTokenSource) { s.now = now }
}

// NewAWSSubjectTokenSource creates a source from an explicit credentials
// provider and region.
func NewAWSSubjectTokenSource(creds aws.CredentialsProvider, region string, opts ...AWSOption) (*AWSSubjectTokenSource, error) {
	if creds == nil {
		return nil, fmt.Errorf("federation: aws credentials provider must not be nil")
	}
	if region == "" {
		return nil, fmt.Errorf("federation: aws region must not be empty")
	}
	s := &AWSSubjectTokenSource{
		creds:  creds,
		region: region,
		signer: v4.NewSigner(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// LoadAWSSubjectTokenSource resolves credentials and region from the default
// AWS chain (environment variables inside Lambda, instance metadata
// elsewhere). A non-empty region overrides the resolved one.
func LoadAWSSubjectTokenSource(ctx context.Context, region string, opts ...AWSOption) (*AWSSubjectTokenSource, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("federation: load aws config: %w", err)
	}
	return NewAWSSubjectTokenSource(awsCfg.Credentials, awsCfg.Region, opts...)
}

// TokenType implements [SubjectTokenSource].
func (s *AWSSubjectTokenSource) TokenType() string { return AWSSubjectTokenType }

// awsRequest is the serialised form of a signed request that Google STS
// accepts as a subject token.
type awsRequest struct {
	URL     string          `json:"url"`
	Method  string          `json:"method"`
	Headers []awsHeaderPair `json:"headers"`
}

type awsHeaderPair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// SubjectToken implements [SubjectTokenSource].
func (s *AWSSubjectTokenSource) SubjectToken(ctx context.Context, audience string) (string, error) {
	creds, err := s.creds.Retrieve(ctx)
	if err != nil {
		return "", fmt.Errorf("retrieve aws credentials: %w", err)
	}

	target := fmt.Sprintf(callerIdentityURL, s.region)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(targetResourceHeader, audience)

	if err := s.signer.SignHTTP(ctx, creds, req, emptyPayloadHash, "sts", s.region, s.now().UTC()); err != nil {
		return "", fmt.Errorf("sign request: %w", err)
	}

	headers := []awsHeaderPair{{Key: "host", Value: req.URL.Host}}
	for k, v := range req.Header {
		headers = append(headers, awsHeaderPair{Key: k, Value: strings.Join(v, ",")})
	}
	sort.Slice(headers, func(i, j int) bool {
		return strings.ToLower(headers[i].Key) < strings.ToLower(headers[j].Key)
	})

	raw, err := json.Marshal(awsRequest{
		URL:     target,
		Method:  http.MethodPost,
		Headers: headers,
	})
	if err != nil {
		return "", fmt.Errorf("marshal subject token: %w", err)
	}
	return url.QueryEscape(string(raw)), nil
}
