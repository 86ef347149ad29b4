package federation_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/MrWong99/baristagate/pkg/provider/credentials/federation"
)

type subjectHeader struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type subjectRequest struct {
	URL     string          `json:"url"`
	Method  string          `json:"method"`
	Headers []subjectHeader `json:"headers"`
}

func staticAWS(session string) aws.CredentialsProvider {
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     "AKIDEXAMPLE",
			SecretAccessKey: "wJalrXUtnFEMI/K7MDENG+bPxRfiCYEXAMPLEKEY",
			SessionToken:    session,
		}, nil
	})
}

func decodeSubject(t *testing.T, tok string) subjectRequest {
	t.Helper()
	raw, err := url.QueryUnescape(tok)
	if err != nil {
		t.Fatalf("unescape: %v", err)
	}
	var req subjectRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("unmarshal subject token: %v", err)
	}
	return req
}

func headerValue(req subjectRequest, key string) (string, bool) {
	for _, h := range req.Headers {
		if strings.EqualFold(h.Key, key) {
			return h.Value, true
		}
	}
	return "", false
}

func TestAWSSubjectToken_SignedCallerIdentity(t *testing.T) {
	signedAt := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	src, err := federation.NewAWSSubjectTokenSource(staticAWS("session-tok"), "us-east-1",
		federation.WithSigningClock(func() time.Time { return signedAt }))
	if err != nil {
		t.Fatalf("NewAWSSubjectTokenSource: %v", err)
	}
	if src.TokenType() != federation.AWSSubjectTokenType {
		t.Errorf("TokenType = %q", src.TokenType())
	}

	tok, err := src.SubjectToken(context.Background(), wantAudience)
	if err != nil {
		t.Fatalf("SubjectToken: %v", err)
	}
	req := decodeSubject(t, tok)

	if req.Method != "POST" {
		t.Errorf("method = %q, want POST", req.Method)
	}
	if req.URL != "https://sts.us-east-1.amazonaws.com?Action=GetCallerIdentity&Version=2011-06-15" {
		t.Errorf("url = %q", req.URL)
	}

	if v, _ := headerValue(req, "host"); v != "sts.us-east-1.amazonaws.com" {
		t.Errorf("host = %q", v)
	}
	if v, _ := headerValue(req, "x-goog-cloud-target-resource"); v != wantAudience {
		t.Errorf("target resource = %q, want %q", v, wantAudience)
	}
	if v, _ := headerValue(req, "x-amz-date"); v != "20261017T120000Z" {
		t.Errorf("x-amz-date = %q", v)
	}
	if v, _ := headerValue(req, "x-amz-security-token"); v != "session-tok" {
		t.Errorf("x-amz-security-token = %q", v)
	}
	authz, ok := headerValue(req, "authorization")
	if !ok {
		t.Fatal("authorization header missing")
	}
	if !strings.HasPrefix(authz, "AWS4-HMAC-SHA256 Credential=AKIDEXAMPLE/20261017/us-east-1/sts/aws4_request") {
		t.Errorf("authorization = %q", authz)
	}
	if !strings.Contains(authz, "x-goog-cloud-target-resource") {
		t.Errorf("target resource header is not signed: %q", authz)
	}

	for i := 1; i < len(req.Headers); i++ {
		if strings.ToLower(req.Headers[i-1].Key) > strings.ToLower(req.Headers[i].Key) {
			t.Errorf("headers not sorted: %q before %q", req.Headers[i-1].Key, req.Headers[i].Key)
		}
	}
}

func TestAWSSubjectToken_NoSessionToken(t *testing.T) {
	src, _ := federation.NewAWSSubjectTokenSource(staticAWS(""), "eu-west-1")
	tok, err := src.SubjectToken(context.Background(), wantAudience)
	if err != nil {
		t.Fatalf("SubjectToken: %v", err)
	}
	if _, ok := headerValue(decodeSubject(t, tok), "x-amz-security-token"); ok {
		t.Error("x-amz-security-token present without a session token")
	}
}

func TestAWSSubjectToken_CredentialFailure(t *testing.T) {
	failing := aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{}, errors.New("no role attached")
	})
	src, _ := federation.NewAWSSubjectTokenSource(failing, "us-east-1")
	if _, err := src.SubjectToken(context.Background(), wantAudience); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestNewAWSSubjectTokenSource_Validation(t *testing.T) {
	if _, err := federation.NewAWSSubjectTokenSource(nil, "us-east-1"); err == nil {
		t.Error("expected error for nil provider")
	}
	if _, err := federation.NewAWSSubjectTokenSource(staticAWS(""), ""); err == nil {
		t.Error("expected error for empty region")
	}
}
