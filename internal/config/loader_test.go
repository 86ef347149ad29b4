package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/baristagate/internal/config"
)

func envMap(m map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  log_format: json
google:
  project_id: coffee-prod
  project_number: "123456789"
  pool_id: aws-pool
  provider_id: aws-provider
  service_account: gateway@coffee-prod.iam.gserviceaccount.com
  model_region: europe-west4
retrieval:
  corpus: projects/coffee-prod/locations/europe-west4/ragCorpora/42
  top_k: 3
credentials:
  lifetime: 30m
`

func TestLoadFromReader_ValidYAML(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("ListenAddr = %q, want :9090", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want debug", cfg.Server.LogLevel)
	}
	if cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("LogFormat = %q, want json", cfg.Server.LogFormat)
	}
	if cfg.Retrieval.Region != "europe-west4" {
		t.Errorf("Retrieval.Region = %q, want model region europe-west4", cfg.Retrieval.Region)
	}
	if cfg.Retrieval.TopK != 3 {
		t.Errorf("TopK = %d, want 3", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.DistanceThreshold != config.DefaultDistanceThreshold {
		t.Errorf("DistanceThreshold = %v, want default", cfg.Retrieval.DistanceThreshold)
	}
	if cfg.Credentials.Lifetime != 30*time.Minute {
		t.Errorf("Lifetime = %s, want 30m", cfg.Credentials.Lifetime)
	}
	if cfg.Credentials.ExpirySkew != time.Minute {
		t.Errorf("ExpirySkew = %s, want 1m", cfg.Credentials.ExpirySkew)
	}
	if cfg.Models.Chat != config.DefaultChatModel || cfg.Models.Vision != config.DefaultVisionModel {
		t.Errorf("Models = %+v, want defaults", cfg.Models)
	}
}

func TestLoadFromReader_EnvOnly(t *testing.T) {
	t.Parallel()

	env := envMap(map[string]string{
		config.EnvProjectID:      "coffee-prod",
		config.EnvProjectNumber:  "987",
		config.EnvPoolID:         "pool",
		config.EnvProviderID:     "provider",
		config.EnvServiceAccount: "sa@coffee-prod.iam.gserviceaccount.com",
		config.EnvRAGCorpus:      "projects/coffee-prod/locations/us-east4/ragCorpora/7",
		config.EnvRAGRegion:      "us-east4",
		config.EnvChatModel:      "gemini-custom",
		config.EnvLogLevel:       "WARN",
		config.EnvTokenLifetime:  "1800",
	})

	cfg, err := config.LoadFromReader(strings.NewReader(""), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Google.ModelRegion != config.DefaultModelRegion {
		t.Errorf("ModelRegion = %q, want default", cfg.Google.ModelRegion)
	}
	if cfg.Retrieval.Region != "us-east4" {
		t.Errorf("Retrieval.Region = %q, want us-east4", cfg.Retrieval.Region)
	}
	if cfg.Models.Chat != "gemini-custom" {
		t.Errorf("Chat = %q, want gemini-custom", cfg.Models.Chat)
	}
	if cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("LogLevel = %q, want warn", cfg.Server.LogLevel)
	}
	if cfg.Credentials.Lifetime != 30*time.Minute {
		t.Errorf("Lifetime = %s, want 30m", cfg.Credentials.Lifetime)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("ListenAddr = %q, want default", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReader_EnvOverridesYAML(t *testing.T) {
	t.Parallel()

	env := envMap(map[string]string{config.EnvProjectID: "coffee-staging"})
	cfg, err := config.LoadFromReader(strings.NewReader(validYAML), env)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Google.ProjectID != "coffee-staging" {
		t.Errorf("ProjectID = %q, want coffee-staging", cfg.Google.ProjectID)
	}
}

func TestLoadFromReader_RetrievalOptional(t *testing.T) {
	t.Parallel()

	yaml := strings.Replace(validYAML, "  corpus: projects/coffee-prod/locations/europe-west4/ragCorpora/42\n", "", 1)
	cfg, err := config.LoadFromReader(strings.NewReader(yaml), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Retrieval.Corpus != "" {
		t.Errorf("Corpus = %q, want empty", cfg.Retrieval.Corpus)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  colour: blue\n"), nil)
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_BadTokenLifetime(t *testing.T) {
	t.Parallel()

	env := envMap(map[string]string{config.EnvTokenLifetime: "forever"})
	_, err := config.LoadFromReader(strings.NewReader(validYAML), env)
	if err == nil || !strings.Contains(err.Error(), config.EnvTokenLifetime) {
		t.Fatalf("err = %v, want mention of %s", err, config.EnvTokenLifetime)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "missing project id",
			mutate:  func(c *config.Config) { c.Google.ProjectID = "" },
			wantErr: "google.project_id is required",
		},
		{
			name:    "non-numeric project number",
			mutate:  func(c *config.Config) { c.Google.ProjectNumber = "coffee" },
			wantErr: "must be numeric",
		},
		{
			name:    "service account without domain",
			mutate:  func(c *config.Config) { c.Google.ServiceAccount = "gateway" },
			wantErr: "not an email address",
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.Server.LogLevel = "verbose" },
			wantErr: "server.log_level",
		},
		{
			name:    "bad log format",
			mutate:  func(c *config.Config) { c.Server.LogFormat = "xml" },
			wantErr: "server.log_format",
		},
		{
			name:    "top k out of range",
			mutate:  func(c *config.Config) { c.Retrieval.TopK = 500 },
			wantErr: "retrieval.top_k",
		},
		{
			name:    "lifetime too long",
			mutate:  func(c *config.Config) { c.Credentials.Lifetime = 24 * time.Hour },
			wantErr: "credentials.lifetime",
		},
		{
			name:    "skew exceeds lifetime",
			mutate:  func(c *config.Config) { c.Credentials.ExpirySkew = 2 * time.Hour },
			wantErr: "credentials.expiry_skew",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.LoadFromReader(strings.NewReader(validYAML), nil)
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			tt.mutate(cfg)
			err = config.Validate(cfg)
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(""), nil)
	if err == nil {
		t.Fatal("expected error for empty config")
	}
	for _, field := range []string{"project_id", "project_number", "pool_id", "provider_id", "service_account"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "baristagate.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	// Load overlays the real environment; only assert file-only fields.
	cfg, err := config.Load(path)
	if err != nil {
		t.Skipf("environment overrides make the file invalid: %v", err)
	}
	if cfg.Google.PoolID == "" {
		t.Error("PoolID is empty")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}
