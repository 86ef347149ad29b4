package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Environment variable names understood by [ApplyEnv].
const (
	EnvProjectID      = "GCP_PROJECT_ID"
	EnvProjectNumber  = "GCP_PROJECT_NUMBER"
	EnvPoolID         = "WORKLOAD_POOL_ID"
	EnvProviderID     = "WORKLOAD_PROVIDER_ID"
	EnvServiceAccount = "SERVICE_ACCOUNT_EMAIL"
	EnvModelRegion    = "VERTEX_LOCATION"
	EnvRAGRegion      = "RAG_LOCATION"
	EnvRAGCorpus      = "RAG_CORPUS_ID"
	EnvChatModel      = "CHAT_MODEL"
	EnvVisionModel    = "VISION_MODEL"
	EnvAWSRegion      = "AWS_REGION"
	EnvLogLevel       = "LOG_LEVEL"
	EnvLogFormat      = "LOG_FORMAT"
	EnvListenAddr     = "LISTEN_ADDR"
	EnvTokenLifetime  = "TOKEN_LIFETIME"
)

// Defaults applied by [ApplyDefaults].
const (
	DefaultListenAddr        = ":8080"
	DefaultModelRegion       = "us-central1"
	DefaultChatModel         = "gemini-2.0-flash-lite-001"
	DefaultVisionModel       = "gemini-2.0-flash-001"
	DefaultTopK              = 5
	DefaultDistanceThreshold = 0.3
	DefaultTokenLifetime     = time.Hour
	DefaultExpirySkew        = time.Minute
)

// Load reads the optional YAML file at path, overlays the process
// environment and returns a validated [Config]. An empty path skips the file.
func Load(path string) (*Config, error) {
	if path == "" {
		return LoadFromReader(strings.NewReader(""), os.LookupEnv)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, os.LookupEnv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, overlays variables from
// lookup (which may be nil), applies defaults and validates the result.
// An empty document is allowed.
func LoadFromReader(r io.Reader, lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if lookup != nil {
		if err := ApplyEnv(cfg, lookup); err != nil {
			return nil, err
		}
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites fields of cfg with the environment variables that are
// set. Unset variables leave the YAML value untouched.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str(EnvProjectID, &cfg.Google.ProjectID)
	str(EnvProjectNumber, &cfg.Google.ProjectNumber)
	str(EnvPoolID, &cfg.Google.PoolID)
	str(EnvProviderID, &cfg.Google.ProviderID)
	str(EnvServiceAccount, &cfg.Google.ServiceAccount)
	str(EnvModelRegion, &cfg.Google.ModelRegion)
	str(EnvRAGRegion, &cfg.Retrieval.Region)
	str(EnvRAGCorpus, &cfg.Retrieval.Corpus)
	str(EnvChatModel, &cfg.Models.Chat)
	str(EnvVisionModel, &cfg.Models.Vision)
	str(EnvAWSRegion, &cfg.AWS.Region)
	str(EnvListenAddr, &cfg.Server.ListenAddr)

	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Server.LogLevel = LogLevel(strings.ToLower(v))
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		cfg.Server.LogFormat = LogFormat(strings.ToLower(v))
	}
	if v, ok := lookup(EnvTokenLifetime); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %s: %w", EnvTokenLifetime, err)
		}
		cfg.Credentials.Lifetime = d
	}
	return nil
}

// parseDuration accepts Go durations ("45m") and plain seconds ("3600").
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Google.ModelRegion == "" {
		cfg.Google.ModelRegion = DefaultModelRegion
	}
	if cfg.Models.Chat == "" {
		cfg.Models.Chat = DefaultChatModel
	}
	if cfg.Models.Vision == "" {
		cfg.Models.Vision = DefaultVisionModel
	}
	if cfg.Retrieval.Region == "" {
		cfg.Retrieval.Region = cfg.Google.ModelRegion
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = DefaultTopK
	}
	if cfg.Retrieval.DistanceThreshold == 0 {
		cfg.Retrieval.DistanceThreshold = DefaultDistanceThreshold
	}
	if cfg.Credentials.Lifetime == 0 {
		cfg.Credentials.Lifetime = DefaultTokenLifetime
	}
	if cfg.Credentials.ExpirySkew == 0 {
		cfg.Credentials.ExpirySkew = DefaultExpirySkew
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}

	required := []struct {
		field, env, value string
	}{
		{"google.project_id", EnvProjectID, cfg.Google.ProjectID},
		{"google.project_number", EnvProjectNumber, cfg.Google.ProjectNumber},
		{"google.pool_id", EnvPoolID, cfg.Google.PoolID},
		{"google.provider_id", EnvProviderID, cfg.Google.ProviderID},
		{"google.service_account", EnvServiceAccount, cfg.Google.ServiceAccount},
	}
	for _, r := range required {
		if r.value == "" {
			errs = append(errs, fmt.Errorf("%s is required (or set %s)", r.field, r.env))
		}
	}
	if cfg.Google.ProjectNumber != "" {
		if _, err := strconv.ParseUint(cfg.Google.ProjectNumber, 10, 64); err != nil {
			errs = append(errs, fmt.Errorf("google.project_number %q must be numeric", cfg.Google.ProjectNumber))
		}
	}
	if cfg.Google.ServiceAccount != "" && !strings.Contains(cfg.Google.ServiceAccount, "@") {
		errs = append(errs, fmt.Errorf("google.service_account %q is not an email address", cfg.Google.ServiceAccount))
	}

	if cfg.Retrieval.TopK < 1 || cfg.Retrieval.TopK > 100 {
		errs = append(errs, fmt.Errorf("retrieval.top_k %d is out of range [1, 100]", cfg.Retrieval.TopK))
	}
	if cfg.Retrieval.DistanceThreshold <= 0 || cfg.Retrieval.DistanceThreshold > 2 {
		errs = append(errs, fmt.Errorf("retrieval.distance_threshold %.2f is out of range (0, 2]", cfg.Retrieval.DistanceThreshold))
	}
	if cfg.Retrieval.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("retrieval.breaker.max_failures must not be negative"))
	}

	if cfg.Credentials.Lifetime < 10*time.Minute || cfg.Credentials.Lifetime > 12*time.Hour {
		errs = append(errs, fmt.Errorf("credentials.lifetime %s is out of range [10m, 12h]", cfg.Credentials.Lifetime))
	}
	if cfg.Credentials.ExpirySkew < 0 || cfg.Credentials.ExpirySkew >= cfg.Credentials.Lifetime {
		errs = append(errs, fmt.Errorf("credentials.expiry_skew %s must be within [0, lifetime)", cfg.Credentials.ExpirySkew))
	}

	return errors.Join(errs...)
}
