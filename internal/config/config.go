// Package config provides the configuration schema and loader for the
// baristagate request gateway.
//
// Configuration is fixed per deployment. It is read from an optional YAML file
// and then overlaid with environment variables, which is how the serverless
// host injects it. Components receive plain value copies of their section, so
// nothing reads ambient global state after startup.
package config

import "time"

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	// LogFormatText is human-readable key=value output.
	LogFormatText LogFormat = "text"

	// LogFormatJSON is one JSON object per line, suited to log ingestion.
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Google      GoogleConfig      `yaml:"google"`
	AWS         AWSConfig         `yaml:"aws"`
	Models      ModelsConfig      `yaml:"models"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Credentials CredentialsConfig `yaml:"credentials"`
}

// ServerConfig holds logging settings and the listen address of the local
// HTTP host.
type ServerConfig struct {
	// ListenAddr is the TCP address of the local HTTP host (e.g. ":8080").
	// Unused when running inside AWS Lambda.
	ListenAddr string `yaml:"listen_addr"`

	LogLevel  LogLevel  `yaml:"log_level"`
	LogFormat LogFormat `yaml:"log_format"`
}

// GoogleConfig identifies the remote project, the workload identity
// federation setup and the model-serving region.
type GoogleConfig struct {
	// ProjectID is the project hosting the models and the RAG corpus.
	ProjectID string `yaml:"project_id"`

	// ProjectNumber is the numeric ID of the project owning the pool.
	ProjectNumber string `yaml:"project_number"`

	// PoolID is the workload identity pool ID.
	PoolID string `yaml:"pool_id"`

	// ProviderID is the pool provider ID trusting the AWS account.
	ProviderID string `yaml:"provider_id"`

	// ServiceAccount is the email of the impersonated service account.
	ServiceAccount string `yaml:"service_account"`

	// ModelRegion is the Vertex AI location serving the models.
	ModelRegion string `yaml:"model_region"`

	// STSURL, IAMCredentialsURL and VertexBaseURL override the public
	// endpoints. Leave empty in production.
	STSURL            string `yaml:"sts_url"`
	IAMCredentialsURL string `yaml:"iam_credentials_url"`
	VertexBaseURL     string `yaml:"vertex_base_url"`
}

// AWSConfig configures the local execution identity.
type AWSConfig struct {
	// Region overrides the region resolved from the default AWS chain.
	Region string `yaml:"region"`
}

// ModelsConfig selects the model per modality.
type ModelsConfig struct {
	Chat   string `yaml:"chat"`
	Vision string `yaml:"vision"`
}

// RetrievalConfig configures the best-effort knowledge lookup.
type RetrievalConfig struct {
	// Corpus is the full RAG corpus resource name. Empty disables retrieval.
	Corpus string `yaml:"corpus"`

	// Region hosts the corpus. Defaults to Google.ModelRegion.
	Region string `yaml:"region"`

	// TopK is the maximum number of passages. Default: 5.
	TopK int `yaml:"top_k"`

	// DistanceThreshold is the vector distance cutoff. Default: 0.3.
	DistanceThreshold float64 `yaml:"distance_threshold"`

	// BaseURL overrides the regional endpoint.
	BaseURL string `yaml:"base_url"`

	// Breaker tunes the circuit breaker in front of the corpus.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig mirrors resilience.CircuitBreakerConfig.
type BreakerConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// CredentialsConfig tunes the federated credential lifetime and reuse.
type CredentialsConfig struct {
	// Lifetime is requested for impersonated tokens. Default: 1h.
	Lifetime time.Duration `yaml:"lifetime"`

	// ExpirySkew is how early a cached token is treated as expired.
	// Default: 1m.
	ExpirySkew time.Duration `yaml:"expiry_skew"`
}
