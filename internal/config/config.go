// Package config provides application configuration with multi-source
// priority: environment variables override the config file
// (~/.recall/config.yaml), which overrides defaults.
//
// Sensitive values (the OpenAI API key, the database password embedded in
// DATABASE_URL) are never logged; Config masks them in MarshalJSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Sentinel errors for validation failures, checked with errors.Is.
var (
	// ErrMissingAPIKey indicates OPENAI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing OpenAI API key")

	// ErrMissingDatabaseURL indicates no PostgreSQL connection URL is
	// configured.
	ErrMissingDatabaseURL = errors.New("missing database URL")

	// ErrInvalidDatabaseURL indicates the configured URL does not parse
	// as postgres:// or postgresql://.
	ErrInvalidDatabaseURL = errors.New("invalid database URL")

	// ErrInvalidMaxSteps indicates the step budget is out of range.
	ErrInvalidMaxSteps = errors.New("invalid max steps")

	// ErrInvalidTopK indicates the retrieval top-K is out of range.
	ErrInvalidTopK = errors.New("invalid retrieval top k")

	// ErrInvalidMaxDistance indicates the cosine distance threshold is
	// out of range.
	ErrInvalidMaxDistance = errors.New("invalid retrieval max distance")
)

// Defaults.
const (
	// DefaultModel is the completion model.
	DefaultModel = "gpt-4o"

	// DefaultEmbeddingModel fixes the embedding model identity per
	// deployment; the embeddings table dimension (1536) matches it.
	DefaultEmbeddingModel = "text-embedding-3-small"
)

// Config stores application configuration.
type Config struct {
	// Model configuration.
	Model          string `mapstructure:"model" json:"model"`
	EmbeddingModel string `mapstructure:"embedding_model" json:"embedding_model"`
	OpenAIAPIKey   string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON

	// Orchestrator configuration.
	MaxSteps int `mapstructure:"max_steps" json:"max_steps"`

	// Retrieval configuration.
	TopK        int     `mapstructure:"top_k" json:"top_k"`
	MaxDistance float64 `mapstructure:"max_distance" json:"max_distance"`

	// Storage configuration.
	DatabaseURL string `mapstructure:"database_url" json:"database_url"` // SENSITIVE: masked in MarshalJSON

	// HTTP server address.
	Addr string `mapstructure:"addr" json:"addr"`

	// Tracing configuration.
	OTLPEndpoint string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	ServiceName  string `mapstructure:"service_name" json:"service_name"`
	Environment  string `mapstructure:"environment" json:"environment"`
}

// Load reads configuration from defaults, ~/.recall/config.yaml and the
// environment, then validates it fail-fast.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".recall")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults plus environment apply.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", DefaultModel)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("max_steps", 5)
	v.SetDefault("top_k", 4)
	v.SetDefault("max_distance", 0.7)
	v.SetDefault("addr", "127.0.0.1:3400")
	v.SetDefault("otlp_endpoint", "localhost:4318")
	v.SetDefault("service_name", "recall")
	v.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment overrides explicitly. Hardcoded
// keys cannot fail to bind; a panic here is a bug, not a runtime error.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("openai_api_key", "OPENAI_API_KEY")
	mustBind("database_url", "DATABASE_URL")
	mustBind("otlp_endpoint", "RECALL_OTLP_ENDPOINT")
	mustBind("model", "RECALL_MODEL")
	mustBind("embedding_model", "RECALL_EMBEDDING_MODEL")
	mustBind("addr", "RECALL_ADDR")
	mustBind("environment", "RECALL_ENV")
}

// Validate checks the configuration fail-fast.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("%w: set DATABASE_URL", ErrMissingDatabaseURL)
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDatabaseURL, err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("%w: scheme %q (expected postgres or postgresql)", ErrInvalidDatabaseURL, u.Scheme)
	}
	if c.MaxSteps < 1 || c.MaxSteps > 20 {
		return fmt.Errorf("%w: %d (must be 1-20)", ErrInvalidMaxSteps, c.MaxSteps)
	}
	if c.TopK < 1 || c.TopK > 20 {
		return fmt.Errorf("%w: %d (must be 1-20)", ErrInvalidTopK, c.TopK)
	}
	if c.MaxDistance <= 0 || c.MaxDistance > 2 {
		return fmt.Errorf("%w: %v (must be in (0, 2])", ErrInvalidMaxDistance, c.MaxDistance)
	}
	return nil
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "********"

// maskSecret masks a secret for safe logging. Short secrets are fully
// masked to prevent substring matching; longer ones keep the first and
// last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// maskURL masks the password component of a connection URL.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), maskedValue)
	}
	return u.String()
}

// MarshalJSON masks sensitive fields. When adding a sensitive field,
// update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	a.DatabaseURL = maskURL(a.DatabaseURL)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
