package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigFile is read when present; otherwise configuration comes from env only.
const DefaultConfigFile = "config.yaml"

// Config holds all configuration for chat-gateway.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys, passwords) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"0.0.0.0"`
	Port     string `yaml:"port" env:"PORT" env-default:"10000"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// StaticDir is served at "/" when it exists.
	StaticDir string `yaml:"static_dir" env:"STATIC_DIR" env-default:"./chat_ui"`

	// CORSAllowedOriginsStr is a comma-separated origin list; "*" allows any origin.
	CORSAllowedOriginsStr string   `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS" env-default:"*"`
	CORSAllowedOrigins    []string `yaml:"-"`

	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	OpenSearch OpenSearchConfig `yaml:"opensearch"`
	Redis      RedisConfig      `yaml:"redis"`
	Memory     MemoryConfig     `yaml:"memory"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Auth       AuthConfig       `yaml:"auth"`
}

// OpenRouterConfig configures the upstream completion aggregator.
type OpenRouterConfig struct {
	BaseURL string        `yaml:"base_url" env:"OPENROUTER_BASE_URL" env-default:"https://openrouter.ai/api/v1"`
	APIKey  string        `yaml:"-" env:"OPENROUTER_API_KEY"` // Secret - not in YAML
	Timeout time.Duration `yaml:"timeout" env:"OPENROUTER_TIMEOUT" env-default:"30s"`
	Referer string        `yaml:"referer" env:"OPENROUTER_REFERER" env-default:"http://localhost:10000"`
	Title   string        `yaml:"title" env:"OPENROUTER_TITLE" env-default:"Chat Gateway"`

	// ChatModelsStr is the priority-ordered fallback list for chat turns.
	ChatModelsStr string   `yaml:"chat_models" env:"CHAT_MODELS" env-default:"google/gemma-3-27b-it:free,meta-llama/llama-3.3-70b-instruct:free,mistralai/mistral-small-3.1-24b-instruct:free,qwen/qwen-2.5-72b-instruct:free,deepseek/deepseek-chat-v3-0324:free"`
	ChatModels    []string `yaml:"-"`

	// SummaryModelsStr is the priority-ordered fallback list for summarization.
	SummaryModelsStr string   `yaml:"summary_models" env:"SUMMARY_MODELS" env-default:"google/gemini-2.0-flash-exp:free,meta-llama/llama-3.2-3b-instruct:free,mistralai/mistral-7b-instruct:free"`
	SummaryModels    []string `yaml:"-"`

	// NoSystemRoleStr lists model id fragments for models that reject the system role.
	NoSystemRoleStr string   `yaml:"no_system_role_models" env:"NO_SYSTEM_ROLE_MODELS" env-default:"google/gemma"`
	NoSystemRole    []string `yaml:"-"`

	// Delay applied after a 429 before moving to the next model.
	RateLimitDelay    time.Duration `yaml:"rate_limit_delay" env:"RATE_LIMIT_DELAY" env-default:"1s"`
	RateLimitMaxDelay time.Duration `yaml:"rate_limit_max_delay" env:"RATE_LIMIT_MAX_DELAY" env-default:"3s"`
}

// OpenSearchConfig configures the document store used for memory and telemetry.
// An empty URL disables the store; dependent features degrade to no-ops.
type OpenSearchConfig struct {
	URL            string        `yaml:"url" env:"OPENSEARCH_URL" env-default:"http://localhost:9200"`
	Username       string        `yaml:"username" env:"OPENSEARCH_USER" env-default:""`
	Password       string        `yaml:"-" env:"OPENSEARCH_PASSWORD"` // Secret - not in YAML
	InsecureTLS    bool          `yaml:"insecure_tls" env:"OPENSEARCH_INSECURE_TLS" env-default:"false"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"OPENSEARCH_TIMEOUT" env-default:"5s"`
	SummaryIndex   string        `yaml:"summary_index" env:"OPENSEARCH_SUMMARY_INDEX" env-default:"chat_summaries"`
	UsageIndex     string        `yaml:"usage_index" env:"OPENSEARCH_USAGE_INDEX" env-default:"token_usage"`
	ActivityIndex  string        `yaml:"activity_index" env:"OPENSEARCH_ACTIVITY_INDEX" env-default:"ai_chat_logs"`
}

// IsConfigured returns true if an OpenSearch endpoint is set.
func (c *OpenSearchConfig) IsConfigured() bool {
	return c.URL != ""
}

// RedisConfig holds Redis configuration for shared chat links.
// An empty host selects the in-process store.
type RedisConfig struct {
	Host     string        `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int           `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	DB       int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Password string        `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	ShareTTL time.Duration `yaml:"share_ttl" env:"SHARE_TTL" env-default:"168h"`
	// How long a user's active chat is remembered after their last message.
	ActiveChatTTL time.Duration `yaml:"active_chat_ttl" env:"ACTIVE_CHAT_TTL" env-default:"720h"`
}

// MemoryConfig controls summarization and memory injection.
type MemoryConfig struct {
	// SummaryWindow is the number of most recent turns sent for summarization.
	SummaryWindow int `yaml:"summary_window" env:"MEMORY_SUMMARY_WINDOW" env-default:"40"`
	// SummarizeEvery triggers a full summarization every N messages; other turns quick-touch.
	SummarizeEvery int `yaml:"summarize_every" env:"MEMORY_SUMMARIZE_EVERY" env-default:"6"`
	// BackgroundConcurrency bounds concurrently running background jobs.
	BackgroundConcurrency int `yaml:"background_concurrency" env:"MEMORY_BACKGROUND_CONCURRENCY" env-default:"4"`
	// BackgroundTimeout bounds a single background job.
	BackgroundTimeout time.Duration `yaml:"background_timeout" env:"MEMORY_BACKGROUND_TIMEOUT" env-default:"2m"`
}

// TelemetryConfig controls the async telemetry sink.
type TelemetryConfig struct {
	QueueSize   int    `yaml:"queue_size" env:"TELEMETRY_QUEUE_SIZE" env-default:"256"`
	Environment string `yaml:"environment" env:"TELEMETRY_ENVIRONMENT" env-default:"dev"`
}

// AuthConfig holds Google sign-in and session configuration.
type AuthConfig struct {
	// GoogleClientID is the expected audience of Google ID tokens.
	// Empty disables the /auth/google endpoint.
	GoogleClientID string `yaml:"google_client_id" env:"GOOGLE_CLIENT_ID" env-default:""`
	JWKSURL        string `yaml:"jwks_url" env:"GOOGLE_JWKS_URL" env-default:"https://www.googleapis.com/oauth2/v3/certs"`

	// IssuersStr is a comma-separated list of accepted token issuers.
	IssuersStr string   `yaml:"issuers" env:"GOOGLE_ISSUERS" env-default:"https://accounts.google.com,accounts.google.com"`
	Issuers    []string `yaml:"-"`

	SessionSecret string        `yaml:"-" env:"SESSION_SECRET"` // Secret - not in YAML
	SessionMaxAge time.Duration `yaml:"session_max_age" env:"SESSION_MAX_AGE" env-default:"720h"`
	SecureCookie  bool          `yaml:"secure_cookie" env:"SESSION_SECURE_COOKIE" env-default:"false"`
}

// IsGoogleEnabled returns true if Google sign-in is configured.
func (c *AuthConfig) IsGoogleEnabled() bool {
	return c.GoogleClientID != ""
}

// Load reads configuration from config.yaml (when present) with environment
// variable overrides. The version parameter is injected at build time.
func Load(version string) (*Config, error) {
	return LoadFile(DefaultConfigFile, version)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	cfg.parseComplexFields()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.BaseURL == "" {
		cfg.BaseURL = (&url.URL{
			Scheme: "http",
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() {
	c.CORSAllowedOrigins = ParseList(c.CORSAllowedOriginsStr)
	c.OpenRouter.ChatModels = ParseList(c.OpenRouter.ChatModelsStr)
	c.OpenRouter.SummaryModels = ParseList(c.OpenRouter.SummaryModelsStr)
	c.OpenRouter.NoSystemRole = ParseList(c.OpenRouter.NoSystemRoleStr)
	c.Auth.Issuers = ParseList(c.Auth.IssuersStr)

	c.OpenSearch.URL = ResolveURLForDocker(c.OpenSearch.URL)
	c.Redis.Host = ResolveHostForDocker(c.Redis.Host)
}

func (c *Config) validate() error {
	if len(c.OpenRouter.ChatModels) == 0 {
		return fmt.Errorf("chat_models must list at least one model")
	}
	if len(c.OpenRouter.SummaryModels) == 0 {
		return fmt.Errorf("summary_models must list at least one model")
	}
	if c.OpenRouter.Timeout <= 0 {
		return fmt.Errorf("openrouter timeout must be positive")
	}
	if c.OpenSearch.RequestTimeout <= 0 {
		return fmt.Errorf("opensearch request_timeout must be positive")
	}
	if c.Memory.SummaryWindow <= 0 {
		return fmt.Errorf("memory summary_window must be positive")
	}
	return nil
}

// ParseList splits a comma-separated value, trimming blanks and dropping empty entries.
func ParseList(value string) []string {
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ListenAddr returns the host:port the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return c.BindAddr + ":" + c.Port
}

// Addr returns the Redis host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
