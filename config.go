package orchestrator

import (
	"strconv"
	"strings"
	"time"

	"github.com/aiia-labs/orchestrator/internal/cache"
	"github.com/aiia-labs/orchestrator/internal/circuitbreaker"
	"github.com/aiia-labs/orchestrator/internal/invoker"
	"github.com/aiia-labs/orchestrator/models"
)

// Default limits.
const (
	DefaultRaceWidth         = 2
	DefaultCacheBackend      = "sqlite"
	DefaultPort              = "3000"
	DefaultRateLimitWindow   = 15 * time.Minute
	DefaultRateLimitMax      = 100
	DefaultMaxPromptChars    = 20000
	DefaultMaxSummarizeChars = 200000
	DefaultSummarizeRatio    = 0.3
	EnvironmentProduction    = "production"
	defaultVertexLocation    = "us-central1"
)

// Config holds the configuration for the orchestrator and its server.
type Config struct {
	// Models overrides the built-in registry when non-empty.
	Models    []models.Model  `json:"models,omitempty" yaml:"models,omitempty"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Breaker   BreakerConfig   `json:"breaker" yaml:"breaker"`
	Dispatch  DispatchConfig  `json:"dispatch" yaml:"dispatch"`
	Providers ProvidersConfig `json:"providers" yaml:"providers"`
	Server    ServerConfig    `json:"server" yaml:"server"`
}

// CacheConfig controls the prompt cache.
type CacheConfig struct {
	// Backend is one of memory, sqlite or postgres.
	Backend           string `json:"backend" yaml:"backend"`
	DSN               string `json:"dsn" yaml:"dsn"`
	TTLMs             int64  `json:"ttl_ms" yaml:"ttl_ms"`
	CleanupIntervalMs int64  `json:"cleanup_interval_ms" yaml:"cleanup_interval_ms"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLMs) * time.Millisecond }

// CleanupInterval returns the minimum spacing between cache sweeps.
func (c CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalMs) * time.Millisecond
}

// BreakerConfig controls per-model cooldown.
type BreakerConfig struct {
	FailureThreshold int   `json:"failure_threshold" yaml:"failure_threshold"`
	CooldownMs       int64 `json:"cooldown_ms" yaml:"cooldown_ms"`
}

// Cooldown returns how long a tripped model stays excluded.
func (b BreakerConfig) Cooldown() time.Duration { return time.Duration(b.CooldownMs) * time.Millisecond }

// DispatchConfig controls how a request fans out.
type DispatchConfig struct {
	InvokeTimeoutMs int64 `json:"invoke_timeout_ms" yaml:"invoke_timeout_ms"`
	RaceWidth       int   `json:"race_width" yaml:"race_width"`
}

// InvokeTimeout returns the per-invocation bound.
func (d DispatchConfig) InvokeTimeout() time.Duration {
	return time.Duration(d.InvokeTimeoutMs) * time.Millisecond
}

// ProvidersConfig carries backend credentials. Empty values leave the
// family simulated.
type ProvidersConfig struct {
	GeminiAPIKey     string `json:"gemini_api_key,omitempty" yaml:"gemini_api_key,omitempty"`
	GeminiBaseURL    string `json:"gemini_base_url,omitempty" yaml:"gemini_base_url,omitempty"`
	VertexProject    string `json:"vertex_project,omitempty" yaml:"vertex_project,omitempty"`
	VertexLocation   string `json:"vertex_location,omitempty" yaml:"vertex_location,omitempty"`
	OpenAIAPIKey     string `json:"openai_api_key,omitempty" yaml:"openai_api_key,omitempty"`
	OpenAIBaseURL    string `json:"openai_base_url,omitempty" yaml:"openai_base_url,omitempty"`
	AnthropicAPIKey  string `json:"anthropic_api_key,omitempty" yaml:"anthropic_api_key,omitempty"`
	AnthropicBaseURL string `json:"anthropic_base_url,omitempty" yaml:"anthropic_base_url,omitempty"`
	BedrockRegion    string `json:"bedrock_region,omitempty" yaml:"bedrock_region,omitempty"`
	AWSAccessKeyID   string `json:"-" yaml:"-"`
	AWSSecretKey     string `json:"-" yaml:"-"`
	AWSSessionToken  string `json:"-" yaml:"-"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Port              string   `json:"port" yaml:"port"`
	CORSOrigins       []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	RateLimitWindowMs int64    `json:"rate_limit_window_ms" yaml:"rate_limit_window_ms"`
	RateLimitMax      int      `json:"rate_limit_max" yaml:"rate_limit_max"`
	MaxPromptChars    int      `json:"max_prompt_chars" yaml:"max_prompt_chars"`
	Environment       string   `json:"environment,omitempty" yaml:"environment,omitempty"`

	// CompletionLogBackend is sqlite or postgres. Empty disables the log.
	CompletionLogBackend string `json:"completion_log_backend,omitempty" yaml:"completion_log_backend,omitempty"`
	CompletionLogDSN     string `json:"completion_log_dsn,omitempty" yaml:"completion_log_dsn,omitempty"`
}

// RateLimitWindow returns the rate limit window.
func (s ServerConfig) RateLimitWindow() time.Duration {
	return time.Duration(s.RateLimitWindowMs) * time.Millisecond
}

// Production reports whether error details should be hidden from clients.
func (s ServerConfig) Production() bool {
	return strings.EqualFold(s.Environment, EnvironmentProduction)
}

// DefaultConfig returns the documented defaults with the built-in registry.
func DefaultConfig() Config {
	return Config{
		Models: models.Defaults(),
		Cache: CacheConfig{
			Backend:           DefaultCacheBackend,
			DSN:               cache.DefaultSQLitePath,
			TTLMs:             cache.DefaultTTL.Milliseconds(),
			CleanupIntervalMs: cache.DefaultCleanupInterval.Milliseconds(),
		},
		Breaker: BreakerConfig{
			FailureThreshold: circuitbreaker.DefaultFailureThreshold,
			CooldownMs:       circuitbreaker.DefaultCooldown.Milliseconds(),
		},
		Dispatch: DispatchConfig{
			InvokeTimeoutMs: invoker.DefaultTimeout.Milliseconds(),
			RaceWidth:       DefaultRaceWidth,
		},
		Server: ServerConfig{
			Port:              DefaultPort,
			RateLimitWindowMs: DefaultRateLimitWindow.Milliseconds(),
			RateLimitMax:      DefaultRateLimitMax,
			MaxPromptChars:    DefaultMaxPromptChars,
		},
	}
}

// ApplyEnv overlays recognised environment variables read through getenv.
// Numeric variables that are missing, malformed or non-positive are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	positive := func(key string, dst *int64) {
		if n, err := strconv.ParseInt(strings.TrimSpace(getenv(key)), 10, 64); err == nil && n > 0 {
			*dst = n
		}
	}
	positiveInt := func(key string, dst *int) {
		var v int64
		positive(key, &v)
		if v > 0 {
			*dst = int(v)
		}
	}
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	positive("AIIA_CACHE_TTL_MS", &c.Cache.TTLMs)
	positive("AIIA_CACHE_CLEANUP_INTERVAL_MS", &c.Cache.CleanupIntervalMs)
	str("AIIA_CACHE_BACKEND", &c.Cache.Backend)
	str("AIIA_CACHE_DSN", &c.Cache.DSN)

	positiveInt("AIIA_FAILURE_THRESHOLD", &c.Breaker.FailureThreshold)
	positive("AIIA_COOLDOWN_MS", &c.Breaker.CooldownMs)

	positive("AIIA_INVOKE_TIMEOUT_MS", &c.Dispatch.InvokeTimeoutMs)
	positiveInt("AIIA_RACE_WIDTH", &c.Dispatch.RaceWidth)

	str("GEMINI_API_KEY", &c.Providers.GeminiAPIKey)
	str("GEMINI_BASE_URL", &c.Providers.GeminiBaseURL)
	str("GOOGLE_VERTEX_PROJECT", &c.Providers.VertexProject)
	str("GOOGLE_VERTEX_LOCATION", &c.Providers.VertexLocation)
	str("OPENAI_API_KEY", &c.Providers.OpenAIAPIKey)
	str("OPENAI_BASE_URL", &c.Providers.OpenAIBaseURL)
	str("ANTHROPIC_API_KEY", &c.Providers.AnthropicAPIKey)
	str("ANTHROPIC_BASE_URL", &c.Providers.AnthropicBaseURL)
	str("AIIA_BEDROCK_REGION", &c.Providers.BedrockRegion)
	str("AWS_ACCESS_KEY_ID", &c.Providers.AWSAccessKeyID)
	str("AWS_SECRET_ACCESS_KEY", &c.Providers.AWSSecretKey)
	str("AWS_SESSION_TOKEN", &c.Providers.AWSSessionToken)

	str("PORT", &c.Server.Port)
	if v := strings.TrimSpace(getenv("AIIA_CORS_ORIGINS")); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	positive("AIIA_RATE_LIMIT_WINDOW_MS", &c.Server.RateLimitWindowMs)
	positiveInt("AIIA_RATE_LIMIT_MAX", &c.Server.RateLimitMax)
	positiveInt("AIIA_MAX_PROMPT_CHARS", &c.Server.MaxPromptChars)
	str("AIIA_ENV", &c.Server.Environment)
	str("AIIA_COMPLETION_LOG_BACKEND", &c.Server.CompletionLogBackend)
	str("AIIA_COMPLETION_LOG_DSN", &c.Server.CompletionLogDSN)
}

// Normalize replaces every missing or non-positive setting with its default.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if len(c.Models) == 0 {
		c.Models = d.Models
	}
	if strings.TrimSpace(c.Cache.Backend) == "" {
		c.Cache.Backend = d.Cache.Backend
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.DSN == "" && c.Cache.Backend == "sqlite" {
		c.Cache.DSN = d.Cache.DSN
	}
	if c.Cache.TTLMs <= 0 {
		c.Cache.TTLMs = d.Cache.TTLMs
	}
	if c.Cache.CleanupIntervalMs <= 0 {
		c.Cache.CleanupIntervalMs = d.Cache.CleanupIntervalMs
	}
	if c.Breaker.FailureThreshold <= 0 {
		c.Breaker.FailureThreshold = d.Breaker.FailureThreshold
	}
	if c.Breaker.CooldownMs <= 0 {
		c.Breaker.CooldownMs = d.Breaker.CooldownMs
	}
	if c.Dispatch.InvokeTimeoutMs <= 0 {
		c.Dispatch.InvokeTimeoutMs = d.Dispatch.InvokeTimeoutMs
	}
	if c.Dispatch.RaceWidth <= 0 {
		c.Dispatch.RaceWidth = d.Dispatch.RaceWidth
	}
	if c.Providers.VertexProject != "" && c.Providers.VertexLocation == "" {
		c.Providers.VertexLocation = defaultVertexLocation
	}
	if strings.TrimSpace(c.Server.Port) == "" {
		c.Server.Port = d.Server.Port
	}
	if c.Server.RateLimitWindowMs <= 0 {
		c.Server.RateLimitWindowMs = d.Server.RateLimitWindowMs
	}
	if c.Server.RateLimitMax <= 0 {
		c.Server.RateLimitMax = d.Server.RateLimitMax
	}
	if c.Server.MaxPromptChars <= 0 {
		c.Server.MaxPromptChars = d.Server.MaxPromptChars
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
