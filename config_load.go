package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aiia-labs/orchestrator/models"
)

// LoadConfig reads and parses a config file from the given path on top of
// DefaultConfig. Supported formats: JSON (.json), YAML (.yaml, .yml).
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	// A models list in the file replaces the defaults rather than merging.
	cfg.Models = nil
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}
	if len(cfg.Models) == 0 {
		cfg.Models = models.Defaults()
	}

	return &cfg, nil
}

// FromEnv builds the runtime configuration: defaults, then the file named by
// AIIA_CONFIG if set, then environment overrides, then normalisation.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	if path := strings.TrimSpace(getenv("AIIA_CONFIG")); path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = *loaded
	}
	cfg.ApplyEnv(getenv)
	cfg.Normalize()
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateConfig validates a Config for correctness. Zero durations and
// limits are accepted because Normalize replaces them; negative values and
// malformed registries are not.
func ValidateConfig(cfg Config) error {
	if len(cfg.Models) > 0 {
		if _, err := models.NewRegistry(cfg.Models); err != nil {
			return fmt.Errorf("models: %w", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Cache.Backend)) {
	case "", "memory", "sqlite":
	case "postgres", "postgresql":
		if cfg.Cache.DSN == "" {
			return fmt.Errorf("cache backend postgres requires a dsn")
		}
	default:
		return fmt.Errorf("unknown cache backend: %q", cfg.Cache.Backend)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Server.CompletionLogBackend)) {
	case "", "none", "sqlite":
	case "postgres", "postgresql":
		if cfg.Server.CompletionLogDSN == "" {
			return fmt.Errorf("completion log backend postgres requires a dsn")
		}
	default:
		return fmt.Errorf("unknown completion log backend: %q", cfg.Server.CompletionLogBackend)
	}

	if cfg.Cache.TTLMs < 0 {
		return fmt.Errorf("cache ttl_ms must not be negative")
	}
	if cfg.Cache.CleanupIntervalMs < 0 {
		return fmt.Errorf("cache cleanup_interval_ms must not be negative")
	}
	if cfg.Breaker.FailureThreshold < 0 {
		return fmt.Errorf("breaker failure_threshold must not be negative")
	}
	if cfg.Breaker.CooldownMs < 0 {
		return fmt.Errorf("breaker cooldown_ms must not be negative")
	}
	if cfg.Dispatch.InvokeTimeoutMs < 0 {
		return fmt.Errorf("dispatch invoke_timeout_ms must not be negative")
	}
	if cfg.Dispatch.RaceWidth < 0 {
		return fmt.Errorf("dispatch race_width must not be negative")
	}
	if cfg.Server.RateLimitMax < 0 || cfg.Server.RateLimitWindowMs < 0 {
		return fmt.Errorf("server rate limit must not be negative")
	}
	if cfg.Server.MaxPromptChars < 0 {
		return fmt.Errorf("server max_prompt_chars must not be negative")
	}

	return nil
}
