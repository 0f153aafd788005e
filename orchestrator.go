// Package orchestrator dispatches a prompt to one of several LLM backends
// and returns the first usable answer.
//
// The Orchestrator type is the main entry point: build one with New and call
// GetCompletion. Each call consults the prompt cache, ranks the registered
// models by live health, races the best candidates, falls back to a
// sequential walk and finally to a rescue pass over the whole registry.
// Models that fail repeatedly are cooled down by a per-model circuit breaker.
//
// Configuration is a [Config] which can be loaded from a YAML or JSON file
// using [LoadConfig] or assembled from the environment with [FromEnv].
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/aiia-labs/orchestrator/internal/cache"
	"github.com/aiia-labs/orchestrator/internal/health"
	"github.com/aiia-labs/orchestrator/internal/invoker"
	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/internal/metrics"
	"github.com/aiia-labs/orchestrator/internal/strategies"
	"github.com/aiia-labs/orchestrator/models"
	"github.com/aiia-labs/orchestrator/providers"
)

// EventHookFunc is called asynchronously after a completion succeeds or
// fails.
type EventHookFunc func(ctx context.Context, subject string, data map[string]interface{})

// Event subject constants used when invoking hooks.
const (
	SubjectCompletionSucceeded = "completion.succeeded"
	SubjectCompletionFailed    = "completion.failed"
)

// Orchestrator is the main entry point for completions. It is safe for
// concurrent use.
type Orchestrator struct {
	cfg        Config
	registry   *models.Registry
	health     *health.Tracker
	cache      *cache.Cache
	live       *providers.Registry
	invoker    invoker.Invoker
	race       strategies.Strategy
	sequential strategies.Strategy
	now        func() time.Time

	flight singleflight.Group

	mu    sync.RWMutex
	hooks []EventHookFunc
}

// Option customises an Orchestrator.
type Option func(*buildOptions)

type buildOptions struct {
	store     cache.Store
	live      *providers.Registry
	invoker   invoker.Invoker
	simulator providers.Provider
	now       func() time.Time
}

// WithCacheStore replaces the store selected by Config.Cache.
func WithCacheStore(s cache.Store) Option {
	return func(o *buildOptions) { o.store = s }
}

// WithProviders replaces the live backends built from Config.Providers.
func WithProviders(r *providers.Registry) Option {
	return func(o *buildOptions) { o.live = r }
}

// WithInvoker replaces the backend invoker entirely. Status still reports
// the providers registry.
func WithInvoker(inv invoker.Invoker) Option {
	return func(o *buildOptions) { o.invoker = inv }
}

// WithSimulator replaces the stand-in used for families with no live backend.
func WithSimulator(p providers.Provider) Option {
	return func(o *buildOptions) { o.simulator = p }
}

// WithClock replaces the time source for health, cache and latency.
func WithClock(now func() time.Time) Option {
	return func(o *buildOptions) { o.now = now }
}

// New creates an Orchestrator. cfg is normalised before use; an invalid
// config is rejected. A cache store that cannot be opened falls back to
// memory with a warning.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	cfg.Normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	b := buildOptions{now: time.Now}
	for _, o := range opts {
		o(&b)
	}

	reg, err := models.NewRegistry(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("model registry: %w", err)
	}

	if b.live == nil {
		live, errs := providers.BuildRegistry(context.Background(), credentials(cfg.Providers))
		for _, e := range errs {
			logging.Logger.Warn("live backend unavailable, using simulator", "error", e)
		}
		b.live = live
	}

	if b.store == nil {
		store, err := cache.Open(cfg.Cache.Backend, cfg.Cache.DSN)
		if err != nil {
			logging.Logger.Warn("cache store unavailable, using memory", "backend", cfg.Cache.Backend, "error", err)
			store = cache.NewMemory(0)
		}
		b.store = store
	}

	if b.invoker == nil {
		invOpts := []invoker.Option{
			invoker.WithTimeout(cfg.Dispatch.InvokeTimeout()),
			invoker.WithClock(b.now),
		}
		if b.simulator != nil {
			invOpts = append(invOpts, invoker.WithSimulator(b.simulator))
		}
		b.invoker = invoker.New(b.live, invOpts...)
	}

	tracker := health.NewTracker(reg,
		health.WithThreshold(cfg.Breaker.FailureThreshold),
		health.WithCooldown(cfg.Breaker.Cooldown()),
		health.WithClock(b.now),
	)

	return &Orchestrator{
		cfg:      cfg,
		registry: reg,
		health:   tracker,
		cache: cache.New(b.store, cache.Options{
			TTL:             cfg.Cache.TTL(),
			CleanupInterval: cfg.Cache.CleanupInterval(),
			Now:             b.now,
		}),
		live:       b.live,
		invoker:    b.invoker,
		race:       strategies.NewRace(b.invoker, tracker),
		sequential: strategies.NewSequential(b.invoker, tracker),
		now:        b.now,
	}, nil
}

func credentials(p ProvidersConfig) providers.Credentials {
	return providers.Credentials{
		GeminiAPIKey:     p.GeminiAPIKey,
		GeminiBaseURL:    p.GeminiBaseURL,
		VertexProject:    p.VertexProject,
		VertexLocation:   p.VertexLocation,
		OpenAIAPIKey:     p.OpenAIAPIKey,
		OpenAIBaseURL:    p.OpenAIBaseURL,
		AnthropicAPIKey:  p.AnthropicAPIKey,
		AnthropicBaseURL: p.AnthropicBaseURL,
		Bedrock: providers.BedrockConfig{
			Region:          p.BedrockRegion,
			AccessKeyID:     p.AWSAccessKeyID,
			SecretAccessKey: p.AWSSecretKey,
			SessionToken:    p.AWSSessionToken,
		},
		UseBedrock: p.BedrockRegion != "",
	}
}

// Config returns the normalised configuration in use.
func (o *Orchestrator) Config() Config { return o.cfg }

// Registry returns the model registry.
func (o *Orchestrator) Registry() *models.Registry { return o.registry }

// AddHook registers an EventHookFunc that is called asynchronously on each
// completion event.
func (o *Orchestrator) AddHook(fn EventHookFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hooks = append(o.hooks, fn)
}

// publishEvent calls all registered hooks asynchronously.
func (o *Orchestrator) publishEvent(ctx context.Context, subject string, data map[string]interface{}) {
	o.mu.RLock()
	hooks := make([]EventHookFunc, len(o.hooks))
	copy(hooks, o.hooks)
	o.mu.RUnlock()

	for _, h := range hooks {
		fn := h
		go fn(ctx, subject, data)
	}
}

// GetCompletion returns a completion for prompt. The prompt is trimmed
// before hashing and dispatch. Blank prompts fail with ErrInvalidInput;
// when every model fails the error is ErrPoolExhausted.
//
// Concurrent cache-enabled calls for the same prompt and race option share
// one dispatch.
// A caller whose context ends stops waiting, but the shared dispatch runs
// on and its result is still cached.
func (o *Orchestrator) GetCompletion(ctx context.Context, prompt string, opts Options) (*CompletionResult, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		metrics.CompletionsTotal.WithLabelValues("none", "invalid").Inc()
		return nil, fmt.Errorf("%w: prompt is empty", ErrInvalidInput)
	}

	if !opts.useCache() {
		return o.dispatch(ctx, prompt, "", opts.race())
	}

	hash := cache.HashPrompt(prompt)
	if res, ok := o.lookup(ctx, hash); ok {
		return res, nil
	}

	race := opts.race()
	ch := o.flight.DoChan(flightKey(hash, race), func() (interface{}, error) {
		shared := context.WithoutCancel(ctx)
		// A flight that finished between the lookup above and this one may
		// already have stored the answer.
		if raw, ok := o.cache.Peek(shared, hash); ok {
			if res, err := decodeCached(raw); err == nil {
				return res, nil
			}
		}
		return o.dispatch(shared, prompt, hash, race)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*CompletionResult)
		return &res, nil
	}
}

func (o *Orchestrator) lookup(ctx context.Context, hash string) (*CompletionResult, bool) {
	raw, ok := o.cache.Lookup(ctx, hash)
	if !ok {
		return nil, false
	}
	res, err := decodeCached(raw)
	if err != nil {
		logging.FromContext(ctx).Debug("cached response unreadable", "error", err)
		return nil, false
	}
	logging.FromContext(ctx).Info("cache hit", "hash", hash[:12], "model", res.ModelID)
	metrics.CompletionsTotal.WithLabelValues("cache", "success").Inc()
	return res, true
}

func decodeCached(raw string) (*CompletionResult, error) {
	var c cachedResult
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return c.result(), nil
}

// flightKey separates coalesced dispatches by race option so a caller that
// asked for sequential dispatch never receives another caller's race.
func flightKey(hash string, race bool) string {
	if race {
		return hash + ":race"
	}
	return hash + ":sequential"
}

// dispatch runs the race, the sequential walk and the rescue pass in turn.
// hash is empty when the cache is bypassed.
func (o *Orchestrator) dispatch(ctx context.Context, prompt, hash string, race bool) (*CompletionResult, error) {
	log := logging.FromContext(ctx)

	var (
		res      invoker.Result
		err      error
		mode     = ModeSequential
		degraded bool
	)

	eligible := o.health.Eligible(o.now())
	switch {
	case len(eligible) == 0:
		log.Warn("all models in cooldown, dispatching over full registry")
		metrics.DegradedDispatches.Inc()
		degraded = true
		res, err = o.sequential.Execute(ctx, o.registry.All(), prompt)

	default:
		err = strategies.ErrEmptyPool
		if race {
			racers := eligible[:min(o.cfg.Dispatch.RaceWidth, len(eligible))]
			log.Info("race started", "models", modelIDs(racers))
			res, err = o.race.Execute(ctx, racers, prompt)
			if err == nil {
				mode = ModeRace
			} else {
				log.Warn("race failed, falling back to sequential", "error", err)
			}
		}
		if err != nil {
			res, err = o.sequential.Execute(ctx, eligible, prompt)
		}
		if err != nil && len(eligible) < o.registry.Len() {
			log.Warn("eligible pool exhausted, rescue pass over full registry")
			metrics.RescuePasses.Inc()
			res, err = o.sequential.Execute(ctx, o.registry.All(), prompt)
		}
	}

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		log.Error("global exhaustion, all models failed", "error", err)
		metrics.CompletionsTotal.WithLabelValues(string(mode), "exhausted").Inc()
		o.publishEvent(ctx, SubjectCompletionFailed, map[string]interface{}{
			"trace_id": logging.TraceIDFromContext(ctx),
			"error":    ErrPoolExhausted.Error(),
			"degraded": degraded,
		})
		return nil, ErrPoolExhausted
	}

	out := &CompletionResult{
		ModelID:   res.Model.ID,
		Provider:  res.Model.Provider,
		Content:   res.Content,
		LatencyMs: res.LatencyMs(),
		Mode:      mode,
		Simulated: res.Simulated,
		Degraded:  degraded,
	}
	metrics.CompletionsTotal.WithLabelValues(string(mode), "success").Inc()

	if hash != "" {
		if data, err := json.Marshal(toCached(out)); err != nil {
			log.Error("cache save failed", "error", err)
		} else {
			o.cache.Store(ctx, hash, string(data))
		}
	}

	o.publishEvent(ctx, SubjectCompletionSucceeded, map[string]interface{}{
		"trace_id":   logging.TraceIDFromContext(ctx),
		"model":      out.ModelID,
		"provider":   string(out.Provider),
		"mode":       string(out.Mode),
		"latency_ms": out.LatencyMs,
		"simulated":  out.Simulated,
		"degraded":   out.Degraded,
	})
	return out, nil
}

func modelIDs(ms []models.Model) []string {
	ids := make([]string, len(ms))
	for i, m := range ms {
		ids[i] = m.ID
	}
	return ids
}

// Health returns a snapshot of every model's health in registry order.
func (o *Orchestrator) Health() []health.Record { return o.health.Snapshot() }

// SweepCache deletes expired cache rows, ignoring the sweep throttle. The
// boolean is false when another sweep was already running or the store
// failed.
func (o *Orchestrator) SweepCache(ctx context.Context) (int64, bool) {
	return o.cache.ForceSweep(ctx)
}

// MaybeSweepCache runs a throttled sweep.
func (o *Orchestrator) MaybeSweepCache(ctx context.Context) bool {
	return o.cache.SweepExpired(ctx)
}

// ClearCache removes every cached response.
func (o *Orchestrator) ClearCache(ctx context.Context) error { return o.cache.Clear(ctx) }

// CacheStats reports cache activity.
func (o *Orchestrator) CacheStats(ctx context.Context) cache.Stats { return o.cache.Stats(ctx) }

// Close releases the cache store.
func (o *Orchestrator) Close() error { return o.cache.Close() }
