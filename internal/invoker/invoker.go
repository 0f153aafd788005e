// Package invoker performs a single completion call against one model,
// choosing between the live backend registered for the model's vendor family
// and the simulator, and measuring wall-clock latency around the call.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/internal/metrics"
	"github.com/aiia-labs/orchestrator/models"
	"github.com/aiia-labs/orchestrator/providers"
)

// DefaultTimeout bounds a single invocation.
const DefaultTimeout = 60 * time.Second

// Result is the outcome of one successful invocation.
type Result struct {
	Model     models.Model
	Content   string
	Latency   time.Duration
	Backend   string
	Simulated bool
}

// LatencyMs returns the measured latency in whole milliseconds.
func (r Result) LatencyMs() int64 { return r.Latency.Milliseconds() }

// Error wraps a failure from one backend.
type Error struct {
	Model    string
	Provider models.Provider
	Backend  string
	Latency  time.Duration
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("model %s (%s via %s): %v", e.Model, e.Provider, e.Backend, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrEmptyResponse is returned when a backend answers with no content.
var ErrEmptyResponse = errors.New("backend returned empty content")

// Invoker calls one model.
type Invoker interface {
	Invoke(ctx context.Context, m models.Model, prompt string) (Result, error)
}

// Backend is the default Invoker.
type Backend struct {
	live      *providers.Registry
	simulator providers.Provider
	timeout   time.Duration
	now       func() time.Time
}

// Option configures a Backend.
type Option func(*Backend)

// WithTimeout bounds each invocation. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithSimulator replaces the stand-in used for families without a live backend.
func WithSimulator(p providers.Provider) Option {
	return func(b *Backend) {
		if p != nil {
			b.simulator = p
		}
	}
}

// WithClock replaces the time source used for latency measurement.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// New returns a Backend routing each family to its entry in live, or to the
// simulator when the family has none. live may be nil.
func New(live *providers.Registry, opts ...Option) *Backend {
	if live == nil {
		live = providers.NewRegistry()
	}
	b := &Backend{
		live:      live,
		simulator: providers.NewSimulator(),
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// IsLive reports whether family is served by a real backend.
func (b *Backend) IsLive(family models.Provider) bool {
	_, ok := b.live.Get(family)
	return ok
}

// Invoke calls m with prompt, bounded by the configured timeout.
func (b *Backend) Invoke(ctx context.Context, m models.Model, prompt string) (Result, error) {
	p, live := b.live.Get(m.Provider)
	if !live {
		p = b.simulator
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := b.now()
	resp, err := p.Complete(ctx, providers.PromptRequest(m.ID, prompt))
	latency := b.now().Sub(start)
	if err == nil && resp.Content == "" {
		err = ErrEmptyResponse
	}

	metrics.InvocationDuration.WithLabelValues(m.ID, string(m.Provider)).Observe(latency.Seconds())
	if err != nil {
		metrics.Invocations.WithLabelValues(m.ID, string(m.Provider), "failure").Inc()
		logging.FromContext(ctx).Debug("model invocation failed",
			"model", m.ID,
			"backend", p.Name(),
			"latency_ms", latency.Milliseconds(),
			"error", err,
		)
		return Result{}, &Error{Model: m.ID, Provider: m.Provider, Backend: p.Name(), Latency: latency, Err: err}
	}
	metrics.Invocations.WithLabelValues(m.ID, string(m.Provider), "success").Inc()

	return Result{
		Model:     m,
		Content:   resp.Content,
		Latency:   latency,
		Backend:   p.Name(),
		Simulated: !live,
	}, nil
}
