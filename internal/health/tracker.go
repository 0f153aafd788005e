// Package health keeps per-model runtime statistics and ranks models for
// dispatch. State is process-local and resets on restart.
package health

import (
	"sort"
	"sync"
	"time"

	"github.com/aiia-labs/orchestrator/internal/circuitbreaker"
	"github.com/aiia-labs/orchestrator/internal/logging"
	"github.com/aiia-labs/orchestrator/internal/metrics"
	"github.com/aiia-labs/orchestrator/models"
)

const (
	// latencyAlpha is the weight given to a new latency sample.
	latencyAlpha = 0.3
	// maxLatencyPenalty caps how much slowness can subtract from a score.
	maxLatencyPenalty = 0.4
	// latencyScaleMs is the latency at which the penalty reaches 1.0.
	latencyScaleMs = 5000.0
)

// Record is a point-in-time copy of one model's health.
type Record struct {
	ID            string          `json:"id"`
	Provider      models.Provider `json:"provider"`
	Successes     uint64          `json:"successes"`
	Failures      int             `json:"failures"`
	LastError     string          `json:"lastError,omitempty"`
	CooldownUntil time.Time       `json:"cooldownUntil,omitempty"`
	AvgLatencyMs  *float64        `json:"avgLatencyMs,omitempty"`
	Score         float64         `json:"score"`
	Eligible      bool            `json:"eligible"`
}

type entry struct {
	model models.Model
	cb    *circuitbreaker.CircuitBreaker

	mu         sync.Mutex
	successes  uint64
	lastError  string
	avgLatency float64
	hasLatency bool
}

// Tracker owns one health record per registered model. Records are locked
// individually so updates for different models never contend.
type Tracker struct {
	registry *models.Registry
	entries  map[string]*entry
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*trackerConfig)

type trackerConfig struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

// WithThreshold sets the number of failures that opens a model's breaker.
func WithThreshold(n int) Option {
	return func(c *trackerConfig) { c.threshold = n }
}

// WithCooldown sets how long an opened breaker excludes a model.
func WithCooldown(d time.Duration) Option {
	return func(c *trackerConfig) { c.cooldown = d }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *trackerConfig) { c.now = now }
}

// NewTracker creates zeroed records for every model in reg.
func NewTracker(reg *models.Registry, opts ...Option) *Tracker {
	cfg := trackerConfig{
		threshold: circuitbreaker.DefaultFailureThreshold,
		cooldown:  circuitbreaker.DefaultCooldown,
		now:       time.Now,
	}
	for _, o := range opts {
		o(&cfg)
	}
	t := &Tracker{
		registry: reg,
		entries:  make(map[string]*entry, reg.Len()),
		now:      cfg.now,
	}
	for _, m := range reg.All() {
		t.entries[m.ID] = &entry{
			model: m,
			cb:    circuitbreaker.New(cfg.threshold, cfg.cooldown).WithClock(cfg.now),
		}
		metrics.CircuitBreakerState.WithLabelValues(m.ID).Set(0)
	}
	return t
}

// Registry returns the registry the tracker was built over.
func (t *Tracker) Registry() *models.Registry { return t.registry }

// Now returns the tracker's current time.
func (t *Tracker) Now() time.Time { return t.now() }

// Score ranks a model: weight + reliability - latency penalty. Unknown ids
// score zero.
func (t *Tracker) Score(id string) float64 {
	e, ok := t.entries[id]
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scoreLocked()
}

func (e *entry) scoreLocked() float64 {
	total := e.successes + uint64(e.cb.Failures())
	if total == 0 {
		total = 1
	}
	reliability := float64(e.successes) / float64(total)
	penalty := 0.0
	if e.hasLatency {
		penalty = e.avgLatency / latencyScaleMs
		if penalty > maxLatencyPenalty {
			penalty = maxLatencyPenalty
		}
	}
	return e.model.Weight + reliability - penalty
}

// Eligible returns the models whose cooldown has expired at now, best score
// first. Equal scores keep registry order.
func (t *Tracker) Eligible(now time.Time) []models.Model {
	type scored struct {
		m     models.Model
		score float64
	}
	all := t.registry.All()
	pool := make([]scored, 0, len(all))
	for _, m := range all {
		e := t.entries[m.ID]
		e.mu.Lock()
		allowed := e.cb.Allow(now)
		s := e.scoreLocked()
		e.mu.Unlock()
		observeBreaker(m.ID, allowed)
		if !allowed {
			continue
		}
		pool = append(pool, scored{m: m, score: s})
	}
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].score > pool[j].score })
	out := make([]models.Model, len(pool))
	for i, p := range pool {
		out[i] = p.m
	}
	return out
}

// observeBreaker syncs the breaker gauge with the state at the last check,
// so a lapsed cooldown reads closed without waiting for a success.
func observeBreaker(id string, allowed bool) {
	v := 1.0
	if allowed {
		v = 0
	}
	metrics.CircuitBreakerState.WithLabelValues(id).Set(v)
}

// RecordSuccess credits a completed call that took latencyMs.
func (t *Tracker) RecordSuccess(id string, latencyMs float64) {
	e, ok := t.entries[id]
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.successes++
	e.cb.RecordSuccess()
	e.lastError = ""
	if e.hasLatency {
		e.avgLatency = latencyAlpha*latencyMs + (1-latencyAlpha)*e.avgLatency
	} else {
		e.avgLatency = latencyMs
		e.hasLatency = true
	}
	metrics.CircuitBreakerState.WithLabelValues(id).Set(0)
}

// RecordFailure notes a failed call. Crossing the threshold opens the
// model's breaker for the cooldown duration.
func (t *Tracker) RecordFailure(id string, err error) {
	e, ok := t.entries[id]
	if !ok {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.lastError = err.Error()
	}
	if e.cb.RecordFailure() {
		metrics.CircuitBreakerState.WithLabelValues(id).Set(1)
		logging.Logger.Warn("circuit breaker opened",
			"model", id,
			"cooldown", e.cb.Cooldown().String(),
			"until", e.cb.OpenUntil(),
		)
	}
}

// Snapshot returns every record in registry order.
func (t *Tracker) Snapshot() []Record {
	now := t.now()
	all := t.registry.All()
	out := make([]Record, 0, len(all))
	for _, m := range all {
		e := t.entries[m.ID]
		e.mu.Lock()
		r := Record{
			ID:        m.ID,
			Provider:  m.Provider,
			Successes: e.successes,
			Failures:  e.cb.Failures(),
			LastError: e.lastError,
			Score:     e.scoreLocked(),
			Eligible:  e.cb.Allow(now),
		}
		observeBreaker(m.ID, r.Eligible)
		if until := e.cb.OpenUntil(); !until.IsZero() {
			r.CooldownUntil = until
		}
		if e.hasLatency {
			v := e.avgLatency
			r.AvgLatencyMs = &v
		}
		e.mu.Unlock()
		out = append(out, r)
	}
	return out
}

// Get returns one model's record.
func (t *Tracker) Get(id string) (Record, bool) {
	if _, ok := t.entries[id]; !ok {
		return Record{}, false
	}
	for _, r := range t.Snapshot() {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}
