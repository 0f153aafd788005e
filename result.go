package orchestrator

import "github.com/aiia-labs/orchestrator/models"

// Mode names the dispatch path that produced a result.
type Mode string

// Dispatch modes.
const (
	ModeRace       Mode = "race"
	ModeSequential Mode = "sequential"
)

// CompletionResult is what GetCompletion returns.
type CompletionResult struct {
	ModelID   string          `json:"model"`
	Provider  models.Provider `json:"provider"`
	Content   string          `json:"content"`
	LatencyMs int64           `json:"latencyMs"`
	Mode      Mode            `json:"orchestrationMode"`
	Cached    bool            `json:"cached"`
	Simulated bool            `json:"simulated"`
	// Degraded is set when every model was in cooldown and the full
	// registry was walked instead.
	Degraded bool `json:"degraded,omitempty"`
}

// cachedResult is the serialised form kept in the cache store. The cached
// flag is derived on read.
type cachedResult struct {
	ModelID   string          `json:"model"`
	Provider  models.Provider `json:"provider"`
	Content   string          `json:"content"`
	LatencyMs int64           `json:"latencyMs"`
	Mode      Mode            `json:"orchestrationMode"`
	Simulated bool            `json:"simulated,omitempty"`
}

func (c cachedResult) result() *CompletionResult {
	return &CompletionResult{
		ModelID:   c.ModelID,
		Provider:  c.Provider,
		Content:   c.Content,
		LatencyMs: c.LatencyMs,
		Mode:      c.Mode,
		Simulated: c.Simulated,
		Cached:    true,
	}
}

func toCached(r *CompletionResult) cachedResult {
	return cachedResult{
		ModelID:   r.ModelID,
		Provider:  r.Provider,
		Content:   r.Content,
		LatencyMs: r.LatencyMs,
		Mode:      r.Mode,
		Simulated: r.Simulated,
	}
}

// Options controls a single GetCompletion call. Nil fields default to true.
type Options struct {
	UseCache *bool `json:"useCache,omitempty"`
	Race     *bool `json:"race,omitempty"`
}

// DefaultOptions enables both the cache and the race step.
func DefaultOptions() Options { return Options{UseCache: Bool(true), Race: Bool(true)} }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

func (o Options) useCache() bool { return o.UseCache == nil || *o.UseCache }
func (o Options) race() bool     { return o.Race == nil || *o.Race }
