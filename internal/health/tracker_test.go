package health

import (
	"errors"
	"math"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"

	"github.com/aiia-labs/orchestrator/internal/circuitbreaker"
	"github.com/aiia-labs/orchestrator/internal/metrics"
	"github.com/aiia-labs/orchestrator/models"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestTracker(t *testing.T, ms []models.Model) (*Tracker, *fakeClock) {
	t.Helper()
	reg, err := models.NewRegistry(ms)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	clk := &fakeClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewTracker(reg, WithClock(clk.Now)), clk
}

func ids(ms []models.Model) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestScore_Fresh(t *testing.T) {
	tr, _ := newTestTracker(t, models.Defaults())
	if got := tr.Score("gpt-4o"); !almostEqual(got, 0.8) {
		t.Fatalf("fresh score = %v, want 0.8", got)
	}
	if got := tr.Score("missing"); got != 0 {
		t.Fatalf("unknown model score = %v, want 0", got)
	}
}

func TestScore_ReliabilityAndLatency(t *testing.T) {
	tr, _ := newTestTracker(t, models.Defaults())
	tr.RecordSuccess("gpt-4o", 1000)
	// weight 0.8 + reliability 1 - penalty 0.2
	if got := tr.Score("gpt-4o"); !almostEqual(got, 1.6) {
		t.Fatalf("score = %v, want 1.6", got)
	}
	tr.RecordFailure("gpt-4o", errors.New("boom"))
	// reliability 1/(1+1)
	if got := tr.Score("gpt-4o"); !almostEqual(got, 1.1) {
		t.Fatalf("score = %v, want 1.1", got)
	}
}

func TestScore_LatencyPenaltyCapped(t *testing.T) {
	tr, _ := newTestTracker(t, models.Defaults())
	tr.RecordSuccess("gpt-4o", 60000)
	if got := tr.Score("gpt-4o"); !almostEqual(got, 0.8+1-0.4) {
		t.Fatalf("score = %v, want %v", got, 0.8+1-0.4)
	}
}

func TestRecordSuccess_SmoothsLatency(t *testing.T) {
	tr, _ := newTestTracker(t, models.Defaults())
	tr.RecordSuccess("gpt-4o", 1000)
	tr.RecordSuccess("gpt-4o", 2000)
	r, ok := tr.Get("gpt-4o")
	if !ok || r.AvgLatencyMs == nil {
		t.Fatal("expected latency to be recorded")
	}
	if !almostEqual(*r.AvgLatencyMs, 1300) {
		t.Fatalf("avg latency = %v, want 1300", *r.AvgLatencyMs)
	}
	if r.Successes != 2 {
		t.Fatalf("successes = %d, want 2", r.Successes)
	}
}

func TestCircuitBreaker_ExcludesThenReadmits(t *testing.T) {
	tr, clk := newTestTracker(t, models.Defaults())
	for i := 0; i < 3; i++ {
		tr.RecordFailure("gemini-2.0-flash", errors.New("quota"))
	}
	for _, m := range tr.Eligible(clk.Now()) {
		if m.ID == "gemini-2.0-flash" {
			t.Fatal("model in cooldown must not be eligible")
		}
	}
	r, _ := tr.Get("gemini-2.0-flash")
	if r.Failures != 0 {
		t.Fatalf("failures = %d, want 0 after trip", r.Failures)
	}
	if r.LastError != "quota" {
		t.Fatalf("lastError = %q, want quota", r.LastError)
	}
	if r.Eligible {
		t.Fatal("snapshot should report the model as ineligible")
	}

	clk.Advance(2*time.Minute - time.Second)
	if len(tr.Eligible(clk.Now())) != 4 {
		t.Fatal("model readmitted before cooldown elapsed")
	}
	clk.Advance(time.Second)
	if got := len(tr.Eligible(clk.Now())); got != 5 {
		t.Fatalf("eligible = %d, want 5 after cooldown", got)
	}
}

func TestCircuitBreaker_CustomThreshold(t *testing.T) {
	reg := models.MustDefault()
	clk := &fakeClock{t: time.Unix(0, 0)}
	tr := NewTracker(reg, WithThreshold(1), WithCooldown(time.Second), WithClock(clk.Now))
	tr.RecordFailure("gpt-4o", nil)
	if got := len(tr.Eligible(clk.Now())); got != 4 {
		t.Fatalf("eligible = %d, want 4", got)
	}
}

func TestGradualRecovery(t *testing.T) {
	tr, _ := newTestTracker(t, models.Defaults())
	tr.RecordFailure("gpt-4o", errors.New("a"))
	tr.RecordFailure("gpt-4o", errors.New("b"))
	tr.RecordSuccess("gpt-4o", 100)
	r, _ := tr.Get("gpt-4o")
	if r.Failures != 1 {
		t.Fatalf("failures = %d, want 1", r.Failures)
	}
	if r.LastError != "" {
		t.Fatalf("lastError = %q, want cleared", r.LastError)
	}
	tr.RecordSuccess("gpt-4o", 100)
	tr.RecordSuccess("gpt-4o", 100)
	r, _ = tr.Get("gpt-4o")
	if r.Failures != 0 {
		t.Fatalf("failures = %d, want 0", r.Failures)
	}
}

func TestSuccessClearsCooldown(t *testing.T) {
	tr, clk := newTestTracker(t, models.Defaults())
	for i := 0; i < 3; i++ {
		tr.RecordFailure("gpt-4o", errors.New("x"))
	}
	tr.RecordSuccess("gpt-4o", 10)
	if got := len(tr.Eligible(clk.Now())); got != 5 {
		t.Fatalf("eligible = %d, want 5 after success", got)
	}
}

func TestEligible_SortedByScore(t *testing.T) {
	tr, clk := newTestTracker(t, models.Defaults())
	tr.RecordSuccess("claude-3-5-sonnet", 0)
	got := ids(tr.Eligible(clk.Now()))
	want := []string{"claude-3-5-sonnet", "gemini-2.0-flash", "gemini-1.5-flash", "gemini-1.5-pro", "gpt-4o"}
	if !equalIDs(got, want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestEligible_DeterministicTieBreak(t *testing.T) {
	ms := []models.Model{
		{ID: "a", Provider: models.ProviderOpenAI, Weight: 0.5},
		{ID: "b", Provider: models.ProviderGoogle, Weight: 0.5},
		{ID: "c", Provider: models.ProviderAnthropic, Weight: 0.5},
	}
	tr, clk := newTestTracker(t, ms)
	for i := 0; i < 20; i++ {
		if got := ids(tr.Eligible(clk.Now())); !equalIDs(got, []string{"a", "b", "c"}) {
			t.Fatalf("iteration %d: order = %v", i, got)
		}
	}
}

func gaugeValue(t *testing.T, id string) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.CircuitBreakerState.WithLabelValues(id).Write(&m); err != nil {
		t.Fatalf("write gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestBreakerGauge_ClearsAfterCooldown(t *testing.T) {
	tr, clk := newTestTracker(t, []models.Model{
		{ID: "gauge-a", Provider: models.ProviderGoogle, Priority: 1, Weight: 1},
		{ID: "gauge-b", Provider: models.ProviderOpenAI, Priority: 2, Weight: 1},
	})
	for i := 0; i < 3; i++ {
		tr.RecordFailure("gauge-a", errors.New("down"))
	}
	if got := gaugeValue(t, "gauge-a"); got != 1 {
		t.Fatalf("gauge after trip = %v, want 1", got)
	}
	if got := ids(tr.Eligible(clk.Now())); !equalIDs(got, []string{"gauge-b"}) {
		t.Fatalf("eligible during cooldown = %v", got)
	}
	if got := gaugeValue(t, "gauge-a"); got != 1 {
		t.Fatalf("gauge during cooldown = %v, want 1", got)
	}

	clk.Advance(circuitbreaker.DefaultCooldown + time.Second)
	if got := len(tr.Eligible(clk.Now())); got != 2 {
		t.Fatalf("eligible after cooldown = %d, want 2", got)
	}
	if got := gaugeValue(t, "gauge-a"); got != 0 {
		t.Fatalf("gauge after cooldown = %v, want 0", got)
	}
}

func TestSnapshot_RegistryOrder(t *testing.T) {
	tr, _ := newTestTracker(t, models.Defaults())
	tr.RecordSuccess("gpt-4o", 10)
	snap := tr.Snapshot()
	if len(snap) != 5 || snap[0].ID != "gemini-2.0-flash" || snap[3].ID != "gpt-4o" {
		t.Fatalf("unexpected snapshot order: %+v", snap)
	}
	if snap[0].AvgLatencyMs != nil {
		t.Fatal("untouched model should have no latency")
	}
}
