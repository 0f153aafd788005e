package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aiia-labs/orchestrator"
	"github.com/aiia-labs/orchestrator/internal/cache"
	"github.com/aiia-labs/orchestrator/internal/ratelimit"
	"github.com/aiia-labs/orchestrator/internal/requestlog"
	"github.com/aiia-labs/orchestrator/models"
	"github.com/aiia-labs/orchestrator/providers"
)

type downProvider struct{}

func (downProvider) Name() string              { return "down" }
func (downProvider) SupportsModel(string) bool { return true }
func (downProvider) Complete(context.Context, providers.Request) (*providers.Response, error) {
	return nil, errors.New("upstream unavailable")
}

func newTestOrchestrator(t *testing.T, live *providers.Registry) *orchestrator.Orchestrator {
	t.Helper()
	if live == nil {
		live = providers.NewRegistry()
	}
	o, err := orchestrator.New(orchestrator.DefaultConfig(),
		orchestrator.WithProviders(live),
		orchestrator.WithSimulator(providers.NewSimulatorWithDelay(providers.FixedDelay(0))),
		orchestrator.WithCacheStore(cache.NewMemory(0)),
	)
	if err != nil {
		t.Fatalf("orchestrator.New() error: %v", err)
	}
	t.Cleanup(func() { _ = o.Close() })
	return o
}

func testServerConfig() orchestrator.ServerConfig {
	cfg := orchestrator.DefaultConfig().Server
	return cfg
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	cfg := testServerConfig()
	return newRouter(newTestOrchestrator(t, nil), cfg, ratelimit.NewStore(time.Minute, 1000), nil)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return body
}

func TestHealth(t *testing.T) {
	w := do(t, testRouter(t), "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	body := decode(t, w)
	if body["status"] != "ok" || body["mode"] != orchestrator.StatusSimulation {
		t.Errorf("health = %v", body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestCompletions(t *testing.T) {
	r := testRouter(t)
	w := do(t, r, "POST", "/v1/completions", `{"prompt":"  hi there  "}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var res orchestrator.CompletionResult
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	want := "[Simulated " + res.ModelID + "] Response to: hi there"
	if res.Content != want || !res.Simulated || res.Cached {
		t.Fatalf("result = %+v, want content %q", res, want)
	}

	w = do(t, r, "POST", "/v1/completions", `{"prompt":"hi there"}`)
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatal(err)
	}
	if !res.Cached {
		t.Fatal("second identical prompt should be cached")
	}
}

func TestCompletions_Options(t *testing.T) {
	w := do(t, testRouter(t), "POST", "/v1/completions", `{"prompt":"hi","options":{"race":false,"useCache":false}}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["orchestrationMode"] != string(orchestrator.ModeSequential) || body["model"] != "gemini-2.0-flash" {
		t.Fatalf("body = %v", body)
	}
}

func TestCompletions_ValidationErrors(t *testing.T) {
	long := strings.Repeat("x", orchestrator.DefaultMaxPromptChars+1)
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{bad`},
		{"missing prompt", `{}`},
		{"prompt not string", `{"prompt": 42}`},
		{"blank prompt", `{"prompt": "   "}`},
		{"extra field", `{"prompt": "hi", "model": "gpt-4o"}`},
		{"bad option type", `{"prompt": "hi", "options": {"race": "yes"}}`},
		{"unknown option", `{"prompt": "hi", "options": {"stream": true}}`},
		{"too long", `{"prompt": "` + long + `"}`},
	}
	r := testRouter(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, r, "POST", "/v1/completions", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %s)", w.Code, w.Body.String())
			}
			if decode(t, w)["error"] == nil {
				t.Fatal("missing error field")
			}
		})
	}
}

func TestCompletions_Exhausted(t *testing.T) {
	live := providers.NewRegistry()
	for _, p := range []models.Provider{models.ProviderGoogle, models.ProviderOpenAI, models.ProviderAnthropic} {
		live.Register(p, downProvider{})
	}
	cfg := testServerConfig()
	r := newRouter(newTestOrchestrator(t, live), cfg, ratelimit.NewStore(time.Minute, 1000), nil)

	w := do(t, r, "POST", "/v1/completions", `{"prompt":"hi"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
	body := decode(t, w)
	if body["error"] != "LLM service unavailable" {
		t.Fatalf("error = %v", body["error"])
	}
	if d, _ := body["details"].(string); !strings.Contains(d, "global exhaustion") {
		t.Fatalf("details = %v", body["details"])
	}

	cfg.Environment = orchestrator.EnvironmentProduction
	r = newRouter(newTestOrchestrator(t, live), cfg, ratelimit.NewStore(time.Minute, 1000), nil)
	w = do(t, r, "POST", "/v1/completions", `{"prompt":"hi"}`)
	if _, ok := decode(t, w)["details"]; ok {
		t.Fatal("details must be hidden in production")
	}
}

func TestSummarize(t *testing.T) {
	r := testRouter(t)
	w := do(t, r, "POST", "/v1/summarize", `{"text":"quarterly numbers went up","ratio":7}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	meta, _ := body["meta"].(map[string]interface{})
	if meta["ratio"] != 1.0 || meta["originalLength"] != float64(len("quarterly numbers went up")) {
		t.Fatalf("meta = %v", meta)
	}
	if s, _ := body["summary"].(string); !strings.Contains(s, "approximately 100%") {
		t.Fatalf("summary = %q", s)
	}

	if w := do(t, r, "POST", "/v1/summarize", `{"text":""}`); w.Code != http.StatusBadRequest {
		t.Fatalf("empty text status = %d, want 400", w.Code)
	}
}

func TestStatusAndModels(t *testing.T) {
	r := testRouter(t)
	w := do(t, r, "GET", "/v1/status", "")
	if w.Code != http.StatusOK || decode(t, w)["mode"] != orchestrator.StatusSimulation {
		t.Fatalf("status endpoint = %d", w.Code)
	}

	w = do(t, r, "GET", "/v1/models", "")
	body := decode(t, w)
	data, _ := body["data"].([]interface{})
	if body["object"] != "list" || len(data) != len(models.Defaults()) {
		t.Fatalf("models = %v", body)
	}
	first, _ := data[0].(map[string]interface{})
	if first["id"] != "gemini-2.0-flash" || first["health"] == nil {
		t.Fatalf("first model = %v", first)
	}
}

func TestRateLimit(t *testing.T) {
	r := newRouter(newTestOrchestrator(t, nil), testServerConfig(), ratelimit.NewStore(time.Minute, 2), nil)
	for i := 0; i < 2; i++ {
		if w := do(t, r, "GET", "/v1/status", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i, w.Code)
		}
	}
	w := do(t, r, "GET", "/v1/status", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}
	// Health checks are not rate limited.
	if w := do(t, r, "GET", "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health status = %d", w.Code)
	}
}

func TestCORS(t *testing.T) {
	cfg := testServerConfig()
	cfg.CORSOrigins = []string{"https://app.example"}
	r := newRouter(newTestOrchestrator(t, nil), cfg, ratelimit.NewStore(time.Minute, 10), nil)

	req := httptest.NewRequest("OPTIONS", "/v1/completions", nil)
	req.Header.Set("Origin", "https://app.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	w := do(t, testRouter(t), "GET", "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "orchestrator_") {
		t.Fatalf("metrics status = %d", w.Code)
	}
}

func TestCompletionLog(t *testing.T) {
	w, err := requestlog.NewSQLiteWriter(filepath.Join(t.TempDir(), "log.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })

	orch := newTestOrchestrator(t, nil)
	orch.AddHook(requestlog.Hook(w))
	r := newRouter(orch, testServerConfig(), ratelimit.NewStore(time.Minute, 1000), w)

	if resp := do(t, r, "POST", "/v1/completions", `{"prompt":"log me"}`); resp.Code != http.StatusOK {
		t.Fatalf("completion status = %d", resp.Code)
	}

	// Hooks run asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp := do(t, r, "GET", "/v1/completions/log?outcome=succeeded", "")
		var page requestlog.Page
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			t.Fatal(err)
		}
		if page.Total == 1 {
			if page.Data[0].Model == "" || !page.Data[0].Simulated {
				t.Fatalf("entry = %+v", page.Data[0])
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("completion was never logged")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCompletionLog_DisabledRoute(t *testing.T) {
	if w := do(t, testRouter(t), "GET", "/v1/completions/log", ""); w.Code != http.StatusNotFound && w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want route absent", w.Code)
	}
}
