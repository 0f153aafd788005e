package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestNewOpenAI(t *testing.T) {
	provider, err := NewOpenAI("sk-test-key", "")
	if err != nil {
		t.Fatalf("NewOpenAI() returned error: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("NewOpenAI() provider name = %v, want openai", provider.Name())
	}
	if _, err := NewOpenAI(" ", ""); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestOpenAIProvider_SupportsModel(t *testing.T) {
	provider, _ := NewOpenAI("sk-test-key", "")

	tests := []struct {
		model string
		want  bool
	}{
		{"gpt-4o", true},
		{"gpt-4-turbo", true},
		{"o1-mini", true},
		{"ft:gpt-4o:org", true},
		{"claude-3-5-sonnet", false},
		{"gemini-2.0-flash", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := provider.SupportsModel(tt.model); got != tt.want {
				t.Errorf("SupportsModel(%v) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestOpenAIProvider_Complete_MockServer(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o",
			"choices":[{"index":0,"message":{"role":"assistant","content":"pong"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}
		}`))
	}))
	defer srv.Close()

	provider, err := NewOpenAI("sk-test-key", srv.URL)
	if err != nil {
		t.Fatalf("NewOpenAI() error: %v", err)
	}
	resp, err := provider.Complete(context.Background(), PromptRequest("gpt-4o", "ping"))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if gotAuth != "Bearer sk-test-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotBody["model"] != "gpt-4o" {
		t.Errorf("model = %v", gotBody["model"])
	}
	if resp.Content != "pong" || resp.ID != "chatcmpl-1" || resp.Provider != "openai" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Usage.TotalTokens != 4 {
		t.Errorf("total tokens = %d, want 4", resp.Usage.TotalTokens)
	}
}

func TestOpenAIProvider_Complete_Error(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	provider, _ := NewOpenAI("sk-bad", srv.URL)
	if _, err := provider.Complete(context.Background(), PromptRequest("gpt-4o", "ping")); err == nil {
		t.Fatal("expected error on 401")
	}
}

// TestOpenAIProvider_Complete_Integration only runs if OPENAI_API_KEY is set.
func TestOpenAIProvider_Complete_Integration(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping integration test: OPENAI_API_KEY not set")
	}

	provider, err := NewOpenAI(apiKey, "")
	if err != nil {
		t.Fatalf("NewOpenAI() returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	req := PromptRequest("gpt-4o", "Say 'test successful' and nothing else.")
	req.Temperature = floatPtr(0.0)
	req.MaxTokens = intPtr(10)

	resp, err := provider.Complete(ctx, req)
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if resp.Content == "" {
		t.Error("Response content is empty")
	}
}
