package providers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const anthropicOKBody = `{
	"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-latest",
	"content":[{"type":"text","text":"Hi "},{"type":"text","text":"there"}],
	"stop_reason":"end_turn",
	"usage":{"input_tokens":4,"output_tokens":2}
}`

func TestNewAnthropic(t *testing.T) {
	provider, err := NewAnthropic("sk-test-key", "")
	if err != nil {
		t.Fatalf("NewAnthropic() returned error: %v", err)
	}
	if provider.Name() != "anthropic" {
		t.Errorf("NewAnthropic() provider name = %v, want anthropic", provider.Name())
	}
	if _, err := NewAnthropic("", ""); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestAnthropicProvider_SupportsModel(t *testing.T) {
	provider, _ := NewAnthropic("sk-test-key", "")

	tests := []struct {
		model string
		want  bool
	}{
		{"claude-3-5-sonnet", true},
		{"claude-3-5-sonnet-20241022", true},
		{"gpt-4o", false},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			if got := provider.SupportsModel(tt.model); got != tt.want {
				t.Errorf("SupportsModel(%v) = %v, want %v", tt.model, got, tt.want)
			}
		})
	}
}

func TestAnthropicModelID(t *testing.T) {
	if got := AnthropicModelID("claude-3-5-sonnet"); got != "claude-3-5-sonnet-latest" {
		t.Errorf("alias = %q", got)
	}
	if got := AnthropicModelID("claude-3-haiku-20240307"); got != "claude-3-haiku-20240307" {
		t.Errorf("passthrough = %q", got)
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	var gotHeaders http.Header
	var gotBody anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotHeaders = r.Header.Clone()
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		_, _ = w.Write([]byte(anthropicOKBody))
	}))
	defer srv.Close()

	p, _ := NewAnthropic("sk-test-key", srv.URL)
	resp, err := p.Complete(context.Background(), Request{
		Model: "claude-3-5-sonnet",
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleUser, Content: "Hello"},
		},
	})
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if gotHeaders.Get("x-api-key") != "sk-test-key" || gotHeaders.Get("anthropic-version") != anthropicVersion {
		t.Errorf("headers = %v", gotHeaders)
	}
	if gotBody.Model != "claude-3-5-sonnet-latest" || gotBody.System != "sys" || gotBody.MaxTokens != anthropicMaxTokens {
		t.Errorf("request body = %+v", gotBody)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != RoleUser {
		t.Errorf("messages = %+v", gotBody.Messages)
	}
	if resp.Content != "Hi there" || resp.FinishReason != "stop" {
		t.Errorf("unexpected response %+v", resp)
	}
	if resp.Usage.TotalTokens != 6 {
		t.Errorf("total tokens = %d, want 6", resp.Usage.TotalTokens)
	}
}

func TestAnthropicProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	p, _ := NewAnthropic("bad", srv.URL)
	_, err := p.Complete(context.Background(), PromptRequest("claude-3-5-sonnet", "Hello"))
	if err == nil || !strings.Contains(err.Error(), "anthropic API error (401): invalid x-api-key") {
		t.Fatalf("err = %v", err)
	}
}
