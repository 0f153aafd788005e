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

func newTestBedrock(t *testing.T, endpoint string) *BedrockProvider {
	t.Helper()
	p, err := NewBedrock(context.Background(), BedrockConfig{
		Region:          "us-east-1",
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Endpoint:        endpoint,
	})
	if err != nil {
		t.Fatalf("NewBedrock() error: %v", err)
	}
	return p
}

func TestBedrockModelID(t *testing.T) {
	if got := BedrockModelID("claude-3-5-sonnet"); got != "anthropic.claude-3-5-sonnet-20241022-v2:0" {
		t.Errorf("alias = %q", got)
	}
	if got := BedrockModelID("anthropic.claude-3-haiku-20240307-v1:0"); got != "anthropic.claude-3-haiku-20240307-v1:0" {
		t.Errorf("passthrough = %q", got)
	}
}

func TestBedrockProvider_Complete(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody bedrockAnthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(anthropicOKBody))
	}))
	defer srv.Close()

	p := newTestBedrock(t, srv.URL)
	if p.Region() != "us-east-1" {
		t.Errorf("Region() = %q", p.Region())
	}
	resp, err := p.Complete(context.Background(), PromptRequest("claude-3-5-sonnet", "Hello"))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if !strings.Contains(gotPath, "/model/anthropic.claude-3-5-sonnet-20241022-v2") {
		t.Errorf("path = %q", gotPath)
	}
	if !strings.HasPrefix(gotAuth, "AWS4-HMAC-SHA256") {
		t.Errorf("expected SigV4 signature, got %q", gotAuth)
	}
	if gotBody.AnthropicVersion != bedrockAnthropicVersion || len(gotBody.Messages) != 1 {
		t.Errorf("request body = %+v", gotBody)
	}
	if resp.Content != "Hi there" || resp.Provider != "bedrock" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestBedrockProvider_RejectsNonAnthropic(t *testing.T) {
	p := newTestBedrock(t, "http://127.0.0.1:1")
	if _, err := p.Complete(context.Background(), PromptRequest("gpt-4o", "Hello")); err == nil {
		t.Fatal("expected error for non-Anthropic model")
	}
	if p.SupportsModel("gpt-4o") {
		t.Error("bedrock should not claim gpt-4o")
	}
}
