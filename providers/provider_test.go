package providers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name   string
		req    Request
		errMsg string
	}{
		{
			name: "valid request",
			req:  PromptRequest("gpt-4o", "Hello"),
		},
		{
			name:   "missing model",
			req:    Request{Messages: []Message{{Role: RoleUser, Content: "Hello"}}},
			errMsg: "model is required",
		},
		{
			name:   "missing messages",
			req:    Request{Model: "gpt-4o"},
			errMsg: "at least one message is required",
		},
		{
			name: "invalid temperature",
			req: Request{
				Model:       "gpt-4o",
				Messages:    []Message{{Role: RoleUser, Content: "Hello"}},
				Temperature: floatPtr(2.5),
			},
			errMsg: "temperature must be between 0 and 2",
		},
		{
			name: "invalid max tokens",
			req: Request{
				Model:     "gpt-4o",
				Messages:  []Message{{Role: RoleUser, Content: "Hello"}},
				MaxTokens: intPtr(0),
			},
			errMsg: "max_tokens must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.errMsg == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.errMsg {
				t.Fatalf("Validate() error = %v, want %q", err, tt.errMsg)
			}
		})
	}
}

func TestRequest_SystemAndTurns(t *testing.T) {
	req := Request{
		Model: "m",
		Messages: []Message{
			{Role: RoleSystem, Content: "be brief"},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleSystem, Content: "be kind"},
		},
	}
	system, turns := req.systemAndTurns()
	if system != "be brief\nbe kind" {
		t.Errorf("system = %q", system)
	}
	if len(turns) != 1 || turns[0].Content != "hi" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestSimulator_Complete(t *testing.T) {
	sim := NewSimulatorWithDelay(FixedDelay(time.Millisecond))
	resp, err := sim.Complete(context.Background(), PromptRequest("gpt-4o", "ping"))
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if resp.Content != "[Simulated gpt-4o] Response to: ping" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Provider != "simulator" || resp.Model != "gpt-4o" {
		t.Errorf("unexpected response %+v", resp)
	}
	if !sim.SupportsModel("anything") {
		t.Error("simulator should support every model")
	}
}

func TestSimulator_HonoursContext(t *testing.T) {
	sim := NewSimulatorWithDelay(FixedDelay(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := sim.Complete(ctx, PromptRequest("m", "p"))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestRandomDelay_Bounds(t *testing.T) {
	for i := 0; i < 1000; i++ {
		d := RandomDelay()
		if d < SimulatedMinDelay || d >= SimulatedMaxDelay {
			t.Fatalf("delay %s outside [%s, %s)", d, SimulatedMinDelay, SimulatedMaxDelay)
		}
	}
}

func TestBuildRegistry_NoCredentials(t *testing.T) {
	reg, errs := BuildRegistry(context.Background(), Credentials{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %v", reg.Families())
	}
}

func TestBuildRegistry_APIKeys(t *testing.T) {
	reg, errs := BuildRegistry(context.Background(), Credentials{
		GeminiAPIKey:    "g",
		OpenAIAPIKey:    "o",
		AnthropicAPIKey: "a",
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	got := reg.Families()
	if len(got) != 3 {
		t.Fatalf("families = %v, want 3", got)
	}
	if p, _ := reg.Get("anthropic"); p.Name() != "anthropic" {
		t.Errorf("anthropic family served by %q", p.Name())
	}
}

func TestBuildRegistry_BedrockForAnthropic(t *testing.T) {
	reg, errs := BuildRegistry(context.Background(), Credentials{
		UseBedrock: true,
		Bedrock: BedrockConfig{
			Region:          "eu-west-1",
			AccessKeyID:     "AKID",
			SecretAccessKey: "SECRET",
		},
	})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	p, ok := reg.Get("anthropic")
	if !ok || p.Name() != "bedrock" {
		t.Fatalf("expected bedrock for anthropic family, got %v", p)
	}
	if !strings.Contains(p.(*BedrockProvider).BaseURL(), "eu-west-1") {
		t.Errorf("base url = %q", p.(*BedrockProvider).BaseURL())
	}
}

func floatPtr(f float64) *float64 {
	return &f
}

func intPtr(i int) *int {
	return &i
}
