// Package providers defines the Provider interface and the backends the
// orchestrator can dispatch a prompt to.
//
// Live backends (Gemini, OpenAI, Anthropic, Bedrock) are registered per
// vendor family when credentials are configured. Families without a live
// backend are served by the Simulator.
package providers

import (
	"context"
	"errors"
	"strings"
)

// Message role constants.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Provider defines the interface every completion backend implements.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (*Response, error)
	SupportsModel(model string) bool
}

// Message is a single conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a completion request addressed to one model.
type Request struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
}

// PromptRequest builds a single-turn user request.
func PromptRequest(model, prompt string) Request {
	return Request{
		Model:    model,
		Messages: []Message{{Role: RoleUser, Content: prompt}},
	}
}

// Validate returns an error if the request is missing required fields.
func (r Request) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if len(r.Messages) == 0 {
		return errors.New("at least one message is required")
	}
	if r.MaxTokens != nil && *r.MaxTokens <= 0 {
		return errors.New("max_tokens must be positive")
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	return nil
}

// systemAndTurns splits system messages from the conversation turns.
func (r Request) systemAndTurns() (string, []Message) {
	var system []string
	var turns []Message
	for _, m := range r.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return strings.Join(system, "\n"), turns
}

// Response is a completion normalised across backends.
type Response struct {
	ID           string `json:"id"`
	Model        string `json:"model"`
	Provider     string `json:"provider,omitempty"`
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// Usage carries token consumption statistics.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
