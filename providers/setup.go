package providers

import (
	"context"
	"fmt"

	"github.com/aiia-labs/orchestrator/models"
)

// Credentials selects which live backends to construct. Empty fields leave
// the corresponding family simulated.
type Credentials struct {
	GeminiAPIKey   string
	GeminiBaseURL  string
	VertexProject  string
	VertexLocation string

	OpenAIAPIKey  string
	OpenAIBaseURL string

	AnthropicAPIKey  string
	AnthropicBaseURL string

	Bedrock BedrockConfig
	// UseBedrock routes the anthropic family through AWS Bedrock. A direct
	// Anthropic API key takes precedence.
	UseBedrock bool
}

// BuildRegistry constructs a live backend for every family with credentials.
// A backend that fails to initialise is skipped and its error returned
// alongside the registry so callers can log it and keep the simulator.
func BuildRegistry(ctx context.Context, c Credentials) (*Registry, []error) {
	reg := NewRegistry()
	var errs []error

	switch {
	case c.VertexProject != "":
		p, err := NewGeminiVertex(ctx, c.VertexProject, c.VertexLocation)
		if err != nil {
			errs = append(errs, fmt.Errorf("gemini (vertex): %w", err))
			break
		}
		reg.Register(models.ProviderGoogle, p)
	case c.GeminiAPIKey != "":
		p, err := NewGemini(c.GeminiAPIKey, c.GeminiBaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("gemini: %w", err))
			break
		}
		reg.Register(models.ProviderGoogle, p)
	}

	if c.OpenAIAPIKey != "" {
		p, err := NewOpenAI(c.OpenAIAPIKey, c.OpenAIBaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("openai: %w", err))
		} else {
			reg.Register(models.ProviderOpenAI, p)
		}
	}

	switch {
	case c.AnthropicAPIKey != "":
		p, err := NewAnthropic(c.AnthropicAPIKey, c.AnthropicBaseURL)
		if err != nil {
			errs = append(errs, fmt.Errorf("anthropic: %w", err))
			break
		}
		reg.Register(models.ProviderAnthropic, p)
	case c.UseBedrock:
		p, err := NewBedrock(ctx, c.Bedrock)
		if err != nil {
			errs = append(errs, fmt.Errorf("bedrock: %w", err))
			break
		}
		reg.Register(models.ProviderAnthropic, p)
	}

	return reg, errs
}
