package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

const bedrockAnthropicVersion = "bedrock-2023-05-31"

// bedrockAliases maps short registry ids to Bedrock model ids.
var bedrockAliases = map[string]string{
	"claude-3-5-sonnet": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-opus":     "anthropic.claude-3-opus-20240229-v1:0",
}

// BedrockModelID resolves a registry id to a Bedrock model id.
func BedrockModelID(model string) string {
	if id, ok := bedrockAliases[model]; ok {
		return id
	}
	return model
}

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	// Region defaults to us-east-1.
	Region string
	// AccessKeyID and SecretAccessKey select static credentials. When empty
	// the default AWS credential chain is used.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	// Endpoint overrides the Bedrock runtime endpoint.
	Endpoint string
}

// BedrockProvider serves Anthropic Claude models through AWS Bedrock's
// InvokeModel API.
type BedrockProvider struct {
	Base
	client *bedrockruntime.Client
	region string
}

// NewBedrock creates a new AWS Bedrock provider.
func NewBedrock(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	baseURL := cfg.Endpoint
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
	}
	return &BedrockProvider{
		Base:   Base{name: "bedrock", baseURL: baseURL},
		client: client,
		region: region,
	}, nil
}

// Region returns the AWS region requests are sent to.
func (p *BedrockProvider) Region() string { return p.region }

// SupportsModel returns true for Claude registry ids and Anthropic Bedrock ids.
func (p *BedrockProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "claude-") || strings.HasPrefix(model, "anthropic.")
}

type bedrockAnthropicRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []Message `json:"messages"`
	Temperature      *float64  `json:"temperature,omitempty"`
	System           string    `json:"system,omitempty"`
}

// Complete invokes a Claude model on Bedrock.
func (p *BedrockProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	modelID := BedrockModelID(req.Model)
	if !strings.HasPrefix(modelID, "anthropic.") {
		return nil, fmt.Errorf("unsupported Bedrock model: %s", req.Model)
	}

	system, turns := req.systemAndTurns()
	maxTokens := anthropicMaxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	body, err := json.Marshal(bedrockAnthropicRequest{
		AnthropicVersion: bedrockAnthropicVersion,
		MaxTokens:        maxTokens,
		Messages:         turns,
		Temperature:      req.Temperature,
		System:           system,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, fmt.Errorf("bedrock invoke failed: %w", err)
	}

	var anthropicResp anthropicResponse
	if err := json.Unmarshal(output.Body, &anthropicResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &Response{
		ID:           anthropicResp.ID,
		Model:        modelID,
		Provider:     p.name,
		Content:      anthropicText(anthropicResp.Content),
		FinishReason: mapAnthropicStopReason(anthropicResp.StopReason),
		Usage: Usage{
			PromptTokens:     anthropicResp.Usage.InputTokens,
			CompletionTokens: anthropicResp.Usage.OutputTokens,
			TotalTokens:      anthropicResp.Usage.InputTokens + anthropicResp.Usage.OutputTokens,
		},
	}, nil
}
