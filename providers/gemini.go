package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	geminiDefaultBaseURL = "https://generativelanguage.googleapis.com"
	vertexScope          = "https://www.googleapis.com/auth/cloud-platform"
)

// GeminiProvider implements the Provider interface for Google Gemini. It
// talks to either the public Generative Language API (API key) or Vertex AI
// (OAuth2 bearer tokens).
type GeminiProvider struct {
	Base
	httpClient *http.Client
	// vertex is set when requests go to a Vertex AI project.
	vertex *vertexTarget
}

type vertexTarget struct {
	project  string
	location string
}

// NewGemini creates a Gemini provider authenticated with an API key.
func NewGemini(apiKey string, baseURL string, opts ...Option) (*GeminiProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if baseURL == "" {
		baseURL = geminiDefaultBaseURL
	}
	o := applyOptions(opts)
	return &GeminiProvider{
		Base:       Base{name: "gemini", apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")},
		httpClient: o.httpClient,
	}, nil
}

// NewGeminiVertex creates a Gemini provider that calls Vertex AI using
// Google Application Default Credentials.
func NewGeminiVertex(ctx context.Context, project, location string) (*GeminiProvider, error) {
	ts, err := google.DefaultTokenSource(ctx, vertexScope)
	if err != nil {
		return nil, fmt.Errorf("load google default credentials: %w", err)
	}
	return NewGeminiVertexWithTokenSource(ctx, project, location, ts, "")
}

// NewGeminiVertexWithTokenSource creates a Vertex AI Gemini provider that
// authenticates every request with tokens from ts. baseURL defaults to the
// regional aiplatform endpoint.
func NewGeminiVertexWithTokenSource(ctx context.Context, project, location string, ts oauth2.TokenSource, baseURL string) (*GeminiProvider, error) {
	if project == "" {
		return nil, fmt.Errorf("vertex project is required")
	}
	if location == "" {
		location = "us-central1"
	}
	if baseURL == "" {
		baseURL = fmt.Sprintf("https://%s-aiplatform.googleapis.com", location)
	}
	return &GeminiProvider{
		Base:       Base{name: "gemini-vertex", baseURL: strings.TrimRight(baseURL, "/")},
		httpClient: oauth2.NewClient(ctx, ts),
		vertex:     &vertexTarget{project: project, location: location},
	}, nil
}

// SupportsModel returns true if the model matches the Gemini prefix.
func (p *GeminiProvider) SupportsModel(model string) bool {
	return strings.HasPrefix(model, "gemini-")
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
			Role  string       `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ResponseID string `json:"responseId"`
}

type geminiErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func buildGeminiRequest(req Request) geminiRequest {
	system, turns := req.systemAndTurns()
	out := geminiRequest{}
	for _, m := range turns {
		role := m.Role
		if role == RoleAssistant {
			role = "model"
		}
		out.Contents = append(out.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if system != "" {
		out.SystemInstruction = &geminiContent{Role: RoleUser, Parts: []geminiPart{{Text: system}}}
	}
	if req.Temperature != nil || req.MaxTokens != nil {
		out.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return out
}

// mapGeminiFinishReason maps Gemini finish reasons to OpenAI-style reasons.
func mapGeminiFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "SAFETY":
		return "content_filter"
	default:
		return strings.ToLower(reason)
	}
}

func (p *GeminiProvider) endpoint(model string) string {
	if p.vertex != nil {
		return fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/google/models/%s:generateContent",
			p.baseURL, url.PathEscape(p.vertex.project), url.PathEscape(p.vertex.location), url.PathEscape(model))
	}
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", p.baseURL, url.PathEscape(model))
}

// Complete sends a generateContent request and returns the full response.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(buildGeminiRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(req.Model), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.vertex == nil {
		httpReq.Header.Set("x-goog-api-key", p.apiKey)
	}

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		var errResp geminiErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, fmt.Errorf("gemini API error (%d): %s", httpResp.StatusCode, errResp.Error.Message)
		}
		return nil, fmt.Errorf("gemini API error (%d): %s", httpResp.StatusCode, string(respBody))
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("gemini returned no candidates")
	}

	candidate := geminiResp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}

	id := geminiResp.ResponseID
	if id == "" {
		id = req.Model
	}
	return &Response{
		ID:           id,
		Model:        req.Model,
		Provider:     p.name,
		Content:      text.String(),
		FinishReason: mapGeminiFinishReason(candidate.FinishReason),
		Usage: Usage{
			PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
			CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		},
	}, nil
}
