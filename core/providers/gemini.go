package providers

import (
	"context"
	"encoding/base64"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements ProviderAdapter for Gemini models.
type GeminiProvider struct {
	client *genai.Client
	config GeminiConfig
}

// NewGeminiProvider creates a new Gemini adapter.
func NewGeminiProvider(ctx context.Context, config GeminiConfig) (*GeminiProvider, error) {
	defaults := DefaultGeminiConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaults.MaxTokens
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: config.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: config,
	}, nil
}

// Name returns the provider identifier.
func (p *GeminiProvider) Name() string {
	return string(ProviderTypeGemini)
}

// ValidateConfig checks the adapter configuration.
func (p *GeminiProvider) ValidateConfig() error {
	return p.config.Validate()
}

// Complete performs a non-streaming completion request.
func (p *GeminiProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	parts := make([]*genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		raw, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil, fmt.Errorf("gemini image attachment: %w", err)
		}
		parts = append(parts, genai.NewPartFromBytes(raw, img.MediaType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	cfg := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		cfg.Temperature = &temp
	}
	if req.JSONOutput {
		cfg.ResponseMIMEType = "application/json"
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini complete: %w", err)
	}

	resp := &Response{
		Text:  result.Text(),
		Model: p.config.Model,
	}
	if result.UsageMetadata != nil {
		resp.Usage = Usage{
			InputTokens:  int(result.UsageMetadata.PromptTokenCount),
			OutputTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}

	return resp, nil
}
