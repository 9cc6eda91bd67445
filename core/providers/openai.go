package providers

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

// OpenAIProvider implements ProviderAdapter for GPT models.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIProvider creates a new OpenAI adapter.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	defaults := DefaultOpenAIConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = defaults.MaxTokens
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Organization != "" {
		opts = append(opts, option.WithHeader("OpenAI-Organization", config.Organization))
	}

	client := openai.NewClient(opts...)

	return &OpenAIProvider{
		client: &client,
		config: config,
	}, nil
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return string(ProviderTypeOpenAI)
}

// ValidateConfig checks the adapter configuration.
func (p *OpenAIProvider) ValidateConfig() error {
	return p.config.Validate()
}

// Complete performs a non-streaming completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	params := p.buildParams(req)

	result, err := p.client.Responses.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai complete: %w", err)
	}

	return &Response{
		Text:  result.OutputText(),
		Model: p.config.Model,
		Usage: Usage{
			InputTokens:  int(result.Usage.InputTokens),
			OutputTokens: int(result.Usage.OutputTokens),
		},
	}, nil
}

func (p *OpenAIProvider) buildParams(req *Request) responses.ResponseNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(p.config.Model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: openai.String(req.Prompt),
		},
		MaxOutputTokens: openai.Int(int64(maxTokens)),
	}

	if req.System != "" {
		params.Instructions = openai.String(req.System)
	}

	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	return params
}
