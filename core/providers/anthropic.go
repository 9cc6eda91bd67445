package providers

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements ProviderAdapter for Claude models.
type AnthropicProvider struct {
	client *anthropic.Client
	config AnthropicConfig
}

// NewAnthropicProvider creates a new Anthropic adapter.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	defaults := DefaultAnthropicConfig()
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

	client := anthropic.NewClient(opts...)

	return &AnthropicProvider{
		client: &client,
		config: config,
	}, nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return string(ProviderTypeAnthropic)
}

// ValidateConfig checks the adapter configuration.
func (p *AnthropicProvider) ValidateConfig() error {
	return p.config.Validate()
}

// Complete performs a non-streaming completion request.
func (p *AnthropicProvider) Complete(ctx context.Context, req *Request) (*Response, error) {
	params := p.buildParams(req)

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic complete: %w", err)
	}

	return p.convertResponse(msg), nil
}

func (p *AnthropicProvider) buildParams(req *Request) anthropic.MessageNewParams {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	for _, img := range req.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, img.Data))
	}
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.config.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(blocks...),
		},
	}

	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	return params
}

func (p *AnthropicProvider) convertResponse(msg *anthropic.Message) *Response {
	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	return &Response{
		Text:  text,
		Model: string(msg.Model),
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}
