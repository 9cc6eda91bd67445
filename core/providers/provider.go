// Package providers wraps the generation backends behind a uniform
// adapter interface. The pipeline only ever sees Request and Response;
// vendor SDK types stay inside each adapter.
package providers

import (
	"context"
)

// ProviderType identifies a backend vendor.
type ProviderType string

const (
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeGemini    ProviderType = "gemini"
	ProviderTypeMock      ProviderType = "mock"
)

// ProviderAdapter is the synchronous request/response boundary to a
// generative backend.
type ProviderAdapter interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// ProviderValidator is implemented by adapters that can validate their
// configuration before first use.
type ProviderValidator interface {
	ValidateConfig() error
}

// ImageAttachment carries base64-encoded image data for multimodal
// prompts.
type ImageAttachment struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Request is a single completion call.
type Request struct {
	System      string            `json:"system,omitempty"`
	Prompt      string            `json:"prompt"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature *float64          `json:"temperature,omitempty"`
	JSONOutput  bool              `json:"json_output,omitempty"`
	Images      []ImageAttachment `json:"images,omitempty"`
}

// Response is the raw completion result. Structured-output parsing
// happens above this layer, in the gateway.
type Response struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Usage reports token consumption for a call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
