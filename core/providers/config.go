package providers

import (
	"fmt"
)

// BaseConfig contains configuration common to all providers.
type BaseConfig struct {
	// APIKey is the authentication key for the provider.
	APIKey string `json:"api_key" yaml:"api_key"`

	// Model is the model identifier to use.
	Model string `json:"model" yaml:"model"`

	// MaxTokens is the default maximum tokens to generate.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// BaseURL overrides the provider endpoint (proxies, test servers).
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

// Validate checks the base configuration.
func (c *BaseConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive")
	}
	return nil
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	BaseConfig `yaml:",inline"`
}

// DefaultAnthropicConfig returns defaults for the high-reasoning tier.
func DefaultAnthropicConfig() AnthropicConfig {
	return AnthropicConfig{BaseConfig{
		Model:     "claude-sonnet-4-5-20250901",
		MaxTokens: 2048,
	}}
}

// OpenAIConfig configures the OpenAI adapter.
type OpenAIConfig struct {
	BaseConfig   `yaml:",inline"`
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
}

// DefaultOpenAIConfig returns defaults for the fast tier.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{BaseConfig: BaseConfig{
		Model:     "gpt-4o-mini",
		MaxTokens: 1024,
	}}
}

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	BaseConfig `yaml:",inline"`
}

// DefaultGeminiConfig returns defaults for the fast tier.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{BaseConfig{
		Model:     "gemini-2.0-flash",
		MaxTokens: 1024,
	}}
}
