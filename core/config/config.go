// Package config loads the pipeline configuration: YAML over
// documented defaults, with API keys taken from the environment when
// the file leaves them blank.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/mosaic/core/collectors"
	"github.com/adalundhe/mosaic/core/diversity"
	"github.com/adalundhe/mosaic/core/features"
	"github.com/adalundhe/mosaic/core/gateway"
	"github.com/adalundhe/mosaic/core/providers"
	"github.com/adalundhe/mosaic/core/ranking"
	"github.com/adalundhe/mosaic/core/session"
)

// FastBackend selects which adapter serves the fast tier.
type FastBackend string

const (
	FastBackendOpenAI FastBackend = "openai"
	FastBackendGemini FastBackend = "gemini"
)

// ProvidersConfig selects and configures the generation backends.
type ProvidersConfig struct {
	// Deep always runs on the Anthropic adapter.
	Deep providers.AnthropicConfig `yaml:"deep"`

	// FastBackend picks the fast-tier adapter.
	FastBackend FastBackend `yaml:"fast_backend"`

	OpenAI providers.OpenAIConfig `yaml:"openai"`
	Gemini providers.GeminiConfig `yaml:"gemini"`
}

// GatewayConfig bounds the generation gateway.
type GatewayConfig struct {
	Limiter gateway.LimiterConfig `yaml:"limiter"`

	// CacheMaxCost bounds the response cache in bytes of cached text;
	// zero disables the cache.
	CacheMaxCost int64 `yaml:"cache_max_cost"`

	// CacheTTL is the response cache entry lifetime.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Config is the full pipeline configuration.
type Config struct {
	Providers ProvidersConfig            `yaml:"providers"`
	Gateway   GatewayConfig              `yaml:"gateway"`
	Features  features.CacheConfig       `yaml:"features"`
	Ranking   ranking.Config             `yaml:"ranking"`
	Diversity diversity.Config           `yaml:"diversity"`
	Collector collectors.CollectorConfig `yaml:"collector"`
	Insights  collectors.InsightConfig   `yaml:"insights"`
	Session   session.Config             `yaml:"session"`
}

// DefaultConfig returns the documented defaults for every component.
func DefaultConfig() *Config {
	return &Config{
		Providers: ProvidersConfig{
			Deep:        providers.DefaultAnthropicConfig(),
			FastBackend: FastBackendOpenAI,
			OpenAI:      providers.DefaultOpenAIConfig(),
			Gemini:      providers.DefaultGeminiConfig(),
		},
		Gateway: GatewayConfig{
			Limiter:      gateway.DefaultLimiterConfig(),
			CacheMaxCost: 4 << 20,
			CacheTTL:     time.Hour,
		},
		Features:  features.DefaultCacheConfig(),
		Ranking:   ranking.DefaultConfig(),
		Diversity: diversity.DefaultConfig(),
		Collector: collectors.DefaultCollectorConfig(),
		Insights:  collectors.DefaultInsightConfig(),
		Session:   session.DefaultConfig(),
	}
}

// Load reads the YAML file at path over the defaults. A missing file
// is not an error: the defaults plus environment keys apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to defaults
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv fills API keys the file left blank from the conventional
// environment variables.
func (c *Config) applyEnv() {
	if c.Providers.Deep.APIKey == "" {
		c.Providers.Deep.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if c.Providers.OpenAI.APIKey == "" {
		c.Providers.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Providers.Gemini.APIKey == "" {
		c.Providers.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
}

// Validate checks the provider selection and the configured backends'
// required fields.
func (c *Config) Validate() error {
	switch c.Providers.FastBackend {
	case FastBackendOpenAI:
		if err := c.Providers.OpenAI.Validate(); err != nil {
			return fmt.Errorf("openai config: %w", err)
		}
	case FastBackendGemini:
		if err := c.Providers.Gemini.Validate(); err != nil {
			return fmt.Errorf("gemini config: %w", err)
		}
	default:
		return fmt.Errorf("unknown fast backend %q", c.Providers.FastBackend)
	}

	if err := c.Providers.Deep.Validate(); err != nil {
		return fmt.Errorf("anthropic config: %w", err)
	}
	return nil
}
