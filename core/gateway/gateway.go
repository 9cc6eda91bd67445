// Package gateway fronts the generation backends with tier routing,
// retry with backoff, daily-quota tracking, and transparent
// high-to-fast fallback when the high tier is exhausted.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/adalundhe/mosaic/core/errors"
	"github.com/adalundhe/mosaic/core/providers"
)

// Tier selects a quality/cost class for a call.
type Tier string

const (
	// TierFast is the cheap, low-latency tier used for feature
	// extraction and bulk generation.
	TierFast Tier = "fast"

	// TierDeep is the high-reasoning tier used for focal-question
	// synthesis and insight precomputation.
	TierDeep Tier = "deep"
)

// InvokeRequest is a single gateway call.
type InvokeRequest struct {
	Tier        Tier
	System      string
	Prompt      string
	MaxTokens   int
	Temperature *float64
	Images      []providers.ImageAttachment

	// Out, when non-nil, receives the JSON-parsed response. A response
	// that does not parse is a schema error, distinct from transport
	// failures, and is not retried.
	Out any

	// Cacheable marks idempotent calls (feature extraction) whose
	// responses may be served from the response cache.
	Cacheable bool
}

// InvokeResult reports the outcome of a gateway call.
type InvokeResult struct {
	Text      string
	Tier      Tier
	Provider  string
	FromCache bool
}

// Gateway wraps per-tier providers behind a uniform invoke interface.
type Gateway struct {
	adapters map[Tier]providers.ProviderAdapter
	limiter  *TierLimiter
	retry    *errors.RetryExecutor
	cache    *ResponseCache
	logger   *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the gateway logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithLimiter replaces the default tier limiter.
func WithLimiter(limiter *TierLimiter) Option {
	return func(g *Gateway) {
		g.limiter = limiter
	}
}

// WithResponseCache enables memoization of cacheable calls.
func WithResponseCache(cache *ResponseCache) Option {
	return func(g *Gateway) {
		g.cache = cache
	}
}

// WithRetryPolicies replaces the default retry policies.
func WithRetryPolicies(policies map[errors.ErrorTier]*errors.RetryPolicy) Option {
	return func(g *Gateway) {
		g.retry = errors.NewRetryExecutor(policies)
	}
}

// New creates a gateway over the given per-tier adapters. A tier with
// no adapter falls back to whichever adapter exists.
func New(adapters map[Tier]providers.ProviderAdapter, opts ...Option) (*Gateway, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("gateway requires at least one provider adapter")
	}

	g := &Gateway{
		adapters: adapters,
		limiter:  NewTierLimiter(DefaultLimiterConfig()),
		retry:    errors.NewRetryExecutor(nil),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Invoke performs one generation call. The requested tier may be
// silently served by the fast tier when the deep tier is exhausted;
// callers see the serving tier in the result, never an error about the
// mismatch.
func (g *Gateway) Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error) {
	if req == nil || strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.WrapWithTier(errors.TierPermanent, "empty prompt", errors.ErrInvalidInput)
	}

	tier := g.limiter.Route(req.Tier)
	if tier != req.Tier {
		g.logger.Warn("tier redirected",
			"requested", string(req.Tier),
			"serving", string(tier))
	}

	if g.cache != nil && req.Cacheable {
		if text, ok := g.cache.Get(tier, req); ok {
			result := &InvokeResult{Text: text, Tier: tier, FromCache: true}
			if err := g.parseStructured(req, text); err != nil {
				return nil, err
			}
			return result, nil
		}
	}

	adapter := g.adapterFor(tier)
	if adapter == nil {
		return nil, errors.NewTieredError(errors.TierPermanent, "no adapter for tier "+string(tier), nil)
	}

	var resp *providers.Response
	err := g.retry.Execute(ctx, func() error {
		var callErr error
		resp, callErr = adapter.Complete(ctx, &providers.Request{
			System:      req.System,
			Prompt:      req.Prompt,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			JSONOutput:  req.Out != nil,
			Images:      req.Images,
		})
		if callErr == nil {
			g.limiter.RecordRequest(tier)
			if g.limiter.SoftLimitCrossed() {
				g.logger.Warn("deep tier crossed soft daily limit",
					"tier", string(TierDeep),
					"count", g.limiter.Count(TierDeep))
			}
			return nil
		}

		classified := errors.Classify(callErr)
		if classified.Tier == errors.TierRateLimit && errors.IsDailyQuota(classified) {
			// No point retrying a day-quota error; the tier sits out
			// the rest of the reset window.
			g.limiter.MarkExhausted(tier)
			g.logger.Warn("tier exhausted for reset window", "tier", string(tier))
		}
		return classified
	})
	if err != nil {
		return nil, errors.WrapWithTier(errors.GetTier(err), "generation call failed", err)
	}

	if err := g.parseStructured(req, resp.Text); err != nil {
		return nil, err
	}

	if g.cache != nil && req.Cacheable {
		g.cache.Put(tier, req, resp.Text)
	}

	return &InvokeResult{
		Text:     resp.Text,
		Tier:     tier,
		Provider: adapter.Name(),
	}, nil
}

// adapterFor returns the adapter for a tier, falling back to any
// registered adapter when the tier has none.
func (g *Gateway) adapterFor(tier Tier) providers.ProviderAdapter {
	if adapter, ok := g.adapters[tier]; ok {
		return adapter
	}
	for _, adapter := range g.adapters {
		return adapter
	}
	return nil
}

// parseStructured parses the response text into req.Out when a schema
// target was requested. A parse failure after a successful call is a
// schema error, never retried.
func (g *Gateway) parseStructured(req *InvokeRequest, text string) error {
	if req.Out == nil {
		return nil
	}

	payload := extractJSON(text)
	if err := json.Unmarshal([]byte(payload), req.Out); err != nil {
		return errors.WrapWithTier(errors.TierSchema, "structured response parse", err)
	}
	return nil
}

// extractJSON strips markdown code fences and surrounding prose so a
// fenced or chatty JSON response still parses.
func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)

	if idx := strings.Index(trimmed, "```"); idx >= 0 {
		rest := trimmed[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			rest = rest[:end]
		}
		trimmed = strings.TrimSpace(rest)
	}

	// Fall back to the outermost braces or brackets.
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		objStart := strings.Index(trimmed, "{")
		arrStart := strings.Index(trimmed, "[")
		start := objStart
		if start < 0 || (arrStart >= 0 && arrStart < start) {
			start = arrStart
		}
		if start >= 0 {
			trimmed = trimmed[start:]
		}
	}
	if end := strings.LastIndexAny(trimmed, "}]"); end >= 0 {
		trimmed = trimmed[:end+1]
	}

	return trimmed
}
