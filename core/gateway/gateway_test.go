package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/mosaic/core/errors"
	"github.com/adalundhe/mosaic/core/providers"
)

func fastRetryPolicies() map[errors.ErrorTier]*errors.RetryPolicy {
	return map[errors.ErrorTier]*errors.RetryPolicy{
		errors.TierTransient: {
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
		errors.TierRateLimit: {
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
		errors.TierDegrading: {
			MaxAttempts:  1,
			InitialDelay: time.Millisecond,
			MaxDelay:     2 * time.Millisecond,
			Multiplier:   2.0,
		},
		errors.TierPermanent: {},
		errors.TierSchema:    {},
	}
}

func newTestGateway(t *testing.T, deep, fast *providers.MockProvider, opts ...Option) *Gateway {
	t.Helper()

	adapters := map[Tier]providers.ProviderAdapter{
		TierDeep: deep,
		TierFast: fast,
	}
	opts = append([]Option{WithRetryPolicies(fastRetryPolicies())}, opts...)
	g, err := New(adapters, opts...)
	require.NoError(t, err)
	return g
}

func TestInvoke_ServesRequestedTier(t *testing.T) {
	deep := providers.NewMockProvider().Fallback("deep answer")
	fast := providers.NewMockProvider().Fallback("fast answer")
	g := newTestGateway(t, deep, fast)

	result, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "deep answer", result.Text)
	assert.Equal(t, TierDeep, result.Tier)

	result, err = g.Invoke(context.Background(), &InvokeRequest{Tier: TierFast, Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "fast answer", result.Text)
}

func TestInvoke_RetriesTransientFailures(t *testing.T) {
	deep := providers.NewMockProvider().Fallback("recovered")
	deep.FailNext(2, errors.NewTieredError(errors.TierTransient, "blip", nil))
	fast := providers.NewMockProvider()
	g := newTestGateway(t, deep, fast)

	result, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", result.Text)
	assert.Equal(t, 3, deep.CallCount())
}

func TestInvoke_DailyQuotaMarksTierExhaustedAndFailsCurrentCall(t *testing.T) {
	deep := providers.NewMockProvider().FailWith(errors.ErrQuotaExceeded)
	fast := providers.NewMockProvider().Fallback("fast answer")
	limiter := NewTierLimiter(DefaultLimiterConfig())
	g := newTestGateway(t, deep, fast, WithLimiter(limiter))

	_, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "hello"})
	require.Error(t, err)
	assert.Equal(t, errors.TierRateLimit, errors.GetTier(err))
	assert.Equal(t, 1, deep.CallCount(), "day-quota errors must not be retried")
	assert.True(t, limiter.Exhausted(TierDeep))

	// The next deep request is transparently served by the fast tier.
	result, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "hello again"})
	require.NoError(t, err)
	assert.Equal(t, TierFast, result.Tier)
	assert.Equal(t, "fast answer", result.Text)
	assert.Equal(t, 1, deep.CallCount())
}

func TestInvoke_HardDailyLimitRedirectsTransparently(t *testing.T) {
	deep := providers.NewMockProvider().Fallback("deep answer")
	fast := providers.NewMockProvider().Fallback("fast answer")

	now := time.Now()
	limiter := NewTierLimiter(LimiterConfig{
		ResetWindow:   24 * time.Hour,
		DeepHardLimit: 2,
		Clock:         func() time.Time { return now },
	})
	g := newTestGateway(t, deep, fast, WithLimiter(limiter))

	for i := 0; i < 2; i++ {
		result, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "hello"})
		require.NoError(t, err)
		assert.Equal(t, TierDeep, result.Tier)
	}

	// Hard counter reached: next deep call served by fast, no error.
	result, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "hello"})
	require.NoError(t, err)
	assert.Equal(t, TierFast, result.Tier)
	assert.Equal(t, "fast answer", result.Text)
}

func TestLimiter_SoftLimitReportsOncePerWindow(t *testing.T) {
	now := time.Now()
	clockNow := now
	limiter := NewTierLimiter(LimiterConfig{
		ResetWindow:   24 * time.Hour,
		DeepSoftLimit: 2,
		DeepHardLimit: 10,
		Clock:         func() time.Time { return clockNow },
	})

	limiter.RecordRequest(TierDeep)
	assert.False(t, limiter.SoftLimitCrossed())

	limiter.RecordRequest(TierDeep)
	assert.True(t, limiter.SoftLimitCrossed())
	assert.False(t, limiter.SoftLimitCrossed(), "crossing reports once per window")

	limiter.RecordRequest(TierDeep)
	assert.False(t, limiter.SoftLimitCrossed())

	// A fresh window re-arms the warning.
	clockNow = now.Add(25 * time.Hour)
	assert.False(t, limiter.SoftLimitCrossed())
	limiter.RecordRequest(TierDeep)
	limiter.RecordRequest(TierDeep)
	assert.True(t, limiter.SoftLimitCrossed())
}

func TestInvoke_SoftLimitCrossingLogsWarning(t *testing.T) {
	deep := providers.NewMockProvider().Fallback("deep answer")
	fast := providers.NewMockProvider()

	limiter := NewTierLimiter(LimiterConfig{
		ResetWindow:   24 * time.Hour,
		DeepSoftLimit: 2,
		DeepHardLimit: 10,
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	g := newTestGateway(t, deep, fast, WithLimiter(limiter), WithLogger(logger))

	for i := 0; i < 3; i++ {
		_, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "hello"})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, strings.Count(logs.String(), "soft daily limit"),
		"warning fires exactly once per window")
}

func TestInvoke_ExhaustionClearsAfterResetWindow(t *testing.T) {
	now := time.Now()
	clockNow := now
	limiter := NewTierLimiter(LimiterConfig{
		ResetWindow: 24 * time.Hour,
		Clock:       func() time.Time { return clockNow },
	})

	limiter.MarkExhausted(TierDeep)
	assert.Equal(t, TierFast, limiter.Route(TierDeep))

	clockNow = now.Add(25 * time.Hour)
	assert.Equal(t, TierDeep, limiter.Route(TierDeep))
}

func TestInvoke_SchemaParseFailureIsDistinctAndNotRetried(t *testing.T) {
	deep := providers.NewMockProvider().Fallback("this is not json")
	fast := providers.NewMockProvider()
	g := newTestGateway(t, deep, fast)

	var out struct {
		Keywords []string `json:"keywords"`
	}
	_, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "extract", Out: &out})
	require.Error(t, err)
	assert.Equal(t, errors.TierSchema, errors.GetTier(err))
	assert.Equal(t, 1, deep.CallCount())
}

func TestInvoke_ParsesFencedStructuredOutput(t *testing.T) {
	deep := providers.NewMockProvider().
		Fallback("```json\n{\"keywords\":[\"warmth\",\"analog\"]}\n```")
	fast := providers.NewMockProvider()
	g := newTestGateway(t, deep, fast)

	var out struct {
		Keywords []string `json:"keywords"`
	}
	result, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierDeep, Prompt: "extract", Out: &out})
	require.NoError(t, err)
	assert.Equal(t, TierDeep, result.Tier)
	assert.Equal(t, []string{"warmth", "analog"}, out.Keywords)
}

func TestInvoke_EmptyPromptRejected(t *testing.T) {
	g := newTestGateway(t, providers.NewMockProvider(), providers.NewMockProvider())

	_, err := g.Invoke(context.Background(), &InvokeRequest{Tier: TierFast, Prompt: "   "})
	require.Error(t, err)
	assert.Equal(t, errors.TierPermanent, errors.GetTier(err))
}

func TestInvoke_CacheableCallsMemoized(t *testing.T) {
	fast := providers.NewMockProvider().Fallback("extracted features")
	cache, err := NewResponseCache(nil)
	require.NoError(t, err)
	defer cache.Close()

	g := newTestGateway(t, providers.NewMockProvider(), fast, WithResponseCache(cache))

	req := &InvokeRequest{Tier: TierFast, Prompt: "extract from fragment-1", Cacheable: true}
	first, err := g.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	cache.Wait()

	second, err := g.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, 1, fast.CallCount())
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"fenced no lang", "```\n[1,2]\n```", `[1,2]`},
		{"prose wrapped", "Here you go: {\"a\":1} hope that helps", `{"a":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.in))
		})
	}
}
