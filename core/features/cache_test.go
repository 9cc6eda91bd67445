package features

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/mosaic/core/fragment"
)

// countingExtractor wraps an extractor and counts invocations.
type countingExtractor struct {
	calls int
	fail  bool
}

func (e *countingExtractor) Extract(_ context.Context, frag *fragment.Fragment) (*ExtractedFeatures, error) {
	e.calls++
	if e.fail {
		return nil, fmt.Errorf("backend unavailable")
	}
	return &ExtractedFeatures{
		FragmentID:        frag.ID,
		Keywords:          []string{"kw-" + frag.ID},
		Themes:            []string{"theme"},
		Status:            StatusComplete,
		FragmentUpdatedAt: frag.UpdatedAt,
		ExtractedAt:       time.Now(),
	}, nil
}

func textFragment(id string, updatedAt time.Time) *fragment.Fragment {
	return &fragment.Fragment{
		ID:        id,
		Kind:      fragment.KindText,
		Content:   "a warm analog photograph of morning light",
		UpdatedAt: updatedAt,
	}
}

func TestGetFeatures_ExtractsOnceThenServesFromCache(t *testing.T) {
	extractor := &countingExtractor{}
	cache := NewCache(DefaultCacheConfig(), extractor)

	frag := textFragment("f1", time.Now())

	first := cache.GetFeatures(context.Background(), frag)
	second := cache.GetFeatures(context.Background(), frag)

	assert.Equal(t, 1, extractor.calls)
	assert.Equal(t, first.Keywords, second.Keywords)
	assert.Equal(t, int64(1), cache.Stats().Hits)
	assert.Equal(t, int64(1), cache.Stats().Misses)
}

func TestGetFeatures_FragmentUpdateInvalidatesEntry(t *testing.T) {
	extractor := &countingExtractor{}
	cache := NewCache(DefaultCacheConfig(), extractor)

	updated := time.Now()
	frag := textFragment("f1", updated)
	cache.GetFeatures(context.Background(), frag)

	// Bump the fragment's timestamp: the next access must re-extract.
	frag.UpdatedAt = updated.Add(time.Minute)
	cache.GetFeatures(context.Background(), frag)

	assert.Equal(t, 2, extractor.calls)
}

func TestGetFeatures_TTLExpiryInvalidatesEntry(t *testing.T) {
	now := time.Now()
	clockNow := now
	cfg := CacheConfig{
		TTL:        time.Hour,
		MaxEntries: 10,
		Clock:      func() time.Time { return clockNow },
	}
	extractor := &countingExtractor{}
	cache := NewCache(cfg, extractor)

	frag := textFragment("f1", now)
	cache.GetFeatures(context.Background(), frag)

	clockNow = now.Add(2 * time.Hour)
	cache.GetFeatures(context.Background(), frag)

	assert.Equal(t, 2, extractor.calls)
}

func TestGetFeatures_FailureDegradesToLocalFallback(t *testing.T) {
	extractor := &countingExtractor{fail: true}
	cache := NewCache(DefaultCacheConfig(), extractor)

	frag := textFragment("f1", time.Now())
	feats := cache.GetFeatures(context.Background(), frag)

	// The local fallback only reports frequency keywords: no fabricated
	// themes or sentiment.
	assert.NotEmpty(t, feats.Keywords)
	assert.Empty(t, feats.Themes)
	assert.Empty(t, feats.Sentiment)
	assert.Equal(t, StatusFailed, feats.Status)
	assert.Equal(t, int64(1), cache.Stats().Fallbacks)

	// Failed entries are retried opportunistically on next access.
	extractor.fail = false
	feats = cache.GetFeatures(context.Background(), frag)
	assert.Equal(t, StatusComplete, feats.Status)
	assert.Equal(t, 2, extractor.calls)
}

func TestCache_UsageCounterSurvivesReclassification(t *testing.T) {
	extractor := &countingExtractor{}
	cache := NewCache(DefaultCacheConfig(), extractor)

	updated := time.Now()
	frag := textFragment("f1", updated)
	cache.GetFeatures(context.Background(), frag)
	cache.MarkUsed("f1")
	cache.MarkUsed("f1")
	require.Equal(t, 2, cache.UseCount("f1"))

	// Invalidate and re-extract: usage history must survive.
	frag.UpdatedAt = updated.Add(time.Minute)
	cache.GetFeatures(context.Background(), frag)
	assert.Equal(t, 2, cache.UseCount("f1"))
}

func TestCache_EvictsOldestUpdatedBeyondCeiling(t *testing.T) {
	cfg := CacheConfig{TTL: time.Hour, MaxEntries: 3}
	extractor := &countingExtractor{}
	cache := NewCache(cfg, extractor)

	base := time.Now()
	for i := 0; i < 5; i++ {
		frag := textFragment(fmt.Sprintf("f%d", i), base.Add(time.Duration(i)*time.Minute))
		cache.GetFeatures(context.Background(), frag)
	}

	assert.Equal(t, 3, cache.Len())
	assert.Equal(t, int64(2), cache.Stats().Evictions)

	// The two oldest-updated entries are gone; the newest remain.
	_, ok := cache.GetCached("f0")
	assert.False(t, ok)
	_, ok = cache.GetCached("f1")
	assert.False(t, ok)
	_, ok = cache.GetCached("f4")
	assert.True(t, ok)
}

func TestCache_RefreshQueueDrainsInOrder(t *testing.T) {
	extractor := &countingExtractor{}
	cache := NewCache(DefaultCacheConfig(), extractor)

	cache.QueueRefresh("f2")
	cache.QueueRefresh("f1")
	cache.QueueRefresh("f2") // duplicate folds into the pending set

	assert.Equal(t, []string{"f2", "f1"}, cache.PendingRefresh())

	fragments := map[string]*fragment.Fragment{
		"f1": textFragment("f1", time.Now()),
		"f2": textFragment("f2", time.Now()),
	}
	cache.ProcessRefreshQueue(context.Background(), fragments)

	assert.Empty(t, cache.PendingRefresh())
	assert.Equal(t, 2, extractor.calls)
	assert.Equal(t, 2, cache.Len())
}

func TestLocalExtractor_FrequencyKeywords(t *testing.T) {
	extractor := NewLocalExtractor()

	frag := &fragment.Fragment{
		ID:      "f1",
		Kind:    fragment.KindText,
		Content: "warm light, warm grain, analog warmth in the morning light",
		Tags:    []string{"Analog"},
	}

	feats, err := extractor.Extract(context.Background(), frag)
	require.NoError(t, err)

	assert.Equal(t, "warm", feats.Keywords[0], "most frequent word ranks first")
	assert.Contains(t, feats.Keywords, "light")
	assert.Contains(t, feats.Keywords, "analog", "tags always qualify as keywords")
	assert.Empty(t, feats.Themes)
	assert.Empty(t, feats.Sentiment)
}
