package features

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adalundhe/mosaic/core/fragment"
)

// CacheConfig bounds the feature cache.
type CacheConfig struct {
	// TTL is how long an extraction stays valid.
	TTL time.Duration `yaml:"ttl"`

	// MaxEntries is the store ceiling; oldest-updated entries are
	// evicted when crossed.
	MaxEntries int `yaml:"max_entries"`

	// Clock is injectable for deterministic tests.
	Clock func() time.Time `yaml:"-"`
}

// DefaultCacheConfig returns production cache bounds.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        24 * time.Hour,
		MaxEntries: 200,
	}
}

// CacheStats counts cache activity for observability.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Refreshes int64
	Fallbacks int64
}

// Cache is the per-fragment extracted-feature store. All mutation is
// mutex-guarded; extraction happens synchronously on first access and
// lazily on invalidation.
type Cache struct {
	mu sync.Mutex

	cfg       CacheConfig
	clock     func() time.Time
	extractor Extractor
	fallback  Extractor
	logger    *slog.Logger

	entries map[string]*ExtractedFeatures

	// refresh queue keeps insertion order so background catch-up drains
	// in a stable order.
	queued     map[string]struct{}
	queueOrder []string

	stats CacheStats
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the cache logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) {
		c.logger = logger
	}
}

// WithFallbackExtractor replaces the local fallback extractor.
func WithFallbackExtractor(extractor Extractor) CacheOption {
	return func(c *Cache) {
		c.fallback = extractor
	}
}

// NewCache creates a feature cache over the primary extractor.
func NewCache(cfg CacheConfig, extractor Extractor, opts ...CacheOption) *Cache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheConfig().TTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheConfig().MaxEntries
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	c := &Cache{
		cfg:       cfg,
		clock:     clock,
		extractor: extractor,
		fallback:  NewLocalExtractor(),
		logger:    slog.Default(),
		entries:   make(map[string]*ExtractedFeatures),
		queued:    make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetFeatures returns features for the fragment, extracting on first
// access or when the cached entry is no longer valid. Never returns an
// error: extraction failure degrades to the local fallback with the
// entry marked failed for opportunistic retry.
func (c *Cache) GetFeatures(ctx context.Context, frag *fragment.Fragment) *ExtractedFeatures {
	c.mu.Lock()
	entry, ok := c.entries[frag.ID]
	if ok && c.isValid(entry, frag) {
		c.stats.Hits++
		clone := entry.Clone()
		c.mu.Unlock()
		return clone
	}

	var priorUses int
	if ok {
		// Reclassification keeps the usage history; only eviction
		// discards it.
		priorUses = entry.UseCount
		entry.Status = StatusStale
		c.enqueueLocked(frag.ID)
	}
	c.stats.Misses++
	c.mu.Unlock()

	feats := c.extract(ctx, frag)
	feats.UseCount = priorUses

	c.mu.Lock()
	c.entries[frag.ID] = feats
	c.evictLocked()
	clone := feats.Clone()
	c.mu.Unlock()

	return clone
}

// GetCached returns the cached entry without triggering extraction.
func (c *Cache) GetCached(id string) (*ExtractedFeatures, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// QueueRefresh marks a fragment for background re-extraction.
func (c *Cache) QueueRefresh(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enqueueLocked(id)
}

// PendingRefresh returns the queued fragment ids in enqueue order.
func (c *Cache) PendingRefresh() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.queueOrder...)
}

// ProcessRefreshQueue drains the refresh queue against the given
// fragment set. Unknown ids are dropped silently (the fragment was
// deleted since it was queued).
func (c *Cache) ProcessRefreshQueue(ctx context.Context, fragments map[string]*fragment.Fragment) {
	c.mu.Lock()
	pending := c.queueOrder
	c.queueOrder = nil
	c.queued = make(map[string]struct{})
	c.stats.Refreshes += int64(len(pending))
	c.mu.Unlock()

	for _, id := range pending {
		frag, ok := fragments[id]
		if !ok {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		c.GetFeatures(ctx, frag)
	}
}

// MarkUsed increments the fragment's generation-source usage counter.
func (c *Cache) MarkUsed(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[id]; ok {
		entry.UseCount++
	}
}

// UseCount returns the fragment's usage counter (0 when absent).
func (c *Cache) UseCount(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[id]; ok {
		return entry.UseCount
	}
	return 0
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Reset clears all entries and queued refreshes.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*ExtractedFeatures)
	c.queued = make(map[string]struct{})
	c.queueOrder = nil
}

// isValid implements the three-way validity check: TTL elapsed,
// fragment updated since extraction, or a failed prior extraction all
// invalidate. Caller must hold the lock.
func (c *Cache) isValid(entry *ExtractedFeatures, frag *fragment.Fragment) bool {
	if entry.Status == StatusFailed || entry.Status == StatusStale || entry.Status == StatusPending {
		return false
	}
	if c.clock().Sub(entry.ExtractedAt) > c.cfg.TTL {
		return false
	}
	if frag.UpdatedAt.After(entry.FragmentUpdatedAt) {
		return false
	}
	return true
}

func (c *Cache) extract(ctx context.Context, frag *fragment.Fragment) *ExtractedFeatures {
	if c.extractor != nil {
		feats, err := c.extractor.Extract(ctx, frag)
		if err == nil {
			return feats
		}
		c.logger.Warn("feature extraction degraded to local fallback",
			"fragment", frag.ID,
			"error", err)
	}

	c.mu.Lock()
	c.stats.Fallbacks++
	c.mu.Unlock()

	feats, err := c.fallback.Extract(ctx, frag)
	if err != nil {
		// The local extractor cannot realistically fail, but degrade to
		// an empty failed entry rather than blocking the caller.
		feats = &ExtractedFeatures{
			FragmentID:        frag.ID,
			FragmentUpdatedAt: frag.UpdatedAt,
			ExtractedAt:       c.clock(),
		}
	}

	// A fallback result is marked failed so the next direct access
	// retries the full extraction opportunistically.
	if c.extractor != nil {
		feats.Status = StatusFailed
	}
	return feats
}

func (c *Cache) enqueueLocked(id string) {
	if _, ok := c.queued[id]; ok {
		return
	}
	c.queued[id] = struct{}{}
	c.queueOrder = append(c.queueOrder, id)
}

// evictLocked removes oldest-updated entries until the store is back
// under its ceiling. Caller must hold the lock.
func (c *Cache) evictLocked() {
	if len(c.entries) <= c.cfg.MaxEntries {
		return
	}

	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return c.entries[ids[i]].FragmentUpdatedAt.Before(c.entries[ids[j]].FragmentUpdatedAt)
	})

	for _, id := range ids {
		if len(c.entries) <= c.cfg.MaxEntries {
			break
		}
		delete(c.entries, id)
		c.stats.Evictions++
	}
}
