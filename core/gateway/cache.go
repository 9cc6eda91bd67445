package gateway

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	defaultCacheCounters = 1e5
	defaultCacheMaxCost  = 1 << 22 // 4MB of response text
	defaultCacheBuffer   = 64
	defaultCacheTTL      = 10 * time.Minute
)

// ResponseCache memoizes idempotent gateway calls so a refresh storm of
// identical extraction prompts does not burn daily quota.
type ResponseCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// ResponseCacheConfig configures the response cache.
type ResponseCacheConfig struct {
	MaxCost int64
	TTL     time.Duration
}

// NewResponseCache creates a ristretto-backed response cache.
func NewResponseCache(cfg *ResponseCacheConfig) (*ResponseCache, error) {
	maxCost := int64(defaultCacheMaxCost)
	ttl := defaultCacheTTL
	if cfg != nil {
		if cfg.MaxCost > 0 {
			maxCost = cfg.MaxCost
		}
		if cfg.TTL > 0 {
			ttl = cfg.TTL
		}
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultCacheCounters,
		MaxCost:     maxCost,
		BufferItems: defaultCacheBuffer,
	})
	if err != nil {
		return nil, err
	}

	return &ResponseCache{cache: cache, ttl: ttl}, nil
}

// Get returns a memoized response for the request, if present.
func (c *ResponseCache) Get(tier Tier, req *InvokeRequest) (string, bool) {
	value, found := c.cache.Get(cacheKey(tier, req))
	if !found {
		return "", false
	}
	text, ok := value.(string)
	return text, ok
}

// Put stores a response under the request's key.
func (c *ResponseCache) Put(tier Tier, req *InvokeRequest, text string) {
	c.cache.SetWithTTL(cacheKey(tier, req), text, int64(len(text)), c.ttl)
}

// Wait flushes pending writes; used by tests.
func (c *ResponseCache) Wait() {
	c.cache.Wait()
}

// Close releases cache resources.
func (c *ResponseCache) Close() {
	c.cache.Close()
}

func cacheKey(tier Tier, req *InvokeRequest) string {
	h := sha256.New()
	h.Write([]byte(tier))
	h.Write([]byte{0})
	h.Write([]byte(req.System))
	h.Write([]byte{0})
	h.Write([]byte(req.Prompt))
	return hex.EncodeToString(h.Sum(nil))
}
