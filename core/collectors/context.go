// Package collectors runs the background work that keeps the
// interactive path warm: debounced feature extraction over fragment
// change bursts, a searchable fragment index, and periodic insight
// precomputation.
package collectors

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adalundhe/mosaic/core/features"
	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/ranking"
)

// FragmentSource resolves fragment records for background work. The
// project layer owning the fragments satisfies it.
type FragmentSource interface {
	Fragments() []*fragment.Fragment
	Fragment(id string) (*fragment.Fragment, bool)
}

// CollectorConfig bounds the context collector.
type CollectorConfig struct {
	// Debounce is the trailing-edge quiet window for change bursts.
	Debounce time.Duration `yaml:"debounce"`

	// MaxInFlight bounds concurrent feature extractions per batch.
	MaxInFlight int `yaml:"max_in_flight"`
}

// DefaultCollectorConfig returns production collector bounds.
func DefaultCollectorConfig() CollectorConfig {
	return CollectorConfig{
		Debounce:    500 * time.Millisecond,
		MaxInFlight: 4,
	}
}

// stoppableTimer abstracts time.Timer so tests can fire the debounce
// window deterministically.
type stoppableTimer interface {
	Stop() bool
}

// timerFactory schedules fn after d and returns a handle that can
// cancel it.
type timerFactory func(d time.Duration, fn func()) stoppableTimer

func afterFunc(d time.Duration, fn func()) stoppableTimer {
	return time.AfterFunc(d, fn)
}

// ContextCollector coalesces fragment-change events, batch-extracts
// features, and maintains the mode-relevance and theme indexes the
// interactive path reads.
type ContextCollector struct {
	cfg      CollectorConfig
	source   FragmentSource
	cache    *features.Cache
	logger   *slog.Logger
	newTimer timerFactory

	mu      sync.Mutex
	pending map[string]struct{}
	timer   stoppableTimer

	modeIndex  map[fragment.Mode][]*ranking.RankedCandidate
	themeIndex map[string][]string

	subscribers []chan struct{}

	inFlight atomic.Bool
	ready    atomic.Bool
	skipped  atomic.Int64
}

// CollectorOption configures a ContextCollector.
type CollectorOption func(*ContextCollector)

// WithCollectorLogger sets the collector logger.
func WithCollectorLogger(logger *slog.Logger) CollectorOption {
	return func(c *ContextCollector) {
		c.logger = logger
	}
}

// WithTimerFactory replaces the debounce timer scheduling, used by
// tests to fire the window deterministically.
func WithTimerFactory(factory timerFactory) CollectorOption {
	return func(c *ContextCollector) {
		c.newTimer = factory
	}
}

// NewContextCollector creates a collector over a fragment source and
// feature cache.
func NewContextCollector(cfg CollectorConfig, source FragmentSource, cache *features.Cache, opts ...CollectorOption) *ContextCollector {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultCollectorConfig().Debounce
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultCollectorConfig().MaxInFlight
	}

	c := &ContextCollector{
		cfg:        cfg,
		source:     source,
		cache:      cache,
		logger:     slog.Default(),
		newTimer:   afterFunc,
		pending:    make(map[string]struct{}),
		modeIndex:  make(map[fragment.Mode][]*ranking.RankedCandidate),
		themeIndex: make(map[string][]string),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NotifyChanged folds the changed fragment ids into the pending set
// and resets the debounce timer. Rapid-fire events coalesce into one
// trailing-edge collection run.
func (c *ContextCollector) NotifyChanged(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range ids {
		c.pending[id] = struct{}{}
	}

	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = c.newTimer(c.cfg.Debounce, func() {
		c.Collect(context.Background())
	})
}

// Collect runs one extraction batch over the pending set. Overlapping
// runs are skipped, not queued; the skip is counted for observability.
func (c *ContextCollector) Collect(ctx context.Context) {
	if !c.inFlight.CompareAndSwap(false, true) {
		c.skipped.Add(1)
		c.logger.Debug("collection already in flight, skipping cycle")
		return
	}
	defer c.inFlight.Store(false)

	c.mu.Lock()
	batch := make([]string, 0, len(c.pending))
	for id := range c.pending {
		batch = append(batch, id)
	}
	c.pending = make(map[string]struct{})
	c.mu.Unlock()

	fragments := make([]*fragment.Fragment, 0, len(batch))
	for _, id := range batch {
		if frag, ok := c.source.Fragment(id); ok {
			fragments = append(fragments, frag)
		}
	}

	c.extractBatch(ctx, fragments)
	cached := c.rebuildIndexes()

	if cached > 0 {
		c.ready.Store(true)
		c.notify()
	}

	c.logger.Debug("collection cycle complete",
		"batch", len(batch),
		"cached", cached)
}

// extractBatch warms the feature cache with bounded concurrency.
func (c *ContextCollector) extractBatch(ctx context.Context, fragments []*fragment.Fragment) {
	sem := make(chan struct{}, c.cfg.MaxInFlight)
	var wg sync.WaitGroup

	for _, frag := range fragments {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(frag *fragment.Fragment) {
			defer wg.Done()
			defer func() { <-sem }()
			c.cache.GetFeatures(ctx, frag)
		}(frag)
	}

	wg.Wait()
}

// rebuildIndexes recomputes the mode-relevance and theme indexes over
// the full fragment set and returns how many fragments have cached
// features.
func (c *ContextCollector) rebuildIndexes() int {
	fragments := c.source.Fragments()

	modeIndex := make(map[fragment.Mode][]*ranking.RankedCandidate, 4)
	for _, mode := range fragment.AllModes() {
		modeIndex[mode] = ranking.RankByMode(fragments, c.cache, mode)
	}

	themeIndex := make(map[string][]string)
	cached := 0
	for _, frag := range fragments {
		feats, ok := c.cache.GetCached(frag.ID)
		if !ok {
			continue
		}
		cached++
		for _, theme := range feats.Themes {
			themeIndex[theme] = append(themeIndex[theme], frag.ID)
		}
	}

	c.mu.Lock()
	c.modeIndex = modeIndex
	c.themeIndex = themeIndex
	c.mu.Unlock()

	return cached
}

// notify signals each subscriber once for this batch; a subscriber
// that has not drained its previous signal is not blocked on.
func (c *ContextCollector) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, sub := range c.subscribers {
		select {
		case sub <- struct{}{}:
		default:
		}
	}
}

// Subscribe returns a channel that receives one signal per completed
// batch that cached at least one fragment.
func (c *ContextCollector) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	c.subscribers = append(c.subscribers, ch)
	c.mu.Unlock()

	return ch
}

// Ready reports whether at least one batch has produced cached
// features.
func (c *ContextCollector) Ready() bool {
	return c.ready.Load()
}

// Skipped returns how many collection cycles were dropped because a
// run was already in flight.
func (c *ContextCollector) Skipped() int64 {
	return c.skipped.Load()
}

// ModeIndex returns the fragments relevant to a quadrant, sorted
// descending by score.
func (c *ContextCollector) ModeIndex(mode fragment.Mode) []*ranking.RankedCandidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*ranking.RankedCandidate(nil), c.modeIndex[mode]...)
}

// FragmentsForTheme returns the fragment ids whose cached features
// carry the theme.
func (c *ContextCollector) FragmentsForTheme(theme string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.themeIndex[theme]...)
}

// Pending returns how many fragment ids await the next batch.
func (c *ContextCollector) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}
