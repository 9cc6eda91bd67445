package gateway

import (
	"sync"
	"time"
)

// LimiterConfig bounds daily usage per tier.
type LimiterConfig struct {
	// ResetWindow is how long an exhausted tier sits out (default 24h),
	// and the length of the daily counting period.
	ResetWindow time.Duration `yaml:"reset_window"`

	// DeepSoftLimit triggers a warning log when crossed.
	DeepSoftLimit int `yaml:"deep_soft_limit"`

	// DeepHardLimit redirects further deep-tier requests to the fast
	// tier for the remainder of the window.
	DeepHardLimit int `yaml:"deep_hard_limit"`

	// Clock is injectable for deterministic tests.
	Clock func() time.Time `yaml:"-"`
}

// DefaultLimiterConfig returns production limits.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		ResetWindow:   24 * time.Hour,
		DeepSoftLimit: 150,
		DeepHardLimit: 200,
	}
}

// TierLimiter tracks per-tier exhaustion and daily request counters.
// Once the deep tier hits its hard cap or is flagged exhausted, Route
// silently redirects deep requests to the fast tier.
type TierLimiter struct {
	mu sync.Mutex

	cfg   LimiterConfig
	clock func() time.Time

	windowStart time.Time
	counts      map[Tier]int
	exhausted   map[Tier]time.Time

	softWarned bool
}

// NewTierLimiter creates a limiter with the given config.
func NewTierLimiter(cfg LimiterConfig) *TierLimiter {
	if cfg.ResetWindow <= 0 {
		cfg.ResetWindow = 24 * time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &TierLimiter{
		cfg:         cfg,
		clock:       clock,
		windowStart: clock(),
		counts:      make(map[Tier]int),
		exhausted:   make(map[Tier]time.Time),
	}
}

// Route returns the tier that should actually serve the request.
func (l *TierLimiter) Route(requested Tier) Tier {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollWindow()

	if requested != TierDeep {
		return requested
	}

	if until, ok := l.exhausted[TierDeep]; ok && l.clock().Before(until) {
		return TierFast
	}

	if l.cfg.DeepHardLimit > 0 && l.counts[TierDeep] >= l.cfg.DeepHardLimit {
		return TierFast
	}

	return TierDeep
}

// RecordRequest counts a successful request against the tier's window.
func (l *TierLimiter) RecordRequest(tier Tier) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollWindow()
	l.counts[tier]++
}

// MarkExhausted flags a tier as quota-exhausted for the remainder of
// the reset window.
func (l *TierLimiter) MarkExhausted(tier Tier) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.exhausted[tier] = l.windowStart.Add(l.cfg.ResetWindow)
}

// Exhausted reports whether a tier is currently flagged exhausted.
func (l *TierLimiter) Exhausted(tier Tier) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	until, ok := l.exhausted[tier]
	return ok && l.clock().Before(until)
}

// Count returns the tier's request count in the current window.
func (l *TierLimiter) Count(tier Tier) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollWindow()
	return l.counts[tier]
}

// SoftLimitCrossed reports (once per window) that the deep tier passed
// its soft limit.
func (l *TierLimiter) SoftLimitCrossed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollWindow()
	if l.softWarned || l.cfg.DeepSoftLimit <= 0 {
		return false
	}
	if l.counts[TierDeep] >= l.cfg.DeepSoftLimit {
		l.softWarned = true
		return true
	}
	return false
}

// rollWindow resets counters and exhaustion flags when the reset window
// has elapsed. Caller must hold the lock.
func (l *TierLimiter) rollWindow() {
	now := l.clock()
	if now.Sub(l.windowStart) < l.cfg.ResetWindow {
		return
	}

	l.windowStart = now
	l.counts = make(map[Tier]int)
	l.exhausted = make(map[Tier]time.Time)
	l.softWarned = false
}
