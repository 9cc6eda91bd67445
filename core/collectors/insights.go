package collectors

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/gateway"
)

// Invoker is the slice of the generation gateway the precomputer
// needs. *gateway.Gateway satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req *gateway.InvokeRequest) (*gateway.InvokeResult, error)
}

// InsightConfig bounds the insight precomputation loop.
type InsightConfig struct {
	// Interval is the recomputation period.
	Interval time.Duration `yaml:"interval"`

	// TopPerMode is how many fragments each quadrant is assigned.
	TopPerMode int `yaml:"top_per_mode"`

	// MinPerMode is the backfill floor: quadrants with fewer relevant
	// fragments borrow unassigned ones up to this count.
	MinPerMode int `yaml:"min_per_mode"`

	// Staleness is the advisory validity window for a snapshot.
	Staleness time.Duration `yaml:"staleness"`

	// QuestionCount is how many candidate focal questions to request.
	QuestionCount int `yaml:"question_count"`

	// Clock is injectable for deterministic tests.
	Clock func() time.Time `yaml:"-"`
}

// DefaultInsightConfig returns production precomputation bounds.
func DefaultInsightConfig() InsightConfig {
	return InsightConfig{
		Interval:      15 * time.Second,
		TopPerMode:    3,
		MinPerMode:    2,
		Staleness:     5 * time.Minute,
		QuestionCount: 3,
	}
}

// Snapshot is one precomputed insight set. Staleness is advisory:
// callers may still use a stale snapshot.
type Snapshot struct {
	ModeAssignments map[fragment.Mode][]string
	FocalQuestions  []string
	GeneratedAt     time.Time
}

// InsightPrecomputer periodically recomputes per-mode fragment
// assignments and candidate focal questions so session starts never
// block on cold computation.
type InsightPrecomputer struct {
	cfg       InsightConfig
	collector *ContextCollector
	source    FragmentSource
	invoker   Invoker
	logger    *slog.Logger
	clock     func() time.Time

	mu       sync.Mutex
	snapshot *Snapshot

	inFlight atomic.Bool
	skipped  atomic.Int64
}

// InsightOption configures an InsightPrecomputer.
type InsightOption func(*InsightPrecomputer)

// WithInsightLogger sets the precomputer logger.
func WithInsightLogger(logger *slog.Logger) InsightOption {
	return func(p *InsightPrecomputer) {
		p.logger = logger
	}
}

// NewInsightPrecomputer creates a precomputer over the collector's
// indexes and the deep generation tier.
func NewInsightPrecomputer(cfg InsightConfig, collector *ContextCollector, source FragmentSource, invoker Invoker, opts ...InsightOption) *InsightPrecomputer {
	defaults := DefaultInsightConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.TopPerMode <= 0 {
		cfg.TopPerMode = defaults.TopPerMode
	}
	if cfg.MinPerMode <= 0 {
		cfg.MinPerMode = defaults.MinPerMode
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = defaults.Staleness
	}
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = defaults.QuestionCount
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	p := &InsightPrecomputer{
		cfg:       cfg,
		collector: collector,
		source:    source,
		invoker:   invoker,
		logger:    slog.Default(),
		clock:     clock,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run recomputes on the configured interval until the context is
// cancelled. Cycles before the collector reports ready are no-ops.
func (p *InsightPrecomputer) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ComputeNow(ctx)
		}
	}
}

// ComputeNow runs one recomputation cycle. Overlapping cycles are
// skipped, not queued.
func (p *InsightPrecomputer) ComputeNow(ctx context.Context) {
	if !p.collector.Ready() {
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return
	}
	defer p.inFlight.Store(false)

	snapshot := &Snapshot{
		ModeAssignments: p.assignModes(),
		GeneratedAt:     p.clock(),
	}
	snapshot.FocalQuestions = p.synthesizeQuestions(ctx, snapshot.ModeAssignments)

	p.mu.Lock()
	if len(snapshot.FocalQuestions) == 0 && p.snapshot != nil {
		// Keep serving the previous questions rather than none.
		snapshot.FocalQuestions = p.snapshot.FocalQuestions
	}
	p.snapshot = snapshot
	p.mu.Unlock()

	p.logger.Debug("insight snapshot recomputed",
		"questions", len(snapshot.FocalQuestions))
}

// Snapshot returns the latest snapshot and whether it has outlived the
// staleness window. Nil until the first successful cycle.
func (p *InsightPrecomputer) Snapshot() (*Snapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.snapshot == nil {
		return nil, false
	}
	stale := p.clock().Sub(p.snapshot.GeneratedAt) > p.cfg.Staleness
	return p.snapshot, stale
}

// Skipped returns how many cycles were dropped because one was
// already running.
func (p *InsightPrecomputer) Skipped() int64 {
	return p.skipped.Load()
}

// assignModes takes the top-N fragments per quadrant from the
// collector's relevance index, then backfills thin quadrants from
// fragments no quadrant claimed.
func (p *InsightPrecomputer) assignModes() map[fragment.Mode][]string {
	assignments := make(map[fragment.Mode][]string, 4)
	assigned := make(map[string]struct{})

	for _, mode := range fragment.AllModes() {
		ranked := p.collector.ModeIndex(mode)
		ids := make([]string, 0, p.cfg.TopPerMode)
		for _, candidate := range ranked {
			if len(ids) >= p.cfg.TopPerMode {
				break
			}
			ids = append(ids, candidate.Fragment.ID)
			assigned[candidate.Fragment.ID] = struct{}{}
		}
		assignments[mode] = ids
	}

	var unassigned []string
	for _, frag := range p.source.Fragments() {
		if _, ok := assigned[frag.ID]; !ok {
			unassigned = append(unassigned, frag.ID)
		}
	}

	for _, mode := range fragment.AllModes() {
		for len(assignments[mode]) < p.cfg.MinPerMode && len(unassigned) > 0 {
			assignments[mode] = append(assignments[mode], unassigned[0])
			unassigned = unassigned[1:]
		}
	}

	return assignments
}

type questionResult struct {
	Questions []string `json:"questions"`
}

// synthesizeQuestions asks the deep tier for candidate focal
// questions grounded in the assigned fragments. Failure degrades to
// an empty list; the caller keeps the previous snapshot's questions.
func (p *InsightPrecomputer) synthesizeQuestions(ctx context.Context, assignments map[fragment.Mode][]string) []string {
	var sb strings.Builder
	for _, mode := range fragment.AllModes() {
		for _, id := range assignments[mode] {
			frag, ok := p.source.Fragment(id)
			if !ok {
				continue
			}
			fmt.Fprintf(&sb, "- [%s] %s\n", mode, excerpt(frag.Text(), 160))
		}
	}
	if sb.Len() == 0 {
		return nil
	}

	var result questionResult
	_, err := p.invoker.Invoke(ctx, &gateway.InvokeRequest{
		Tier: gateway.TierDeep,
		System: "You distill a designer's collected fragments into candidate " +
			"focal questions for an ideation session.",
		Prompt: fmt.Sprintf(
			"Fragments:\n%s\nPropose %d distinct focal questions this material could answer. "+
				"Respond as JSON: {\"questions\": [\"...\"]}",
			sb.String(), p.cfg.QuestionCount),
		Out: &result,
	})
	if err != nil {
		p.logger.Warn("focal question synthesis failed", "error", err)
		return nil
	}

	if len(result.Questions) > p.cfg.QuestionCount {
		result.Questions = result.Questions[:p.cfg.QuestionCount]
	}
	return result.Questions
}

func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
