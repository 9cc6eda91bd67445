// Package diversity filters generated pieces after the fact: it drops
// blacklisted boilerplate, near-duplicate statements, and pieces that
// would overdraw a source fragment or theme.
package diversity

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gobwas/glob"

	"github.com/adalundhe/mosaic/core/fragment"
)

// defaultBlacklist holds generic template phrases the generator tends
// to echo back instead of reasoning from actual fragments.
var defaultBlacklist = []string{
	"a sense of balance and harmony",
	"something that feels right",
	"an idea worth exploring",
	"a new perspective on the problem",
	"form follows function",
	"less is more",
}

// Config bounds one pipeline instance.
type Config struct {
	// SimilarityThreshold is the dedupe cutoff for trigram overlap and
	// short-text Jaccard similarity.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// MaxPerFragment caps accepted pieces attributable to one source
	// fragment. Pieces without a fragment reference are exempt.
	MaxPerFragment int `yaml:"max_per_fragment"`

	// MaxPerTheme caps accepted pieces sharing any single theme token.
	MaxPerTheme int `yaml:"max_per_theme"`

	// Blacklist adds exact normalized phrases to the built-in set.
	Blacklist []string `yaml:"blacklist"`

	// BlacklistPatterns adds glob patterns matched against normalized
	// text, e.g. "consider *" or "* worth exploring".
	BlacklistPatterns []string `yaml:"blacklist_patterns"`
}

// DefaultConfig returns the documented pipeline bounds.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.6,
		MaxPerFragment:      2,
		MaxPerTheme:         3,
	}
}

// Stats records per-stage survivor counts and a per-reason rejection
// breakdown. Diagnostic only.
type Stats struct {
	Input          int
	AfterBlacklist int
	AfterDedupe    int
	AfterQuota     int
	Accepted       int

	Reasons map[string]int

	// FallbackUsed reports that every piece was rejected and the
	// original batch was returned unfiltered. Callers needing strict
	// filtering must check it.
	FallbackUsed bool
}

const (
	reasonBlacklist     = "blacklist"
	reasonDuplicate     = "duplicate"
	reasonFragmentQuota = "fragment_quota"
	reasonThemeQuota    = "theme_quota"
)

// Pipeline applies the four filter stages in strict order. Safe for
// reuse across batches; not safe for concurrent use.
type Pipeline struct {
	cfg      Config
	phrases  map[string]struct{}
	patterns []glob.Glob
	index    *similarityIndex
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// NewPipeline creates a pipeline, compiling any blacklist patterns.
func NewPipeline(cfg Config, opts ...Option) (*Pipeline, error) {
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = DefaultConfig().SimilarityThreshold
	}
	if cfg.MaxPerFragment <= 0 {
		cfg.MaxPerFragment = DefaultConfig().MaxPerFragment
	}
	if cfg.MaxPerTheme <= 0 {
		cfg.MaxPerTheme = DefaultConfig().MaxPerTheme
	}

	phrases := make(map[string]struct{}, len(defaultBlacklist)+len(cfg.Blacklist))
	for _, phrase := range defaultBlacklist {
		phrases[normalizeText(phrase)] = struct{}{}
	}
	for _, phrase := range cfg.Blacklist {
		phrases[normalizeText(phrase)] = struct{}{}
	}

	patterns := make([]glob.Glob, 0, len(cfg.BlacklistPatterns))
	for _, pattern := range cfg.BlacklistPatterns {
		compiled, err := glob.Compile(normalizeText(pattern))
		if err != nil {
			return nil, fmt.Errorf("compiling blacklist pattern %q: %w", pattern, err)
		}
		patterns = append(patterns, compiled)
	}

	p := &Pipeline{
		cfg:      cfg,
		phrases:  phrases,
		patterns: patterns,
		index:    newSimilarityIndex(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p, nil
}

// Apply runs the stages in order: blacklist, dedupe, per-fragment
// quota, per-theme quota. The usage maps carry counts accepted earlier
// in the session (nil means none) and are not mutated. If every piece
// is rejected the original batch is returned with FallbackUsed set.
func (p *Pipeline) Apply(pieces []*fragment.Piece, fragmentUsage, themeUsage map[string]int) ([]*fragment.Piece, *Stats) {
	stats := &Stats{
		Input:   len(pieces),
		Reasons: make(map[string]int),
	}

	survivors := p.filterBlacklist(pieces, stats)
	stats.AfterBlacklist = len(survivors)

	survivors = p.dedupe(survivors, stats)
	stats.AfterDedupe = len(survivors)

	survivors = p.enforceQuotas(survivors, fragmentUsage, themeUsage, stats)
	stats.AfterQuota = len(survivors)

	if len(survivors) == 0 && len(pieces) > 0 {
		// Availability over strictness: an empty generation is worse
		// than an unfiltered one.
		p.logger.Warn("diversity pipeline rejected entire batch, returning unfiltered",
			"input", stats.Input,
			"reasons", stats.Reasons)
		stats.FallbackUsed = true
		stats.Accepted = len(pieces)
		return pieces, stats
	}

	stats.Accepted = len(survivors)
	return survivors, stats
}

func (p *Pipeline) filterBlacklist(pieces []*fragment.Piece, stats *Stats) []*fragment.Piece {
	out := make([]*fragment.Piece, 0, len(pieces))

	for _, piece := range pieces {
		normalized := normalizeText(piece.Statement)
		if p.blacklisted(normalized) {
			stats.Reasons[reasonBlacklist]++
			p.logger.Debug("piece rejected by blacklist", "piece", piece.ID)
			continue
		}
		out = append(out, piece)
	}

	return out
}

func (p *Pipeline) blacklisted(normalized string) bool {
	if _, ok := p.phrases[normalized]; ok {
		return true
	}
	for _, pattern := range p.patterns {
		if pattern.Match(normalized) {
			return true
		}
	}
	return false
}

// dedupe keeps the first occurrence in presentation order and drops
// later pieces whose similarity to any kept piece reaches the
// threshold.
func (p *Pipeline) dedupe(pieces []*fragment.Piece, stats *Stats) []*fragment.Piece {
	out := make([]*fragment.Piece, 0, len(pieces))
	kept := make([]string, 0, len(pieces))

	for _, piece := range pieces {
		normalized := normalizeText(piece.Statement)

		duplicate := false
		for _, prior := range kept {
			if p.index.similarity(normalized, prior) >= p.cfg.SimilarityThreshold {
				duplicate = true
				break
			}
		}
		if duplicate {
			stats.Reasons[reasonDuplicate]++
			p.logger.Debug("piece rejected as near-duplicate", "piece", piece.ID)
			continue
		}

		kept = append(kept, normalized)
		out = append(out, piece)
	}

	return out
}

func (p *Pipeline) enforceQuotas(pieces []*fragment.Piece, fragmentUsage, themeUsage map[string]int, stats *Stats) []*fragment.Piece {
	fragCounts := make(map[string]int, len(fragmentUsage))
	for id, n := range fragmentUsage {
		fragCounts[id] = n
	}
	themeCounts := make(map[string]int, len(themeUsage))
	for theme, n := range themeUsage {
		themeCounts[theme] = n
	}

	out := make([]*fragment.Piece, 0, len(pieces))

	for _, piece := range pieces {
		if piece.FragmentID != "" && fragCounts[piece.FragmentID] >= p.cfg.MaxPerFragment {
			stats.Reasons[reasonFragmentQuota]++
			p.logger.Debug("piece rejected by fragment quota",
				"piece", piece.ID,
				"fragment", piece.FragmentID)
			continue
		}

		themes := themeTokens(piece.Statement)
		overdrawn := false
		for _, theme := range themes {
			if themeCounts[theme] >= p.cfg.MaxPerTheme {
				overdrawn = true
				break
			}
		}
		if overdrawn {
			stats.Reasons[reasonThemeQuota]++
			p.logger.Debug("piece rejected by theme quota", "piece", piece.ID)
			continue
		}

		if piece.FragmentID != "" {
			fragCounts[piece.FragmentID]++
		}
		for _, theme := range themes {
			themeCounts[theme]++
		}
		out = append(out, piece)
	}

	return out
}

// themeTokens extracts the words of 4+ characters that stand in for a
// piece's theme signature.
func themeTokens(text string) []string {
	words := make([]string, 0, 8)
	seen := make(map[string]struct{})
	for _, word := range strings.Fields(normalizeText(text)) {
		if len(word) < 4 {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		words = append(words, word)
	}
	return words
}
