package ranking

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/adalundhe/mosaic/core/features"
	"github.com/adalundhe/mosaic/core/fragment"
)

// noveltyDecay is the exponential decay rate applied per prior use:
// a never-used fragment scores 1.0, one prior use ~0.5, two ~0.25.
const noveltyDecay = 0.7

// Config bounds a ranking pass.
type Config struct {
	// TotalTarget is the global pool size filled after quadrant slots.
	TotalTarget int `yaml:"total_target"`

	// PerModeTarget is the number of slots per quadrant.
	PerModeTarget int `yaml:"per_mode_target"`

	// MaxTextPerMode / MaxImagePerMode cap fragment kinds per quadrant.
	MaxTextPerMode  int `yaml:"max_text_per_mode"`
	MaxImagePerMode int `yaml:"max_image_per_mode"`

	// MaxPerTag caps occurrences of any single tag across the whole
	// selection.
	MaxPerTag int `yaml:"max_per_tag"`

	// MaxPerFragment caps selections attributable to a single fragment.
	MaxPerFragment int `yaml:"max_per_fragment"`
}

// DefaultConfig returns the documented selection bounds.
func DefaultConfig() Config {
	return Config{
		TotalTarget:     8,
		PerModeTarget:   3,
		MaxTextPerMode:  2,
		MaxImagePerMode: 1,
		MaxPerTag:       2,
		MaxPerFragment:  2,
	}
}

// Weights carries the preference-profile influence on scoring. The
// diversity and novelty weights scale their sub-scores; the
// theme-reinforce weight scales preferred/avoided theme adjustments.
type Weights struct {
	Diversity       float64
	Novelty         float64
	ThemeReinforce  float64
	PreferredThemes []string
	AvoidedThemes   []string
}

// DefaultWeights returns the baseline profile weights.
func DefaultWeights() Weights {
	return Weights{
		Diversity:      0.3,
		Novelty:        0.2,
		ThemeReinforce: 0.3,
	}
}

// RankedCandidate is one scored fragment in a selection. Transient:
// produced per ranking call, never persisted.
type RankedCandidate struct {
	Fragment  *fragment.Fragment
	Relevance float64
	Diversity float64
	Novelty   float64
	Total     float64
	Reasons   []string
}

// Selection is the output of one ranking pass.
type Selection struct {
	Global  []*RankedCandidate
	PerMode map[fragment.Mode][]*RankedCandidate
}

// FeatureSource provides cached features without triggering
// extraction. *features.Cache satisfies it.
type FeatureSource interface {
	GetCached(id string) (*features.ExtractedFeatures, bool)
}

// Ranker scores and selects fragments. Scoring is fully deterministic:
// identical inputs and weights reproduce the same selection.
type Ranker struct {
	cfg     Config
	source  FeatureSource
	weights Weights
}

// New creates a ranker over a feature source.
func New(cfg Config, source FeatureSource) *Ranker {
	if cfg.PerModeTarget <= 0 {
		cfg.PerModeTarget = DefaultConfig().PerModeTarget
	}
	if cfg.TotalTarget <= 0 {
		cfg.TotalTarget = DefaultConfig().TotalTarget
	}
	if cfg.MaxPerTag <= 0 {
		cfg.MaxPerTag = DefaultConfig().MaxPerTag
	}
	if cfg.MaxPerFragment <= 0 {
		cfg.MaxPerFragment = DefaultConfig().MaxPerFragment
	}
	if cfg.MaxTextPerMode <= 0 {
		cfg.MaxTextPerMode = DefaultConfig().MaxTextPerMode
	}
	if cfg.MaxImagePerMode <= 0 {
		cfg.MaxImagePerMode = DefaultConfig().MaxImagePerMode
	}

	return &Ranker{
		cfg:     cfg,
		source:  source,
		weights: DefaultWeights(),
	}
}

// SetWeights applies updated preference-profile weights for subsequent
// ranking passes.
func (r *Ranker) SetWeights(w Weights) {
	r.weights = w
}

// candidate carries precomputed per-fragment scoring inputs.
type candidate struct {
	index     int
	frag      *fragment.Fragment
	tokens    []string
	signature []string // tags + themes, the diversity fingerprint
	baseRel   float64
	novelty   float64
	reasons   []string
}

// selectionState tracks quota consumption across the whole pass.
type selectionState struct {
	tagCounts  map[string]int
	fragCounts map[string]int
}

// RankAndSelect scores every fragment against the intent and fills
// per-quadrant slots first, then the global pool, skipping candidates
// whose tag or fragment caps are exhausted.
func (r *Ranker) RankAndSelect(fragments []*fragment.Fragment, intent string) *Selection {
	intentTokens := tokenSet(tokenize(intent))
	candidates := r.buildCandidates(fragments, intentTokens)

	state := &selectionState{
		tagCounts:  make(map[string]int),
		fragCounts: make(map[string]int),
	}

	selection := &Selection{
		PerMode: make(map[fragment.Mode][]*RankedCandidate, 4),
	}

	for _, mode := range fragment.AllModes() {
		selection.PerMode[mode] = r.selectForMode(candidates, mode, state)
	}

	selection.Global = r.selectGlobal(candidates, state)

	return selection
}

func (r *Ranker) buildCandidates(fragments []*fragment.Fragment, intentTokens map[string]struct{}) []*candidate {
	candidates := make([]*candidate, 0, len(fragments))

	for i, frag := range fragments {
		tokens := tokenize(frag.Text())
		for _, tag := range frag.Tags {
			tokens = append(tokens, tokenize(tag)...)
		}

		var signature []string
		signature = append(signature, normalizeAll(frag.Tags)...)

		uses := 0
		if feats, ok := r.source.GetCached(frag.ID); ok {
			tokens = append(tokens, normalizeAll(feats.Keywords)...)
			signature = append(signature, normalizeAll(feats.Themes)...)
			uses = feats.UseCount
		}

		c := &candidate{
			index:     i,
			frag:      frag,
			tokens:    tokens,
			signature: dedupe(signature),
			novelty:   NoveltyScore(uses),
		}
		c.baseRel = r.relevance(intentTokens, c)
		if uses == 0 {
			c.reasons = append(c.reasons, "unused fragment")
		}

		candidates = append(candidates, c)
	}

	return candidates
}

// relevance is the lexical overlap between intent and fragment tokens,
// adjusted by preferred/avoided themes scaled by the theme-reinforce
// weight.
func (r *Ranker) relevance(intentTokens map[string]struct{}, c *candidate) float64 {
	var score float64
	seen := make(map[string]struct{})
	for _, token := range c.tokens {
		if len(token) < 3 {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if _, hit := intentTokens[token]; hit {
			score++
		}
	}
	if score > 0 {
		c.reasons = append(c.reasons, fmt.Sprintf("%d terms shared with intent", int(score)))
	}

	for _, theme := range c.signature {
		if containsStr(r.weights.PreferredThemes, theme) {
			score += r.weights.ThemeReinforce
		}
		if containsStr(r.weights.AvoidedThemes, theme) {
			score -= r.weights.ThemeReinforce
		}
	}

	return score
}

// NoveltyScore decays exponentially in prior usage count.
func NoveltyScore(priorUses int) float64 {
	if priorUses <= 0 {
		return 1.0
	}
	return math.Exp(-noveltyDecay * float64(priorUses))
}

// diversity measures how much of the candidate's tag/theme signature is
// unseen among already-selected items. Greedy and order-dependent by
// design. An empty signature scores full diversity.
func diversity(c *candidate, state *selectionState) float64 {
	if len(c.signature) == 0 {
		return 1.0
	}

	unseen := 0
	for _, sig := range c.signature {
		if state.tagCounts[sig] == 0 {
			unseen++
		}
	}
	return float64(unseen) / float64(len(c.signature))
}

func (r *Ranker) total(rel, div, nov float64) float64 {
	return rel + 2*r.weights.Diversity*div + 2*r.weights.Novelty*nov
}

// modeCapTracker tracks per-quadrant text/image slots.
type modeCapTracker struct {
	text, image int
}

func (r *Ranker) selectForMode(candidates []*candidate, mode fragment.Mode, state *selectionState) []*RankedCandidate {
	caps := &modeCapTracker{}
	picked := make(map[int]bool)
	picks := make([]*RankedCandidate, 0, r.cfg.PerModeTarget)

	for len(picks) < r.cfg.PerModeTarget {
		best := r.pickBest(candidates, state, picked, func(c *candidate) (float64, bool) {
			if c.frag.IsImage() {
				if caps.image >= r.cfg.MaxImagePerMode {
					return 0, false
				}
			} else if caps.text >= r.cfg.MaxTextPerMode {
				return 0, false
			}
			return c.baseRel + modeBoost(mode, c.tokens) + modeImageBonus(mode, c.frag), true
		})
		if best == nil {
			break
		}

		if best.cand.frag.IsImage() {
			caps.image++
		} else {
			caps.text++
		}
		r.commit(best, state, picked)
		picks = append(picks, best.ranked)
	}

	return picks
}

func (r *Ranker) selectGlobal(candidates []*candidate, state *selectionState) []*RankedCandidate {
	picked := make(map[int]bool)
	picks := make([]*RankedCandidate, 0, r.cfg.TotalTarget)

	for len(picks) < r.cfg.TotalTarget {
		best := r.pickBest(candidates, state, picked, func(c *candidate) (float64, bool) {
			return c.baseRel, true
		})
		if best == nil {
			break
		}
		r.commit(best, state, picked)
		picks = append(picks, best.ranked)
	}

	return picks
}

type pick struct {
	cand   *candidate
	ranked *RankedCandidate
}

// pickBest scans remaining eligible candidates in index order and
// returns the highest-total one; ties keep the earliest index so
// repeated runs reproduce the same selection. picked excludes
// candidates already chosen for the list being filled; reuse across
// lists is bounded by the per-fragment cap instead.
func (r *Ranker) pickBest(candidates []*candidate, state *selectionState, picked map[int]bool, relevanceOf func(*candidate) (float64, bool)) *pick {
	var best *pick

	for _, c := range candidates {
		if picked[c.index] {
			continue
		}
		if !r.eligible(c, state) {
			continue
		}

		rel, ok := relevanceOf(c)
		if !ok {
			continue
		}

		div := diversity(c, state)
		total := r.total(rel, div, c.novelty)

		if best == nil || total > best.ranked.Total {
			best = &pick{
				cand: c,
				ranked: &RankedCandidate{
					Fragment:  c.frag,
					Relevance: rel,
					Diversity: div,
					Novelty:   c.novelty,
					Total:     total,
					Reasons:   append([]string(nil), c.reasons...),
				},
			}
		}
	}

	return best
}

// eligible checks the cross-selection quotas: a candidate whose caps
// are exhausted is skipped in favor of the next-highest-scoring one.
func (r *Ranker) eligible(c *candidate, state *selectionState) bool {
	if state.fragCounts[c.frag.ID] >= r.cfg.MaxPerFragment {
		return false
	}
	for _, tag := range normalizeAll(c.frag.Tags) {
		if state.tagCounts[tag] >= r.cfg.MaxPerTag {
			return false
		}
	}
	return true
}

func (r *Ranker) commit(p *pick, state *selectionState, picked map[int]bool) {
	picked[p.cand.index] = true
	state.fragCounts[p.cand.frag.ID]++
	for _, tag := range normalizeAll(p.cand.frag.Tags) {
		state.tagCounts[tag]++
	}
}

// RankByMode scores all fragments for one quadrant and returns them
// sorted descending by score, zero-score fragments excluded, ties kept
// in original order. Used by the context collector's relevance index.
func RankByMode(fragments []*fragment.Fragment, source FeatureSource, mode fragment.Mode) []*RankedCandidate {
	out := make([]*RankedCandidate, 0, len(fragments))

	for _, frag := range fragments {
		tokens := tokenize(frag.Text())
		for _, tag := range frag.Tags {
			tokens = append(tokens, tokenize(tag)...)
		}
		if feats, ok := source.GetCached(frag.ID); ok {
			tokens = append(tokens, normalizeAll(feats.Keywords)...)
		}

		score := modeBoost(mode, dedupe(tokens)) + modeImageBonus(mode, frag)
		if score <= 0 {
			continue
		}
		out = append(out, &RankedCandidate{
			Fragment:  frag,
			Relevance: score,
			Total:     score,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total > out[j].Total
	})
	return out
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return set
}

func normalizeAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func containsStr(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}
