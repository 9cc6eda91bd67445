// Package preference aggregates user outcomes per quadrant and theme
// and recomputes the adaptive sampling weights that feed back into
// ranking and prompting.
package preference

import (
	"log/slog"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/adalundhe/mosaic/core/fragment"
)

// Baseline weights. Adjustments are applied on top and the result is
// renormalized to sum to 1.
const (
	baseDiversity      = 0.3
	baseNovelty        = 0.2
	baseOpenEnded      = 0.2
	baseThemeReinforce = 0.3

	discardRateThreshold = 0.3
	editRateThreshold    = 0.4
	acceptRateThreshold  = 0.6

	// avoidedThemeThreshold is deliberately higher than the discard
	// threshold that nudges weights: avoiding a theme outright needs
	// stronger evidence.
	avoidedThemeThreshold = 0.5

	// minSamples is the floor below which a theme or quadrant yields no
	// opinion rather than a default judgment.
	minSamples = 2
)

// Weights are the four adaptive sampling weights, always normalized to
// sum to 1.
type Weights struct {
	Diversity      float64
	Novelty        float64
	OpenEnded      float64
	ThemeReinforce float64
}

func baselineWeights() Weights {
	return Weights{
		Diversity:      baseDiversity,
		Novelty:        baseNovelty,
		OpenEnded:      baseOpenEnded,
		ThemeReinforce: baseThemeReinforce,
	}
}

// outcomeCounts tallies the five outcome kinds for one key.
type outcomeCounts struct {
	Suggested int
	Placed    int
	Edited    int
	Discarded int
	Connected int
}

func (c *outcomeCounts) record(outcome fragment.Outcome) {
	switch outcome {
	case fragment.OutcomeSuggested:
		c.Suggested++
	case fragment.OutcomePlaced:
		c.Placed++
	case fragment.OutcomeEdited:
		c.Edited++
	case fragment.OutcomeDiscarded:
		c.Discarded++
	case fragment.OutcomeConnected:
		c.Connected++
	}
}

// responses counts outcomes where the user actually decided something;
// suggestions the user never touched carry no signal.
func (c *outcomeCounts) responses() int {
	return c.Placed + c.Edited + c.Discarded + c.Connected
}

func (c *outcomeCounts) acceptRate() float64 {
	if n := c.responses(); n > 0 {
		return float64(c.Placed+c.Connected) / float64(n)
	}
	return 0
}

func (c *outcomeCounts) editRate() float64 {
	if n := c.responses(); n > 0 {
		return float64(c.Edited) / float64(n)
	}
	return 0
}

func (c *outcomeCounts) discardRate() float64 {
	if n := c.responses(); n > 0 {
		return float64(c.Discarded) / float64(n)
	}
	return 0
}

// quadrantKey scopes counters to one (intent type, quadrant) pair.
type quadrantKey struct {
	Intent fragment.IntentType
	Mode   fragment.Mode
}

// Hints is the profile's advice to ranking and prompting.
type Hints struct {
	Weights            Weights
	PreferredThemes    []string
	AvoidedThemes      []string
	PreferredQuadrants []fragment.Mode
}

// Profile is one session's preference state. Created empty, mutated on
// every recorded outcome, never rolled back.
type Profile struct {
	quadrants map[quadrantKey]*outcomeCounts
	themes    map[string]*outcomeCounts
	weights   Weights
}

func newProfile() *Profile {
	return &Profile{
		quadrants: make(map[quadrantKey]*outcomeCounts),
		themes:    make(map[string]*outcomeCounts),
		weights:   baselineWeights(),
	}
}

// recompute rebuilds the four weights from baselines using the
// aggregate rates across all quadrant counters, then renormalizes.
func (p *Profile) recompute() {
	var total outcomeCounts
	for _, counts := range p.quadrants {
		total.Suggested += counts.Suggested
		total.Placed += counts.Placed
		total.Edited += counts.Edited
		total.Discarded += counts.Discarded
		total.Connected += counts.Connected
	}

	w := baselineWeights()
	if total.discardRate() > discardRateThreshold {
		w.Diversity += 0.15
		w.Novelty += 0.1
	}
	if total.editRate() > editRateThreshold {
		w.OpenEnded += 0.2
	}
	if total.acceptRate() > acceptRateThreshold {
		w.ThemeReinforce += 0.15
	}

	values := []float64{w.Diversity, w.Novelty, w.OpenEnded, w.ThemeReinforce}
	floats.Scale(1/floats.Sum(values), values)

	p.weights = Weights{
		Diversity:      values[0],
		Novelty:        values[1],
		OpenEnded:      values[2],
		ThemeReinforce: values[3],
	}
}

func (p *Profile) hints() *Hints {
	hints := &Hints{Weights: p.weights}

	themes := make([]string, 0, len(p.themes))
	for theme := range p.themes {
		themes = append(themes, theme)
	}
	sort.Strings(themes)

	for _, theme := range themes {
		counts := p.themes[theme]
		if counts.responses() < minSamples {
			continue
		}
		if counts.acceptRate() > acceptRateThreshold {
			hints.PreferredThemes = append(hints.PreferredThemes, theme)
		}
		if counts.discardRate() > avoidedThemeThreshold {
			hints.AvoidedThemes = append(hints.AvoidedThemes, theme)
		}
	}

	for _, mode := range fragment.AllModes() {
		var combined outcomeCounts
		for key, counts := range p.quadrants {
			if key.Mode != mode {
				continue
			}
			combined.Placed += counts.Placed
			combined.Edited += counts.Edited
			combined.Discarded += counts.Discarded
			combined.Connected += counts.Connected
		}
		if combined.responses() >= minSamples && combined.acceptRate() > acceptRateThreshold {
			hints.PreferredQuadrants = append(hints.PreferredQuadrants, mode)
		}
	}

	return hints
}

// Outcome is one recorded user decision about a generated piece.
type Outcome struct {
	SessionID  string
	PieceID    string
	FragmentID string
	Intent     fragment.IntentType
	Mode       fragment.Mode
	Outcome    fragment.Outcome
	Themes     []string
}

// Store holds per-session profiles. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	profiles map[string]*Profile
	logger   *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates an empty profile store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		profiles: make(map[string]*Profile),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecordOutcome updates the session's quadrant and theme counters and
// recomputes the adaptive weights.
func (s *Store) RecordOutcome(outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile := s.profileLocked(outcome.SessionID)

	key := quadrantKey{Intent: outcome.Intent, Mode: outcome.Mode}
	counts, ok := profile.quadrants[key]
	if !ok {
		counts = &outcomeCounts{}
		profile.quadrants[key] = counts
	}
	counts.record(outcome.Outcome)

	for _, theme := range outcome.Themes {
		tc, ok := profile.themes[theme]
		if !ok {
			tc = &outcomeCounts{}
			profile.themes[theme] = tc
		}
		tc.record(outcome.Outcome)
	}

	profile.recompute()

	s.logger.Debug("outcome recorded",
		"session", outcome.SessionID,
		"mode", outcome.Mode,
		"outcome", outcome.Outcome)
}

// Hints returns the session's current weights and theme/quadrant
// leanings. A session with no recorded outcomes gets the baselines.
func (s *Store) Hints(sessionID string) *Hints {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileLocked(sessionID).hints()
}

// Weights returns just the session's adaptive weights.
func (s *Store) Weights(sessionID string) Weights {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profileLocked(sessionID).weights
}

// Reset discards the session's profile.
func (s *Store) Reset(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, sessionID)
}

func (s *Store) profileLocked(sessionID string) *Profile {
	profile, ok := s.profiles[sessionID]
	if !ok {
		profile = newProfile()
		s.profiles[sessionID] = profile
	}
	return profile
}
