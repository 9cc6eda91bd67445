// Package ranking scores fragments for relevance, diversity, and
// novelty against a target intent and selects bounded, quota-respecting
// subsets globally and per quadrant.
package ranking

import (
	"github.com/adalundhe/mosaic/core/fragment"
)

const (
	primaryTermPoints   = 3.0
	secondaryTermPoints = 1.0

	// imageBonus is added to image fragments on visually-weighted
	// quadrants.
	imageBonus = 2.0
)

// modeVocabulary defines a quadrant's relevance vocabulary.
type modeVocabulary struct {
	primary       map[string]struct{}
	secondary     map[string]struct{}
	visual        bool
	fallbackTheme string
}

var modeVocabularies = map[fragment.Mode]modeVocabulary{
	fragment.ModeForm: {
		primary: termSet(
			"shape", "structure", "texture", "material", "form",
			"geometry", "surface", "composition",
		),
		secondary: termSet(
			"line", "edge", "contour", "pattern", "grid", "balance",
			"weight", "proportion", "symmetry", "layout",
		),
		visual:        true,
		fallbackTheme: "form and structure",
	},
	fragment.ModeMotion: {
		primary: termSet(
			"motion", "movement", "rhythm", "flow", "speed", "dynamic",
			"transition",
		),
		secondary: termSet(
			"pulse", "wave", "drift", "bounce", "tempo", "energy",
			"gesture", "momentum", "pace", "cycle",
		),
		fallbackTheme: "motion and rhythm",
	},
	fragment.ModeExpression: {
		primary: termSet(
			"mood", "emotion", "feeling", "tone", "expression",
			"atmosphere", "character",
		),
		secondary: termSet(
			"warm", "warmth", "cold", "calm", "bold", "playful", "serene",
			"tension", "nostalgia", "intimate", "quiet", "loud",
		),
		visual:        true,
		fallbackTheme: "mood and expression",
	},
	fragment.ModeFunction: {
		primary: termSet(
			"function", "purpose", "use", "utility", "goal", "task",
			"behavior",
		),
		secondary: termSet(
			"tool", "need", "problem", "solution", "workflow",
			"practical", "intent", "audience", "context", "constraint",
		),
		fallbackTheme: "purpose and function",
	},
}

func termSet(terms ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// modeBoost scores a token set against a quadrant's vocabulary:
// primary terms are worth 3 points, secondary terms 1.
func modeBoost(mode fragment.Mode, tokens []string) float64 {
	vocab, ok := modeVocabularies[mode]
	if !ok {
		return 0
	}

	var boost float64
	for _, token := range tokens {
		if _, hit := vocab.primary[token]; hit {
			boost += primaryTermPoints
			continue
		}
		if _, hit := vocab.secondary[token]; hit {
			boost += secondaryTermPoints
		}
	}
	return boost
}

// modeImageBonus returns the fixed additive bonus image fragments get
// on visually-weighted quadrants.
func modeImageBonus(mode fragment.Mode, frag *fragment.Fragment) float64 {
	if !frag.IsImage() {
		return 0
	}
	if vocab, ok := modeVocabularies[mode]; ok && vocab.visual {
		return imageBonus
	}
	return 0
}

// FallbackTheme names a quadrant's default theme for prompting when no
// fragment grounds it.
func FallbackTheme(mode fragment.Mode) string {
	if vocab, ok := modeVocabularies[mode]; ok {
		return vocab.fallbackTheme
	}
	return string(mode)
}
