package preference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/mosaic/core/fragment"
)

func outcome(mode fragment.Mode, kind fragment.Outcome, themes ...string) Outcome {
	return Outcome{
		SessionID: "s1",
		PieceID:   "p1",
		Intent:    fragment.IntentClarify,
		Mode:      mode,
		Outcome:   kind,
		Themes:    themes,
	}
}

func weightSum(w Weights) float64 {
	return w.Diversity + w.Novelty + w.OpenEnded + w.ThemeReinforce
}

func TestHints_EmptySessionGetsBaselines(t *testing.T) {
	store := NewStore()

	hints := store.Hints("fresh")

	assert.Equal(t, baselineWeights(), hints.Weights)
	assert.Empty(t, hints.PreferredThemes)
	assert.Empty(t, hints.AvoidedThemes)
	assert.Empty(t, hints.PreferredQuadrants)
}

func TestRecordOutcome_WeightsAlwaysNormalized(t *testing.T) {
	store := NewStore()

	sequence := []fragment.Outcome{
		fragment.OutcomeSuggested,
		fragment.OutcomePlaced,
		fragment.OutcomeDiscarded,
		fragment.OutcomeEdited,
		fragment.OutcomeConnected,
		fragment.OutcomeDiscarded,
	}
	for _, kind := range sequence {
		store.RecordOutcome(outcome(fragment.ModeForm, kind, "warmth"))
		assert.InDelta(t, 1.0, weightSum(store.Weights("s1")), 1e-9)
	}
}

func TestRecordOutcome_HighDiscardRateBoostsDiversityAndNovelty(t *testing.T) {
	store := NewStore()

	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomeDiscarded))

	w := store.Weights("s1")
	// (0.45, 0.30, 0.20, 0.30) renormalized.
	assert.InDelta(t, 0.36, w.Diversity, 1e-9)
	assert.InDelta(t, 0.24, w.Novelty, 1e-9)
	assert.InDelta(t, 0.16, w.OpenEnded, 1e-9)
	assert.InDelta(t, 0.24, w.ThemeReinforce, 1e-9)
}

func TestRecordOutcome_HighAcceptRateBoostsThemeReinforce(t *testing.T) {
	store := NewStore()

	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomePlaced))
	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomeConnected))

	w := store.Weights("s1")
	assert.InDelta(t, 0.45/1.15, w.ThemeReinforce, 1e-9)
	assert.InDelta(t, 1.0, weightSum(w), 1e-9)
}

func TestRecordOutcome_HighEditRateBoostsOpenEnded(t *testing.T) {
	store := NewStore()

	store.RecordOutcome(outcome(fragment.ModeMotion, fragment.OutcomeEdited))

	w := store.Weights("s1")
	assert.InDelta(t, 0.4/1.2, w.OpenEnded, 1e-9)
}

func TestRecordOutcome_SuggestedCarriesNoSignal(t *testing.T) {
	store := NewStore()

	for i := 0; i < 5; i++ {
		store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomeSuggested, "warmth"))
	}

	hints := store.Hints("s1")
	assert.Equal(t, baselineWeights(), hints.Weights)
	assert.Empty(t, hints.PreferredThemes)
}

func TestHints_ThemesRequireTwoSamples(t *testing.T) {
	store := NewStore()

	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomePlaced, "warmth"))
	assert.Empty(t, store.Hints("s1").PreferredThemes, "one sample is no opinion")

	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomePlaced, "warmth"))
	assert.Equal(t, []string{"warmth"}, store.Hints("s1").PreferredThemes)
}

func TestHints_AvoidedThemes(t *testing.T) {
	store := NewStore()

	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomeDiscarded, "chaos"))
	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomeDiscarded, "chaos"))

	hints := store.Hints("s1")
	assert.Equal(t, []string{"chaos"}, hints.AvoidedThemes)
	assert.Empty(t, hints.PreferredThemes)
}

func TestHints_PreferredQuadrants(t *testing.T) {
	store := NewStore()

	store.RecordOutcome(outcome(fragment.ModeExpression, fragment.OutcomePlaced))
	store.RecordOutcome(outcome(fragment.ModeExpression, fragment.OutcomeConnected))
	store.RecordOutcome(outcome(fragment.ModeFunction, fragment.OutcomeDiscarded))
	store.RecordOutcome(outcome(fragment.ModeFunction, fragment.OutcomeDiscarded))

	hints := store.Hints("s1")
	require.Len(t, hints.PreferredQuadrants, 1)
	assert.Equal(t, fragment.ModeExpression, hints.PreferredQuadrants[0])
}

func TestReset_DiscardsProfile(t *testing.T) {
	store := NewStore()

	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomeDiscarded, "chaos"))
	store.Reset("s1")

	hints := store.Hints("s1")
	assert.Equal(t, baselineWeights(), hints.Weights)
	assert.Empty(t, hints.AvoidedThemes)
}

func TestSessionsAreIsolated(t *testing.T) {
	store := NewStore()

	store.RecordOutcome(outcome(fragment.ModeForm, fragment.OutcomeDiscarded))

	other := store.Weights("s2")
	assert.Equal(t, baselineWeights(), other)
}
