package session

import (
	"fmt"
	"strings"

	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/ranking"
)

// focalQuestionSystemPrompt frames the deep-tier focal question call.
const focalQuestionSystemPrompt = `You help a designer frame a creative ideation session.
Given their stated intent, produce a single open-ended focal question that the
session's generated material should answer. The question must be specific to the
intent, answerable from multiple angles, and free of jargon.`

// quadrantSystemPrompt frames every quadrant-generation call.
const quadrantSystemPrompt = `You generate short candidate statements for one quadrant of a
creative ideation board. Each statement must be grounded in the source material
provided, stand on its own, and avoid generic filler. Respond only with JSON.`

// quadrantFraming gives each quadrant its generation angle.
var quadrantFraming = map[fragment.Mode]string{
	fragment.ModeForm:       "physical form: shape, structure, texture, and material qualities",
	fragment.ModeMotion:     "motion: movement, rhythm, pacing, and change over time",
	fragment.ModeExpression: "expression: mood, emotion, tone, and atmosphere",
	fragment.ModeFunction:   "function: purpose, use, audience, and practical constraints",
}

// intentFraming adapts prompts to the session's goal.
var intentFraming = map[fragment.IntentType]string{
	fragment.IntentClarify: "Sharpen what is already implicit in the material.",
	fragment.IntentExpand:  "Push beyond the material into adjacent territory.",
	fragment.IntentRefine:  "Narrow and strengthen the strongest existing direction.",
}

// fallbackFocalQuestion frames a session without backend help.
func fallbackFocalQuestion(intent string, intentType fragment.IntentType) string {
	intent = strings.TrimSpace(intent)
	if intent == "" {
		intent = "this project"
	}

	switch intentType {
	case fragment.IntentClarify:
		return fmt.Sprintf("What is the essential quality of %s?", intent)
	case fragment.IntentExpand:
		return fmt.Sprintf("Where else could %s lead?", intent)
	case fragment.IntentRefine:
		return fmt.Sprintf("What should %s become when reduced to its strongest form?", intent)
	default:
		return fmt.Sprintf("What matters most about %s?", intent)
	}
}

func buildFocalQuestionPrompt(intent string, intentType fragment.IntentType) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Intent: %s\n", intent)
	if framing, ok := intentFraming[intentType]; ok {
		fmt.Fprintf(&sb, "Session goal: %s\n", framing)
	}
	sb.WriteString("\nRespond as JSON: {\"question\": \"...\"}")
	return sb.String()
}

// buildQuadrantPrompt grounds one quadrant call in the ranked
// candidates selected for it. A quadrant with no candidates falls back
// to its default theme so generation still has a direction.
func buildQuadrantPrompt(mode fragment.Mode, focalQuestion string, intentType fragment.IntentType, candidates []*ranking.RankedCandidate, count int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Focal question: %s\n", focalQuestion)
	fmt.Fprintf(&sb, "Quadrant: %s\n", quadrantFraming[mode])
	if framing, ok := intentFraming[intentType]; ok {
		fmt.Fprintf(&sb, "Session goal: %s\n", framing)
	}

	if len(candidates) == 0 {
		fmt.Fprintf(&sb, "\nNo source material was selected; lean on the theme %q.\n",
			ranking.FallbackTheme(mode))
	} else {
		sb.WriteString("\nSource material:\n")
		for _, candidate := range candidates {
			frag := candidate.Fragment
			fmt.Fprintf(&sb, "- id=%s %s\n", frag.ID, excerpt(frag.Text(), 200))
		}
	}

	fmt.Fprintf(&sb,
		"\nGenerate %d distinct statements for this quadrant. Respond as JSON:\n"+
			`{"pieces": [{"statement": "...", "priority": 1, "fragment_id": "id or empty"}]}`,
		count)

	return sb.String()
}

func excerpt(text string, limit int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
