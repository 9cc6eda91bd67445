// Package fragment defines the shared domain types for the generation
// pipeline: user-contributed fragments, generated puzzle pieces, and the
// enums that classify them.
package fragment

import (
	"time"
)

// Kind identifies the content type of a fragment.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Mode is one of the four thematic generation quadrants.
type Mode string

const (
	ModeForm       Mode = "form"
	ModeMotion     Mode = "motion"
	ModeExpression Mode = "expression"
	ModeFunction   Mode = "function"
)

// AllModes returns the quadrants in canonical presentation order.
func AllModes() []Mode {
	return []Mode{ModeForm, ModeMotion, ModeExpression, ModeFunction}
}

// IntentType is the generation goal for a session.
type IntentType string

const (
	IntentClarify IntentType = "clarify"
	IntentExpand  IntentType = "expand"
	IntentRefine  IntentType = "refine"
)

// Fragment is an atomic user-contributed unit placed on the canvas.
// The pipeline treats fragments as read-only; edits arrive as whole
// replacement records with a bumped UpdatedAt.
type Fragment struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Content   string    `json:"content"`
	Title     string    `json:"title,omitempty"`
	Summary   string    `json:"summary,omitempty"`
	Tags      []string  `json:"tags,omitempty"`
	ImageRef  string    `json:"image_ref,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsImage reports whether the fragment carries image content.
func (f *Fragment) IsImage() bool {
	return f.Kind == KindImage
}

// Text returns the best textual representation for lexical scoring:
// content for text fragments, title plus summary for images.
func (f *Fragment) Text() string {
	if f.Kind == KindText {
		return f.Content
	}
	if f.Title != "" && f.Summary != "" {
		return f.Title + " " + f.Summary
	}
	if f.Summary != "" {
		return f.Summary
	}
	return f.Title
}

// Piece is a short generated statement attributed (optionally) to a
// source fragment. Terminal state is accepted into a session pool or
// rejected by the diversity pipeline.
type Piece struct {
	ID              string `json:"id"`
	Mode            Mode   `json:"mode"`
	Statement       string `json:"statement"`
	Priority        int    `json:"priority"`
	FragmentID      string `json:"fragment_id,omitempty"`
	FragmentSummary string `json:"fragment_summary,omitempty"`
	ImageRef        string `json:"image_ref,omitempty"`
}

// Outcome is a user interaction recorded against a suggested piece.
type Outcome string

const (
	OutcomeSuggested Outcome = "suggested"
	OutcomePlaced    Outcome = "placed"
	OutcomeEdited    Outcome = "edited"
	OutcomeDiscarded Outcome = "discarded"
	OutcomeConnected Outcome = "connected"
)
