// Package features maintains the per-fragment extracted-feature store:
// lazy extraction through the generation gateway, TTL and
// dirty-on-update invalidation, and bounded size with oldest-updated
// eviction.
package features

import (
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusStale    Status = "stale"
)

// ExtractedFeatures is everything the pipeline derives from one
// fragment.
type ExtractedFeatures struct {
	FragmentID string   `json:"fragment_id"`
	Keywords   []string `json:"keywords"`
	Themes     []string `json:"themes,omitempty"`
	Sentiment  string   `json:"sentiment,omitempty"`

	// Image-only fields.
	Palette []string `json:"palette,omitempty"`
	Objects []string `json:"objects,omitempty"`

	// Insight is one grounded observation sentence about the fragment.
	Insight string `json:"insight,omitempty"`

	// Summary is the combined-keyword summary used in prompts.
	Summary string `json:"summary,omitempty"`

	Status Status `json:"status"`

	// FragmentUpdatedAt records the fragment timestamp the features were
	// computed against; a newer fragment invalidates the entry.
	FragmentUpdatedAt time.Time `json:"fragment_updated_at"`

	// ExtractedAt is when extraction completed.
	ExtractedAt time.Time `json:"extracted_at"`

	// UseCount tracks how many times this fragment has been used as
	// generation source material. Feeds novelty scoring.
	UseCount int `json:"use_count"`
}

// Clone returns a deep copy so callers cannot mutate cached state.
func (f *ExtractedFeatures) Clone() *ExtractedFeatures {
	if f == nil {
		return nil
	}
	out := *f
	out.Keywords = append([]string(nil), f.Keywords...)
	out.Themes = append([]string(nil), f.Themes...)
	out.Palette = append([]string(nil), f.Palette...)
	out.Objects = append([]string(nil), f.Objects...)
	return &out
}
