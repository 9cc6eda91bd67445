package features

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/adalundhe/mosaic/core/fragment"
)

// LocalExtractor is the offline fallback: frequency-based keyword
// extraction only. It never fabricates themes, sentiment, or palette —
// the cache should hold nothing the system cannot actually justify.
type LocalExtractor struct {
	maxKeywords int
}

// NewLocalExtractor creates the fallback extractor.
func NewLocalExtractor() *LocalExtractor {
	return &LocalExtractor{maxKeywords: 8}
}

// Extract derives keywords from word frequency over the fragment text
// and tags.
func (e *LocalExtractor) Extract(_ context.Context, frag *fragment.Fragment) (*ExtractedFeatures, error) {
	keywords := frequencyKeywords(frag.Text(), e.maxKeywords)

	// Tags are user-asserted signal; they always qualify.
	for _, tag := range frag.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && !contains(keywords, tag) {
			keywords = append(keywords, tag)
		}
	}

	feats := &ExtractedFeatures{
		FragmentID:        frag.ID,
		Keywords:          keywords,
		Status:            StatusComplete,
		FragmentUpdatedAt: frag.UpdatedAt,
		ExtractedAt:       time.Now(),
	}
	if len(keywords) > 0 {
		feats.Summary = strings.Join(capped(keywords, 5), ", ")
	}

	return feats, nil
}

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "this": {}, "with": {},
	"from": {}, "have": {}, "are": {}, "was": {}, "were": {}, "will": {},
	"would": {}, "could": {}, "should": {}, "about": {}, "into": {},
	"over": {}, "under": {}, "more": {}, "some": {}, "them": {}, "then": {},
	"than": {}, "when": {}, "what": {}, "where": {}, "which": {}, "there": {},
	"their": {}, "they": {}, "your": {}, "just": {}, "like": {}, "very": {},
	"also": {}, "been": {}, "being": {}, "because": {}, "these": {}, "those": {},
}

// frequencyKeywords ranks words of length >= 3 by occurrence count,
// ties broken by first appearance for deterministic output.
func frequencyKeywords(text string, max int) []string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)

	position := 0
	for _, word := range tokenize(text) {
		if len(word) < 3 {
			continue
		}
		if _, skip := stopwords[word]; skip {
			continue
		}
		if _, seen := counts[word]; !seen {
			firstSeen[word] = position
		}
		counts[word]++
		position++
	}

	words := make([]string, 0, len(counts))
	for word := range counts {
		words = append(words, word)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return firstSeen[words[i]] < firstSeen[words[j]]
	})

	if len(words) > max {
		words = words[:max]
	}
	return words
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
