package diversity

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// shortTextWords is the word count at or below which character n-grams
// become unreliable and word-level Jaccard takes over.
const shortTextWords = 3

// trigramCacheSize bounds the normalized-text trigram cache. Sessions
// replenish quadrants repeatedly, so the same surviving statements get
// recompared across batches.
const trigramCacheSize = 512

// similarityIndex memoizes trigram sets keyed by normalized text.
type similarityIndex struct {
	cache *lru.Cache[string, map[string]struct{}]
}

func newSimilarityIndex() *similarityIndex {
	cache, err := lru.New[string, map[string]struct{}](trigramCacheSize)
	if err != nil {
		// Only reachable with a non-positive size constant.
		panic(err)
	}
	return &similarityIndex{cache: cache}
}

// similarity returns a 0..1 lexical similarity between two normalized
// texts: exact match scores 1.0, short texts compare by word Jaccard,
// everything else by character 3-gram overlap ratio against the
// smaller gram set.
func (s *similarityIndex) similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}

	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) <= shortTextWords || len(wordsB) <= shortTextWords {
		return jaccard(wordsA, wordsB)
	}

	gramsA := s.trigrams(a)
	gramsB := s.trigrams(b)
	if len(gramsA) == 0 || len(gramsB) == 0 {
		return 0
	}

	shared := 0
	for gram := range gramsA {
		if _, ok := gramsB[gram]; ok {
			shared++
		}
	}

	smaller := len(gramsA)
	if len(gramsB) < smaller {
		smaller = len(gramsB)
	}
	return float64(shared) / float64(smaller)
}

func (s *similarityIndex) trigrams(text string) map[string]struct{} {
	if grams, ok := s.cache.Get(text); ok {
		return grams
	}

	grams := make(map[string]struct{}, len(text))
	for i := 0; i+3 <= len(text); i++ {
		grams[text[i:i+3]] = struct{}{}
	}
	s.cache.Add(text, grams)
	return grams
}

func jaccard(wordsA, wordsB []string) float64 {
	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}
	setB := make(map[string]struct{}, len(wordsB))
	for _, w := range wordsB {
		setB[w] = struct{}{}
	}

	shared := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			shared++
		}
	}

	union := len(setA) + len(setB) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

// normalizeText lowercases, strips everything outside [a-z0-9 ], and
// collapses whitespace runs to single spaces.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
