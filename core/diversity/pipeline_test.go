package diversity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/mosaic/core/fragment"
)

func piece(id, statement string) *fragment.Piece {
	return &fragment.Piece{
		ID:        id,
		Mode:      fragment.ModeExpression,
		Statement: statement,
		Priority:  1,
	}
}

func sourcedPiece(id, statement, fragmentID string) *fragment.Piece {
	p := piece(id, statement)
	p.FragmentID = fragmentID
	return p
}

func newTestPipeline(t *testing.T, cfg Config) *Pipeline {
	t.Helper()
	p, err := NewPipeline(cfg)
	require.NoError(t, err)
	return p
}

func TestApply_BlacklistRejectsTemplatePhrases(t *testing.T) {
	p := newTestPipeline(t, Config{Blacklist: []string{"calm over chaos"}})

	pieces := []*fragment.Piece{
		piece("p1", "A sense of balance and harmony."),
		piece("p2", "Calm, over chaos!"),
		piece("p3", "Rough texture invites touch"),
	}

	accepted, stats := p.Apply(pieces, nil, nil)

	require.Len(t, accepted, 1)
	assert.Equal(t, "p3", accepted[0].ID)
	assert.Equal(t, 2, stats.Reasons["blacklist"])
	assert.Equal(t, 1, stats.AfterBlacklist)
}

func TestApply_PatternBlacklist(t *testing.T) {
	p := newTestPipeline(t, Config{BlacklistPatterns: []string{"* worth exploring"}})

	pieces := []*fragment.Piece{
		piece("p1", "A quiet idea worth exploring"),
		piece("p2", "Layered texture adds depth"),
	}

	accepted, stats := p.Apply(pieces, nil, nil)

	require.Len(t, accepted, 1)
	assert.Equal(t, "p2", accepted[0].ID)
	assert.Equal(t, 1, stats.Reasons["blacklist"])
}

func TestApply_DedupeDropsNearDuplicate(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig())

	pieces := []*fragment.Piece{
		piece("p1", "Calm confidence over excitement"),
		piece("p2", "Calm confidence, not excitement"),
		piece("p3", "Bold geometric shapes"),
	}

	accepted, stats := p.Apply(pieces, nil, nil)

	require.Len(t, accepted, 2)
	assert.Equal(t, "p1", accepted[0].ID, "first occurrence wins")
	assert.Equal(t, "p3", accepted[1].ID)
	assert.Equal(t, 1, stats.Reasons["duplicate"])
}

func TestApply_DedupeShortTextJaccard(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig())

	pieces := []*fragment.Piece{
		piece("p1", "calm morning light"),
		piece("p2", "Calm morning light."),
	}

	accepted, stats := p.Apply(pieces, nil, nil)

	require.Len(t, accepted, 1)
	assert.Equal(t, 1, stats.Reasons["duplicate"])
}

func TestApply_FragmentQuotaExemptsUnsourcedPieces(t *testing.T) {
	p := newTestPipeline(t, Config{MaxPerFragment: 2})

	pieces := []*fragment.Piece{
		sourcedPiece("p1", "Warm grain softens the frame", "f1"),
		sourcedPiece("p2", "Analog tones invite memory", "f1"),
		sourcedPiece("p3", "Film dust adds intimacy", "f1"),
		piece("p4", "Bold geometric shapes"),
	}

	accepted, stats := p.Apply(pieces, nil, nil)

	require.Len(t, accepted, 3)
	assert.Equal(t, "p4", accepted[2].ID, "pieces without a source fragment are exempt")
	assert.Equal(t, 1, stats.Reasons["fragment_quota"])
}

func TestApply_FragmentQuotaCountsPriorSessionUsage(t *testing.T) {
	p := newTestPipeline(t, Config{MaxPerFragment: 2})

	pieces := []*fragment.Piece{
		sourcedPiece("p1", "Warm grain softens the frame", "f1"),
		piece("p2", "Bold geometric shapes"),
	}

	accepted, stats := p.Apply(pieces, map[string]int{"f1": 2}, nil)

	require.Len(t, accepted, 1)
	assert.Equal(t, "p2", accepted[0].ID)
	assert.Equal(t, 1, stats.Reasons["fragment_quota"])
}

func TestApply_ThemeQuotaCapsRepeatedTokens(t *testing.T) {
	p := newTestPipeline(t, Config{MaxPerTheme: 3})

	pieces := []*fragment.Piece{
		piece("p1", "Rough texture invites touch"),
		piece("p2", "Texture contrast between materials"),
		piece("p3", "Layered texture adds depth"),
		piece("p4", "Soft texture calms the eye"),
	}

	accepted, stats := p.Apply(pieces, nil, nil)

	require.Len(t, accepted, 3)
	assert.Equal(t, 1, stats.Reasons["theme_quota"])
	for _, got := range accepted {
		assert.NotEqual(t, "p4", got.ID)
	}
}

func TestApply_AllRejectedFallsBackToOriginalBatch(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig())

	pieces := []*fragment.Piece{
		piece("p1", "Less is more"),
		piece("p2", "Form follows function"),
	}

	accepted, stats := p.Apply(pieces, nil, nil)

	assert.True(t, stats.FallbackUsed)
	require.Len(t, accepted, 2, "unfiltered batch returned rather than nothing")
	assert.Equal(t, 2, stats.Reasons["blacklist"], "rejections stay visible in the stats")
}

func TestApply_Idempotent(t *testing.T) {
	p := newTestPipeline(t, DefaultConfig())

	pieces := make([]*fragment.Piece, 0, 8)
	statements := []string{
		"Calm confidence over excitement",
		"Calm confidence, not excitement",
		"Rough texture invites touch",
		"Bold geometric shapes",
		"A sense of balance and harmony",
		"Analog tones invite memory",
	}
	for i, s := range statements {
		pieces = append(pieces, piece(fmt.Sprintf("p%d", i), s))
	}

	first, firstStats := p.Apply(pieces, nil, nil)
	require.NotEmpty(t, first)
	require.False(t, firstStats.FallbackUsed)

	second, stats := p.Apply(first, nil, nil)

	require.Len(t, second, len(first), "a second pass removes nothing")
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.Empty(t, stats.Reasons)
}

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "calm confidence not excitement", normalizeText("  Calm confidence, not excitement! "))
	assert.Equal(t, "", normalizeText("—…"))
}

func TestSimilarity_IdenticalAndDisjoint(t *testing.T) {
	idx := newSimilarityIndex()

	assert.Equal(t, 1.0, idx.similarity("calm confidence", "calm confidence"))
	assert.Equal(t, 0.0, idx.similarity("", "calm"))
	assert.Less(t, idx.similarity(
		normalizeText("Calm confidence over excitement"),
		normalizeText("Bold geometric shapes"),
	), 0.6)
	assert.GreaterOrEqual(t, idx.similarity(
		normalizeText("Calm confidence over excitement"),
		normalizeText("Calm confidence, not excitement"),
	), 0.6)
}
