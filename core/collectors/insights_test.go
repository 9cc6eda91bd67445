package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/gateway"
)

// cannedInvoker unmarshals a fixed JSON payload into req.Out.
type cannedInvoker struct {
	payload string
	err     error
	calls   int
}

func (i *cannedInvoker) Invoke(_ context.Context, req *gateway.InvokeRequest) (*gateway.InvokeResult, error) {
	i.calls++
	if i.err != nil {
		return nil, i.err
	}
	if req.Out != nil {
		if err := json.Unmarshal([]byte(i.payload), req.Out); err != nil {
			return nil, err
		}
	}
	return &gateway.InvokeResult{Text: i.payload, Tier: req.Tier}, nil
}

func readyCollector(t *testing.T, source FragmentSource) *ContextCollector {
	t.Helper()

	timers := &timerControl{}
	collector, _ := newTestCollector(source, &themedExtractor{}, timers)

	ids := make([]string, 0)
	for _, frag := range source.Fragments() {
		ids = append(ids, frag.ID)
	}
	collector.NotifyChanged(ids...)
	collector.Collect(context.Background())
	require.True(t, collector.Ready())
	return collector
}

func TestComputeNow_NoOpBeforeCollectorReady(t *testing.T) {
	source := newMemorySource(formFragment("f1"))
	timers := &timerControl{}
	collector, _ := newTestCollector(source, &themedExtractor{}, timers)
	invoker := &cannedInvoker{payload: `{"questions": ["Q1"]}`}

	precomputer := NewInsightPrecomputer(DefaultInsightConfig(), collector, source, invoker)
	precomputer.ComputeNow(context.Background())

	snapshot, _ := precomputer.Snapshot()
	assert.Nil(t, snapshot)
	assert.Equal(t, 0, invoker.calls)
}

func TestComputeNow_AssignsModesAndBackfillsThinQuadrants(t *testing.T) {
	fragments := []*fragment.Fragment{
		formFragment("relevant"),
	}
	for i := 0; i < 3; i++ {
		fragments = append(fragments, &fragment.Fragment{
			ID:        fmt.Sprintf("plain%d", i),
			Kind:      fragment.KindText,
			Content:   "loose unsorted note",
			UpdatedAt: time.Now(),
		})
	}
	source := newMemorySource(fragments...)
	collector := readyCollector(t, source)
	invoker := &cannedInvoker{payload: `{"questions": ["Q1", "Q2"]}`}

	cfg := DefaultInsightConfig()
	cfg.MinPerMode = 2
	precomputer := NewInsightPrecomputer(cfg, collector, source, invoker)
	precomputer.ComputeNow(context.Background())

	snapshot, stale := precomputer.Snapshot()
	require.NotNil(t, snapshot)
	assert.False(t, stale)

	form := snapshot.ModeAssignments[fragment.ModeForm]
	require.NotEmpty(t, form)
	assert.Contains(t, form, "relevant")
	assert.Equal(t, []string{"Q1", "Q2"}, snapshot.FocalQuestions)
}

func TestComputeNow_TruncatesQuestionsToConfiguredCount(t *testing.T) {
	source := newMemorySource(formFragment("f1"))
	collector := readyCollector(t, source)
	invoker := &cannedInvoker{payload: `{"questions": ["Q1", "Q2", "Q3", "Q4", "Q5"]}`}

	cfg := DefaultInsightConfig()
	cfg.QuestionCount = 3
	precomputer := NewInsightPrecomputer(cfg, collector, source, invoker)
	precomputer.ComputeNow(context.Background())

	snapshot, _ := precomputer.Snapshot()
	require.NotNil(t, snapshot)
	assert.Len(t, snapshot.FocalQuestions, 3)
}

func TestComputeNow_FailureKeepsPreviousQuestions(t *testing.T) {
	source := newMemorySource(formFragment("f1"))
	collector := readyCollector(t, source)
	invoker := &cannedInvoker{payload: `{"questions": ["Q1"]}`}

	precomputer := NewInsightPrecomputer(DefaultInsightConfig(), collector, source, invoker)
	precomputer.ComputeNow(context.Background())

	invoker.err = fmt.Errorf("backend down")
	precomputer.ComputeNow(context.Background())

	snapshot, _ := precomputer.Snapshot()
	require.NotNil(t, snapshot)
	assert.Equal(t, []string{"Q1"}, snapshot.FocalQuestions, "previous questions survive a failed cycle")
}

func TestSnapshot_StalenessIsAdvisory(t *testing.T) {
	source := newMemorySource(formFragment("f1"))
	collector := readyCollector(t, source)
	invoker := &cannedInvoker{payload: `{"questions": ["Q1"]}`}

	now := time.Now()
	clockNow := now
	cfg := DefaultInsightConfig()
	cfg.Staleness = 5 * time.Minute
	cfg.Clock = func() time.Time { return clockNow }

	precomputer := NewInsightPrecomputer(cfg, collector, source, invoker)
	precomputer.ComputeNow(context.Background())

	snapshot, stale := precomputer.Snapshot()
	require.NotNil(t, snapshot)
	assert.False(t, stale)

	clockNow = now.Add(10 * time.Minute)
	snapshot, stale = precomputer.Snapshot()
	require.NotNil(t, snapshot, "stale snapshots are still served")
	assert.True(t, stale)
}

func TestExcerpt_TruncatesOnRuneBoundary(t *testing.T) {
	text := strings.Repeat("né", 6)

	got := excerpt(text, 7)
	assert.Equal(t, "nénénén...", got)
	assert.True(t, utf8.ValidString(got))
}
