package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/adalundhe/mosaic/core/diversity"
	"github.com/adalundhe/mosaic/core/features"
	"github.com/adalundhe/mosaic/core/fragment"
	"github.com/adalundhe/mosaic/core/gateway"
	"github.com/adalundhe/mosaic/core/preference"
	"github.com/adalundhe/mosaic/core/ranking"
)

// Invoker is the slice of the generation gateway the orchestrator
// needs. *gateway.Gateway satisfies it.
type Invoker interface {
	Invoke(ctx context.Context, req *gateway.InvokeRequest) (*gateway.InvokeResult, error)
}

// Config bounds one orchestrator.
type Config struct {
	// QuadrantTimeout bounds each quadrant-generation task.
	QuadrantTimeout time.Duration `yaml:"quadrant_timeout"`

	// PiecesPerQuadrant is how many statements each quadrant requests.
	PiecesPerQuadrant int `yaml:"pieces_per_quadrant"`
}

// DefaultConfig returns production orchestration bounds.
func DefaultConfig() Config {
	return Config{
		QuadrantTimeout:   15 * time.Second,
		PiecesPerQuadrant: 3,
	}
}

// Orchestrator runs generation sessions over the ranking, gateway,
// diversity, and preference layers.
type Orchestrator struct {
	cfg      Config
	invoker  Invoker
	ranker   *ranking.Ranker
	cache    *features.Cache
	pipeline *diversity.Pipeline
	prefs    *preference.Store
	logger   *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// New creates an orchestrator.
func New(cfg Config, invoker Invoker, ranker *ranking.Ranker, cache *features.Cache, pipeline *diversity.Pipeline, prefs *preference.Store, opts ...Option) *Orchestrator {
	if cfg.QuadrantTimeout <= 0 {
		cfg.QuadrantTimeout = DefaultConfig().QuadrantTimeout
	}
	if cfg.PiecesPerQuadrant <= 0 {
		cfg.PiecesPerQuadrant = DefaultConfig().PiecesPerQuadrant
	}

	o := &Orchestrator{
		cfg:      cfg,
		invoker:  invoker,
		ranker:   ranker,
		cache:    cache,
		pipeline: pipeline,
		prefs:    prefs,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// StartSession synthesizes a focal question, ranks the fragments, and
// fans out the four quadrant-generation tasks concurrently. Each task
// is bounded by its own timeout and fails in isolation: the session
// reports failed only when every quadrant fails.
func (o *Orchestrator) StartSession(ctx context.Context, fragments []*fragment.Fragment, intent string, intentType fragment.IntentType) (*State, error) {
	state := &State{
		ID:         uuid.NewString(),
		Intent:     intent,
		IntentType: intentType,
		StartedAt:  time.Now(),
		pools:      make(map[fragment.Mode][]*fragment.Piece, 4),
	}

	state.FocalQuestion = o.synthesizeFocalQuestion(ctx, intent, intentType)

	o.applyPreferences(state.ID)
	selection := o.ranker.RankAndSelect(fragments, intent)

	var wg sync.WaitGroup
	for _, mode := range fragment.AllModes() {
		wg.Add(1)
		go func(mode fragment.Mode) {
			defer wg.Done()

			taskCtx, cancel := context.WithTimeout(ctx, o.cfg.QuadrantTimeout)
			defer cancel()

			pieces, err := o.generateQuadrant(taskCtx, state, mode, selection.PerMode[mode], nil)
			if err != nil {
				o.logger.Warn("quadrant generation failed",
					"session", state.ID,
					"mode", string(mode),
					"error", err)
				state.recordError(mode, fmt.Sprintf("%s quadrant generation failed: retry the same intent to regenerate it", mode))
				state.setPool(mode, nil)
				return
			}
			state.setPool(mode, pieces)
		}(mode)
	}
	wg.Wait()

	switch {
	case ctx.Err() != nil:
		state.Status = StatusPartial
	case len(state.Errors()) == len(fragment.AllModes()):
		state.Status = StatusFailed
	default:
		state.Status = StatusCompleted
	}

	o.logger.Info("session assembled",
		"session", state.ID,
		"status", string(state.Status),
		"pieces", state.PieceCount(),
		"failures", len(state.Errors()))

	return state, nil
}

// ReplenishQuadrant generates an incremental batch for one quadrant of
// an existing session, re-ranking against the current fragment set and
// honoring the session's accumulated fragment usage.
func (o *Orchestrator) ReplenishQuadrant(ctx context.Context, state *State, fragments []*fragment.Fragment, mode fragment.Mode) error {
	o.applyPreferences(state.ID)
	selection := o.ranker.RankAndSelect(fragments, state.Intent)

	taskCtx, cancel := context.WithTimeout(ctx, o.cfg.QuadrantTimeout)
	defer cancel()

	pieces, err := o.generateQuadrant(taskCtx, state, mode, selection.PerMode[mode], state.fragmentUsage())
	if err != nil {
		state.recordError(mode, fmt.Sprintf("%s quadrant replenishment failed: request it again to retry", mode))
		return err
	}

	state.appendPool(mode, pieces)
	return nil
}

// RecordOutcome feeds one user decision into the preference profile.
func (o *Orchestrator) RecordOutcome(outcome preference.Outcome) {
	o.prefs.RecordOutcome(outcome)
}

// ResetSession discards the session's preference profile.
func (o *Orchestrator) ResetSession(sessionID string) {
	o.prefs.Reset(sessionID)
}

// applyPreferences pushes the session's current adaptive weights and
// theme leanings into the ranker.
func (o *Orchestrator) applyPreferences(sessionID string) {
	hints := o.prefs.Hints(sessionID)
	o.ranker.SetWeights(ranking.Weights{
		Diversity:       hints.Weights.Diversity,
		Novelty:         hints.Weights.Novelty,
		ThemeReinforce:  hints.Weights.ThemeReinforce,
		PreferredThemes: hints.PreferredThemes,
		AvoidedThemes:   hints.AvoidedThemes,
	})
}

type focalQuestionResult struct {
	Question string `json:"question"`
}

// synthesizeFocalQuestion asks the deep tier to frame the session,
// falling back to a template when the backend cannot help.
func (o *Orchestrator) synthesizeFocalQuestion(ctx context.Context, intent string, intentType fragment.IntentType) string {
	var result focalQuestionResult
	_, err := o.invoker.Invoke(ctx, &gateway.InvokeRequest{
		Tier:   gateway.TierDeep,
		System: focalQuestionSystemPrompt,
		Prompt: buildFocalQuestionPrompt(intent, intentType),
		Out:    &result,
	})
	if err != nil || result.Question == "" {
		o.logger.Warn("focal question synthesis degraded to template",
			"error", err)
		return fallbackFocalQuestion(intent, intentType)
	}
	return result.Question
}

type generatedPiece struct {
	Statement  string `json:"statement"`
	Priority   int    `json:"priority"`
	FragmentID string `json:"fragment_id"`
}

type quadrantResult struct {
	Pieces []generatedPiece `json:"pieces"`
}

// generateQuadrant runs one quadrant-generation call and filters the
// output through the diversity pipeline. A result arriving after the
// task context expired is discarded, never merged into the session.
func (o *Orchestrator) generateQuadrant(ctx context.Context, state *State, mode fragment.Mode, candidates []*ranking.RankedCandidate, priorUsage map[string]int) ([]*fragment.Piece, error) {
	var result quadrantResult
	_, err := o.invoker.Invoke(ctx, &gateway.InvokeRequest{
		Tier:   gateway.TierFast,
		System: quadrantSystemPrompt,
		Prompt: buildQuadrantPrompt(mode, state.FocalQuestion, state.IntentType, candidates, o.cfg.PiecesPerQuadrant),
		Out:    &result,
	})
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	byFragment := make(map[string]*fragment.Fragment, len(candidates))
	for _, candidate := range candidates {
		byFragment[candidate.Fragment.ID] = candidate.Fragment
	}

	pieces := make([]*fragment.Piece, 0, len(result.Pieces))
	for i, generated := range result.Pieces {
		if generated.Statement == "" {
			continue
		}

		piece := &fragment.Piece{
			ID:        uuid.NewString(),
			Mode:      mode,
			Statement: generated.Statement,
			Priority:  generated.Priority,
		}
		if piece.Priority <= 0 {
			piece.Priority = i + 1
		}
		if frag, ok := byFragment[generated.FragmentID]; ok {
			piece.FragmentID = frag.ID
			piece.FragmentSummary = frag.Summary
			piece.ImageRef = frag.ImageRef
		}
		pieces = append(pieces, piece)
	}

	accepted, stats := o.pipeline.Apply(pieces, priorUsage, nil)
	o.logger.Debug("quadrant batch filtered",
		"session", state.ID,
		"mode", string(mode),
		"input", stats.Input,
		"accepted", stats.Accepted,
		"fallback", stats.FallbackUsed)

	// Each accepted piece counts one use against its source fragment,
	// feeding future novelty scoring.
	for _, piece := range accepted {
		if piece.FragmentID != "" {
			o.cache.MarkUsed(piece.FragmentID)
		}
	}

	return accepted, nil
}
