// Package session orchestrates one generation run: focal-question
// synthesis, concurrent quadrant fan-out with isolated failure, and
// post-generation diversity filtering.
package session

import (
	"sync"
	"time"

	"github.com/adalundhe/mosaic/core/fragment"
)

// Status is the completion state of a session.
type Status string

const (
	// StatusCompleted means the fan-out finished; individual quadrants
	// may still have failed and sit empty.
	StatusCompleted Status = "completed"

	// StatusPartial means the run was cancelled before every quadrant
	// task finished; the state holds whatever completed in time.
	StatusPartial Status = "partial"

	// StatusFailed means all four quadrant tasks failed.
	StatusFailed Status = "failed"
)

// QuadrantError records one quadrant task failure.
type QuadrantError struct {
	Mode    fragment.Mode
	Message string
}

// State is the aggregate of one generation run. Quadrant pools may be
// replenished incrementally after the initial fan-out.
type State struct {
	mu sync.Mutex

	ID            string
	FocalQuestion string
	Intent        string
	IntentType    fragment.IntentType
	Status        Status
	StartedAt     time.Time

	pools  map[fragment.Mode][]*fragment.Piece
	errors []QuadrantError
}

// Pool returns the accepted pieces for a quadrant.
func (s *State) Pool(mode fragment.Mode) []*fragment.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*fragment.Piece(nil), s.pools[mode]...)
}

// Errors returns the recorded quadrant failures.
func (s *State) Errors() []QuadrantError {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]QuadrantError(nil), s.errors...)
}

// PieceCount returns the total accepted pieces across quadrants.
func (s *State) PieceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, pool := range s.pools {
		total += len(pool)
	}
	return total
}

func (s *State) setPool(mode fragment.Mode, pieces []*fragment.Piece) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[mode] = pieces
}

func (s *State) appendPool(mode fragment.Mode, pieces []*fragment.Piece) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[mode] = append(s.pools[mode], pieces...)
}

func (s *State) recordError(mode fragment.Mode, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, QuadrantError{Mode: mode, Message: message})
}

// fragmentUsage counts accepted pieces per source fragment, feeding
// the diversity pipeline's cross-batch quota.
func (s *State) fragmentUsage() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	usage := make(map[string]int)
	for _, pool := range s.pools {
		for _, piece := range pool {
			if piece.FragmentID != "" {
				usage[piece.FragmentID]++
			}
		}
	}
	return usage
}
