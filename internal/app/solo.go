package app

import (
	"sync"
	"time"

	"phonics-master/internal/domain"
	"phonics-master/internal/match"
)

const (
	// GameDuration is the clock a single-player quiz runs against.
	GameDuration = 120 * time.Second
	// LevelScore is earned for each completed level.
	LevelScore = 10
)

// SoloState is a snapshot of a single-player quiz.
type SoloState struct {
	LevelIndex int
	Score      int
	TimeLeft   time.Duration
	// Over is set once the last level is solved or the clock runs out.
	Over bool
	// Completed reports that every level was solved before time ran out.
	Completed bool
}

// SoloGame is the timed single-player quiz: solve levels in order before
// the clock runs out. Wrong answers cost nothing but time.
type SoloGame struct {
	levels []domain.Question
	now    func() time.Time

	mu        sync.Mutex
	deadline  time.Time
	index     int
	score     int
	completed bool
	over      bool
}

// NewSoloGame starts the clock immediately. A nil now uses time.Now.
func NewSoloGame(levels []domain.Question, now func() time.Time) (*SoloGame, error) {
	if err := domain.ValidateLevels(levels); err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &SoloGame{
		levels:   append([]domain.Question(nil), levels...),
		now:      now,
		deadline: now().Add(GameDuration),
	}, nil
}

// Current returns the level being played.
func (g *SoloGame) Current() (domain.Question, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.overLocked() {
		return domain.Question{}, false
	}
	return g.levels[g.index], true
}

// Levels returns the number of levels in the quiz.
func (g *SoloGame) Levels() int { return len(g.levels) }

// Answer checks raw against the current level. A correct answer scores and
// moves on, finishing the game after the last level.
func (g *SoloGame) Answer(raw string) (SoloState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.overLocked() {
		return g.stateLocked(), false
	}
	if !match.Evaluate(g.levels[g.index], raw).IsCorrect {
		return g.stateLocked(), false
	}
	g.score += LevelScore
	if g.index == len(g.levels)-1 {
		g.completed = true
		g.over = true
	} else {
		g.index++
	}
	return g.stateLocked(), true
}

// State reports the game, ending it if the clock has run out.
func (g *SoloGame) State() SoloState {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.overLocked()
	return g.stateLocked()
}

func (g *SoloGame) overLocked() bool {
	if !g.over && !g.now().Before(g.deadline) {
		g.over = true
	}
	return g.over
}

func (g *SoloGame) stateLocked() SoloState {
	return SoloState{
		LevelIndex: g.index,
		Score:      g.score,
		TimeLeft:   max(g.deadline.Sub(g.now()), 0),
		Over:       g.over,
		Completed:  g.completed,
	}
}
