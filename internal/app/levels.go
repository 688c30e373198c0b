package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"phonics-master/internal/domain"
)

// LevelsKey is the single key the level list is stored under.
const LevelsKey = "phonics-master-levels"

// LevelStore persists the whole level list under one key. Save overwrites.
type LevelStore interface {
	Load(ctx context.Context) ([]domain.Question, error)
	Save(ctx context.Context, questions []domain.Question) error
}

// LevelService is the editing surface for levels.
type LevelService struct {
	store LevelStore
	log   *zap.Logger
}

func NewLevelService(store LevelStore, log *zap.Logger) *LevelService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LevelService{store: store, log: log}
}

// Levels returns the stored levels, or the built-in ones when nothing usable
// is stored.
func (s *LevelService) Levels(ctx context.Context) ([]domain.Question, error) {
	levels, err := s.store.Load(ctx)
	if errors.Is(err, domain.ErrCorruptLevels) {
		s.log.Warn("stored levels unreadable, using defaults", zap.Error(err))
		return DefaultLevels(), nil
	}
	if err != nil {
		return nil, err
	}
	if len(levels) == 0 {
		return DefaultLevels(), nil
	}
	return levels, nil
}

// Save validates and stores the level list, replacing what was there.
func (s *LevelService) Save(ctx context.Context, questions []domain.Question) error {
	if err := domain.ValidateLevels(questions); err != nil {
		return err
	}
	if err := s.store.Save(ctx, questions); err != nil {
		return err
	}
	s.log.Info("levels saved", zap.Int("count", len(questions)))
	return nil
}

// DefaultLevels are shipped with the game.
func DefaultLevels() []domain.Question {
	return []domain.Question{
		{
			ID:          1,
			Sentence:    "There is a ____.",
			TargetWord:  "monkey",
			ImageHint:   "https://images.unsplash.com/photo-1540573133985-87b6da6d54a9?auto=format&fit=crop&q=80&w=400",
			Distractors: []string{"n", "e"},
		},
		{
			ID:          2,
			Sentence:    "The cat ____ the fish.",
			TargetWord:  "ate",
			ImageHint:   "https://images.unsplash.com/photo-1514888286974-6c03e2ca1dba?auto=format&fit=crop&q=80&w=400",
			Distractors: []string{"b", "d"},
			PhonicsRules: []domain.PhonicsRule{
				{Name: "Magic E", Indices: []int{0, 2}, Color: "text-pink-500", Description: "The silent E makes the vowel say its name."},
			},
		},
		{
			ID:          3,
			Sentence:    "I love to bake a ____.",
			TargetWord:  "cake",
			ImageHint:   "https://images.unsplash.com/photo-1578985545062-69928b1d9587?auto=format&fit=crop&q=80&w=400",
			Distractors: []string{"p", "l"},
			PhonicsRules: []domain.PhonicsRule{
				{Name: "Magic E", Indices: []int{1, 3}, Color: "text-blue-500", Description: "Long vowel 'a' and silent 'e'."},
			},
		},
		{
			ID:          4,
			Sentence:    "The ____ is bright today.",
			TargetWord:  "sun",
			ImageHint:   "https://images.unsplash.com/photo-1504386106331-3e4e71712b38?auto=format&fit=crop&q=80&w=400",
			Distractors: []string{"m", "t"},
		},
		{
			ID:          5,
			Sentence:    "Look at the big ____.",
			TargetWord:  "ship",
			ImageHint:   "https://images.unsplash.com/photo-1499856871958-5b9627545d1a?auto=format&fit=crop&q=80&w=400",
			Distractors: []string{"p", "z"},
			PhonicsRules: []domain.PhonicsRule{
				{Name: "Digraph sh", Indices: []int{0, 1}, Color: "text-orange-500", Description: "S and H together make one sound: /sh/"},
			},
		},
	}
}
