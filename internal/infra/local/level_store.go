// Package local persists levels on the player's own machine.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"phonics-master/internal/domain"
)

// LevelStore keeps the level list as one JSON file named after the key.
type LevelStore struct {
	path string
}

func NewLevelStore(dir, key string) *LevelStore {
	return &LevelStore{path: filepath.Join(dir, key+".json")}
}

// Path is where the levels are written.
func (s *LevelStore) Path() string { return s.path }

func (s *LevelStore) Load(_ context.Context) ([]domain.Question, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read levels: %w", err)
	}
	var levels []domain.Question
	if err := json.Unmarshal(data, &levels); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptLevels, err)
	}
	return levels, nil
}

// Save replaces the file atomically.
func (s *LevelStore) Save(_ context.Context, questions []domain.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal levels: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create levels dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write levels: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace levels: %w", err)
	}
	return nil
}
