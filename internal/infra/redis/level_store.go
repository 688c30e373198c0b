package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"phonics-master/internal/domain"
)

// LevelStore keeps the level list as one JSON string: SET {key} [...]
type LevelStore struct {
	client *redis.Client
	key    string
}

func NewLevelStore(client *redis.Client, key string) *LevelStore {
	return &LevelStore{client: client, key: key}
}

func (s *LevelStore) Load(ctx context.Context) ([]domain.Question, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load levels: %w", err)
	}
	var levels []domain.Question
	if err := json.Unmarshal(raw, &levels); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorruptLevels, err)
	}
	return levels, nil
}

func (s *LevelStore) Save(ctx context.Context, questions []domain.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal levels: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save levels: %w", err)
	}
	return nil
}
