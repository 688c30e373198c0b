package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"phonics-master/internal/domain"
)

// LevelStore keeps the level list as JSONB in the levels table.
type LevelStore struct {
	pool *pgxpool.Pool
	key  string
}

func NewLevelStore(pool *pgxpool.Pool, key string) *LevelStore {
	return &LevelStore{pool: pool, key: key}
}

func (s *LevelStore) Load(ctx context.Context) ([]domain.Question, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM levels WHERE key=$1`, s.key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
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
	_, err = s.pool.Exec(ctx, `
		INSERT INTO levels (key, data, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (key) DO UPDATE SET data=EXCLUDED.data, updated_at=EXCLUDED.updated_at`,
		s.key, string(data))
	if err != nil {
		return fmt.Errorf("save levels: %w", err)
	}
	return nil
}
