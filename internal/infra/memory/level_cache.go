package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"phonics-master/internal/domain"
)

// LevelSource is any persistent level store.
type LevelSource interface {
	Load(ctx context.Context) ([]domain.Question, error)
	Save(ctx context.Context, questions []domain.Question) error
}

// LevelCache caches the level list with a TTL to avoid repeated store hits.
// Saves go straight through and refresh the cache.
type LevelCache struct {
	source LevelSource
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	levels    []domain.Question
	expiresAt time.Time
}

const levelsFlightKey = "levels"

func NewLevelCache(source LevelSource, ttl time.Duration) *LevelCache {
	return &LevelCache{
		source: source,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *LevelCache) Load(ctx context.Context) ([]domain.Question, error) {
	if levels, ok := c.cached(c.clock()); ok {
		return levels, nil
	}

	result, err, _ := c.sf.Do(levelsFlightKey, func() (interface{}, error) {
		now := c.clock()
		if levels, ok := c.cached(now); ok {
			return levels, nil
		}

		levels, err := c.source.Load(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.levels = levels
		c.expiresAt = now.Add(c.ttlWithJitter())
		c.mu.Unlock()
		return levels, nil
	})
	if err != nil {
		return nil, err
	}
	return cloneLevels(result.([]domain.Question)), nil
}

func (c *LevelCache) Save(ctx context.Context, questions []domain.Question) error {
	if err := c.source.Save(ctx, questions); err != nil {
		return err
	}
	c.mu.Lock()
	c.levels = cloneLevels(questions)
	c.expiresAt = c.clock().Add(c.ttlWithJitter())
	c.mu.Unlock()
	return nil
}

func (c *LevelCache) cached(now time.Time) ([]domain.Question, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.levels != nil && c.expiresAt.After(now) {
		return cloneLevels(c.levels), true
	}
	return nil, false
}

func (c *LevelCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// LevelStore keeps the level list in process memory (useful for tests/demos).
type LevelStore struct {
	mu     sync.RWMutex
	levels []domain.Question
}

func NewLevelStore(levels []domain.Question) *LevelStore {
	return &LevelStore{levels: cloneLevels(levels)}
}

func (s *LevelStore) Load(_ context.Context) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneLevels(s.levels), nil
}

func (s *LevelStore) Save(_ context.Context, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels = cloneLevels(questions)
	return nil
}

func cloneLevels(levels []domain.Question) []domain.Question {
	if levels == nil {
		return nil
	}
	out := make([]domain.Question, len(levels))
	for i, q := range levels {
		q.Distractors = append([]string(nil), q.Distractors...)
		if q.PhonicsRules != nil {
			rules := make([]domain.PhonicsRule, len(q.PhonicsRules))
			for j, r := range q.PhonicsRules {
				r.Indices = append([]int(nil), r.Indices...)
				rules[j] = r
			}
			q.PhonicsRules = rules
		}
		out[i] = q
	}
	return out
}
