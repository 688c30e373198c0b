package cli

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"phonics-master/internal/app"
	"phonics-master/internal/config"
	"phonics-master/internal/infra/local"
	"phonics-master/internal/infra/memory"
	"phonics-master/internal/infra/peer"
	"phonics-master/internal/infra/postgres"
	redisinfra "phonics-master/internal/infra/redis"
	"phonics-master/internal/session"
)

// resources are the shared clients a command opened from config. Either
// may be nil when not configured.
type resources struct {
	redis *redis.Client
	pool  *pgxpool.Pool
}

func openResources(ctx context.Context, cfg config.Config) (*resources, error) {
	res := &resources{}
	if cfg.Redis.Addr != "" {
		res.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			res.Close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		res.pool = pool
	}
	return res, nil
}

func (r *resources) Close() {
	if r.redis != nil {
		_ = r.redis.Close()
	}
	if r.pool != nil {
		r.pool.Close()
	}
}

// newLevelStore picks the backing store named by levels.store and puts the
// cache in front of it.
func newLevelStore(cfg config.Config, res *resources) (app.LevelStore, error) {
	var store memory.LevelSource
	switch cfg.Levels.Store {
	case "", "file":
		dir := cfg.Levels.File
		if dir == "" {
			dir = "data"
		}
		store = local.NewLevelStore(filepath.Clean(dir), app.LevelsKey)
	case "redis":
		if res.redis == nil {
			return nil, fmt.Errorf("levels store redis: redis.addr not configured")
		}
		store = redisinfra.NewLevelStore(res.redis, app.LevelsKey)
	case "postgres":
		if res.pool == nil {
			return nil, fmt.Errorf("levels store postgres: postgres.url not configured")
		}
		store = postgres.NewLevelStore(res.pool, app.LevelsKey)
	case "memory":
		store = memory.NewLevelStore(app.DefaultLevels())
	default:
		return nil, fmt.Errorf("unknown levels store %q", cfg.Levels.Store)
	}
	return memory.NewLevelCache(store, config.TTLDuration(cfg.Levels.TTL, time.Minute)), nil
}

// newTransport builds the networked backend named by transport.backend.
func newTransport(cfg config.Config, res *resources, log *zap.Logger) (session.Transport, error) {
	switch session.Kind(cfg.Transport.Backend) {
	case session.KindStoragePoll:
		if res.redis == nil {
			return nil, fmt.Errorf("poll transport: redis.addr not configured")
		}
		interval := config.TTLDuration(cfg.Transport.PollInterval, 500*time.Millisecond)
		ttl := config.TTLDuration(cfg.Redis.TTL, 2*time.Hour)
		return redisinfra.NewPollTransport(res.redis, interval, ttl, log), nil
	case session.KindPeerChannel:
		relay := cfg.Transport.RelayURL
		if relay == "" {
			relay = "http://localhost:8080"
		}
		return peer.NewTransport(relay, log), nil
	case session.KindRealtimeDB:
		if res.pool == nil {
			return nil, fmt.Errorf("realtime transport: postgres.url not configured")
		}
		return postgres.NewRealtimeTransport(res.pool, log), nil
	case session.KindLocalLoopback:
		return memory.NewLoopback(log), nil
	}
	return nil, fmt.Errorf("unknown transport backend %q", cfg.Transport.Backend)
}
