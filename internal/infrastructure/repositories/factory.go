package repositories

import (
	"context"
	"fmt"

	"screencast/internal/core/ports"
	"screencast/internal/infrastructure/repositories/memory"
	redisrepo "screencast/internal/infrastructure/repositories/redis"
	"screencast/internal/infrastructure/repositories/sqlite"
	"screencast/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates the recording store selected by configuration,
// falling back to memory when Redis is unreachable.
type RepositoryFactory struct {
	driver      string
	redisClient *redis.Client
	sqliteRepo  *sqlite.SQLiteRecordingRepository
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory connects the configured backends.
func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		driver: cfg.Storage.Driver,
		logger: logger,
	}

	// Redis also carries store events, so connect it even when the store
	// itself lives elsewhere.
	if cfg.Redis.Enabled || cfg.Storage.Driver == "redis" {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to Redis",
				"address", cfg.Redis.Address,
				"error", err,
			)
			if factory.driver == "redis" {
				logger.Warn("falling back to memory recording store")
				factory.driver = "memory"
			}
		} else {
			factory.redisClient = client
		}
	}

	if factory.driver == "sqlite" {
		repo, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		factory.sqliteRepo = repo
	}

	logger.Infow("recording store selected", "driver", factory.driver)
	return factory, nil
}

// Driver reports the store actually in use after any fallback.
func (f *RepositoryFactory) Driver() string {
	return f.driver
}

// CreateRecordingRepository returns the recording store for the active driver.
func (f *RepositoryFactory) CreateRecordingRepository() ports.RecordingRepository {
	switch f.driver {
	case "redis":
		return redisrepo.NewRedisRecordingRepository(f.redisClient)
	case "sqlite":
		return f.sqliteRepo
	default:
		return memory.NewMemoryRecordingRepository()
	}
}

// RedisClient is nil when Redis is disabled or unreachable.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

// Close releases backend connections.
func (f *RepositoryFactory) Close() error {
	var firstErr error
	if f.sqliteRepo != nil {
		if err := f.sqliteRepo.Close(); err != nil {
			firstErr = err
		}
	}
	if f.redisClient != nil {
		if err := redisrepo.CloseRedisClient(f.redisClient); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// HealthCheck pings every connected backend.
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		if err := f.redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if f.sqliteRepo != nil {
		if err := f.sqliteRepo.Ping(ctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}
	return nil
}
