package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/comment-thread-store/internal/config"
	"github.com/helixir/comment-thread-store/internal/database"
	"github.com/helixir/comment-thread-store/internal/events"
	"github.com/helixir/comment-thread-store/internal/observability"
	"github.com/helixir/comment-thread-store/internal/repository"
)

// store is an open backend: the instrumented repository, a health check
// against the same connection, and the function that releases it.
type store struct {
	repo   repository.ThreadRepository
	health func(context.Context) database.Health
	close  func()
}

// openStore connects the configured backend and wraps it with instrumentation.
func openStore(ctx context.Context, cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) (*store, error) {
	var (
		repo   repository.ThreadRepository
		health func(context.Context) database.Health
		closer func()
	)

	switch cfg.Store.Backend {
	case config.BackendPostgres:
		db, err := database.New(ctx, &cfg.Database, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		if cfg.Database.MigrationAutoRun {
			if err := migrateUp(db, cfg.Database.MigrationPath, logger); err != nil {
				db.Close()
				return nil, err
			}
		}
		repo = repository.NewPgThreadRepository(db)
		health = db.Health
		closer = db.Close

	case config.BackendMongo:
		m, err := database.NewMongo(ctx, &cfg.Mongo, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to mongo: %w", err)
		}
		mongoRepo := repository.NewMongoThreadRepository(m.Database())
		if cfg.Mongo.EnsureIndexes {
			if err := mongoRepo.EnsureIndexes(ctx); err != nil {
				_ = m.Close(context.Background())
				return nil, fmt.Errorf("ensure mongo indexes: %w", err)
			}
		}
		repo = mongoRepo
		health = func(ctx context.Context) database.Health {
			return database.CheckHealth(ctx, config.BackendMongo, m.Ping)
		}
		closer = func() {
			if err := m.Close(context.Background()); err != nil {
				logger.Error().Err(err).Msg("failed to close mongo connection")
			}
		}

	case config.BackendRedis:
		client, err := database.NewRedis(ctx, &cfg.Redis, logger)
		if err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		repo = repository.NewRedisThreadRepository(client, cfg.Redis.KeyPrefix, cfg.Redis.MaxRetries)
		health = func(ctx context.Context) database.Health {
			return database.CheckHealth(ctx, config.BackendRedis, database.RedisPing(client))
		}
		closer = func() {
			if err := client.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close redis client")
			}
		}

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	return &store{
		repo:   repository.NewInstrumentedThreadRepository(repo, cfg.Store.Backend, metrics, logger),
		health: health,
		close:  closer,
	}, nil
}

func migrateUp(db *database.DB, path string, logger zerolog.Logger) error {
	migrator, err := database.NewMigrator(db, path, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("failed to close migrator")
		}
	}()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// openPublisher returns the Kafka publisher, or a no-op one when Kafka is off.
func openPublisher(cfg *config.KafkaConfig, metrics *observability.Metrics, logger zerolog.Logger) (events.Publisher, error) {
	if !cfg.Enabled {
		return events.NopPublisher{}, nil
	}
	pub, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
	}, metrics, logger)
	if err != nil {
		return nil, fmt.Errorf("create kafka publisher: %w", err)
	}
	return pub, nil
}
