package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/walrusgate/contentgate/common/cache"
	"github.com/walrusgate/contentgate/common/config"
	"github.com/walrusgate/contentgate/common/db"
	"github.com/walrusgate/contentgate/common/logger"
	"github.com/walrusgate/contentgate/common/migrations"
	"github.com/walrusgate/contentgate/common/queue"
	"github.com/walrusgate/contentgate/common/telemetry"
)

// Setup loads configuration and opens every component the config enables
// and opts do not exclude. On error, whatever was already opened is closed.
func Setup(ctx context.Context, serviceName string, opts ...Option) (*Components, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.config
	if cfg == nil {
		var err error
		if cfg, err = config.Load(serviceName); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	log := o.logger
	if log == nil {
		log = logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	}

	log.Info("initializing service",
		"service", serviceName,
		"environment", cfg.Service.Environment,
		"database", cfg.Database.Type,
	)

	s := &setup{
		c:       &Components{Config: cfg, Logger: log},
		opts:    o,
		service: serviceName,
	}
	steps := []func(context.Context) error{
		s.openDB,
		s.openRedis,
		s.openQueue,
		s.openCache,
		s.startTelemetry,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			_ = s.c.Shutdown(ctx)
			return nil, err
		}
	}

	c := s.c
	log.Info("service initialization complete",
		"db", c.DB != nil,
		"redis", c.Redis != nil,
		"queue", c.Queue != nil,
		"cache", c.Cache != nil,
		"telemetry", c.Telemetry != nil,
	)
	return c, nil
}

type setup struct {
	c       *Components
	opts    *options
	service string
}

// openDB connects to postgres. The memory backend needs no pool.
func (s *setup) openDB(ctx context.Context) error {
	cfg := s.c.Config
	if !s.opts.wants(partDB) || cfg.Database.Type != "postgres" {
		return nil
	}

	if cfg.Database.AutoMigrate {
		s.c.Logger.Info("applying migrations")
		if err := migrations.MigrateUp(cfg.DatabaseURL()); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	pool, err := db.New(ctx, cfg, s.c.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.c.DB = pool
	s.c.onShutdown("database", func() error {
		pool.Close()
		return nil
	})
	return nil
}

// openRedis creates the client used for rate limits, the shared cache and
// the event stream. An unreachable server is logged, not fatal.
func (s *setup) openRedis(ctx context.Context) error {
	rc := s.c.Config.Redis
	if !s.opts.wants(partRedis) || !rc.Enabled {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		s.c.Logger.Warn("redis unreachable, continuing without it", "addr", rc.Addr, "error", err)
	} else {
		s.c.Logger.Info("connected to redis", "addr", rc.Addr)
	}

	s.c.Redis = client
	s.c.onShutdown("redis", client.Close)
	return nil
}

func (s *setup) openQueue(ctx context.Context) error {
	if !s.opts.wants(partQueue) {
		return nil
	}

	var q queue.Queue
	if s.c.Redis != nil {
		consumer := fmt.Sprintf("%s-%d", s.service, os.Getpid())
		q = queue.NewStreamQueue(s.c.Redis, s.service, consumer, s.c.Logger)
	} else {
		q = queue.NewMemoryQueue(s.c.Logger)
	}
	s.c.Queue = q
	s.c.onShutdown("queue", q.Close)
	return nil
}

func (s *setup) openCache(ctx context.Context) error {
	if !s.opts.wants(partCache) || !s.c.Config.Cache.Enabled {
		return nil
	}

	var store cache.Cache
	if s.c.Redis != nil {
		store = cache.NewRedisCache(s.c.Redis, s.service, s.c.Logger)
	} else {
		store = cache.NewMemoryCache(s.c.Logger)
	}
	s.c.Cache = store
	s.c.onShutdown("cache", store.Close)
	return nil
}

// startTelemetry serves pprof. A port that cannot be bound is not fatal.
func (s *setup) startTelemetry(ctx context.Context) error {
	tc := s.c.Config.Telemetry
	if !s.opts.wants(partTelemetry) || !tc.EnablePprof {
		return nil
	}

	t := telemetry.New(tc.PprofPort, s.c.Logger)
	if err := t.Start(ctx); err != nil {
		s.c.Logger.Warn("failed to start telemetry", "error", err)
		return nil
	}
	s.c.Telemetry = t
	s.c.onShutdown("telemetry", func() error {
		return t.Stop(context.Background())
	})
	return nil
}
