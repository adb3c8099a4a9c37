package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/walrusgate/contentgate/common/cache"
	"github.com/walrusgate/contentgate/common/config"
	"github.com/walrusgate/contentgate/common/db"
	"github.com/walrusgate/contentgate/common/logger"
	"github.com/walrusgate/contentgate/common/queue"
	"github.com/walrusgate/contentgate/common/telemetry"
)

// Components is what Setup built for one process.
// DB is nil for the memory backend and Redis is nil when disabled.
type Components struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        *db.DB
	Redis     *redis.Client
	Queue     queue.Queue
	Cache     cache.Cache
	Telemetry *telemetry.Telemetry

	closers []closer
}

type closer struct {
	name  string
	close func() error
}

func (c *Components) onShutdown(name string, fn func() error) {
	c.closers = append(c.closers, closer{name: name, close: fn})
}

// Shutdown closes components in the reverse order they were opened.
// Calling it again does nothing.
func (c *Components) Shutdown(ctx context.Context) error {
	if len(c.closers) == 0 {
		return nil
	}

	var errs []error
	for len(c.closers) > 0 {
		last := c.closers[len(c.closers)-1]
		c.closers = c.closers[:len(c.closers)-1]

		c.Logger.Debug("closing component", "component", last.name)
		if err := last.close(); err != nil {
			c.Logger.Error("failed to close component", "component", last.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", last.name, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	c.Logger.Info("components closed")
	return nil
}

// Health reports every unreachable backing store. The memory backend is
// always healthy.
func (c *Components) Health(ctx context.Context) error {
	var errs []error
	if c.DB != nil {
		if err := c.DB.Health(ctx); err != nil {
			errs = append(errs, fmt.Errorf("database: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}
