package bootstrap

import (
	"github.com/walrusgate/contentgate/common/config"
	"github.com/walrusgate/contentgate/common/logger"
)

// part is one optional component Setup can initialize
type part uint8

const (
	partDB part = 1 << iota
	partRedis
	partQueue
	partCache
	partTelemetry
)

// Option configures Setup
type Option func(*options)

type options struct {
	skip   part
	config *config.Config
	logger *logger.Logger
}

func (o *options) wants(p part) bool {
	return o.skip&p == 0
}

func without(p part) Option {
	return func(o *options) { o.skip |= p }
}

// WithoutDB never opens a postgres pool, even when configured
func WithoutDB() Option { return without(partDB) }

// WithoutRedis never connects to redis. The queue and cache fall back to
// their in-process implementations.
func WithoutRedis() Option { return without(partRedis) }

func WithoutQueue() Option { return without(partQueue) }

func WithoutCache() Option { return without(partCache) }

func WithoutTelemetry() Option { return without(partTelemetry) }

// WithConfig uses cfg instead of loading one from the environment
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLogger uses log instead of building one from the config
func WithLogger(log *logger.Logger) Option {
	return func(o *options) { o.logger = log }
}
