package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walrusgate/contentgate/common/cache"
	"github.com/walrusgate/contentgate/common/config"
	"github.com/walrusgate/contentgate/common/logger"
)

func memoryConfig() *config.Config {
	cfg := config.Default("contentgate-test")
	cfg.Database.Type = "memory"
	return cfg
}

func TestSetupMemory(t *testing.T) {
	ctx := context.Background()

	components, err := Setup(ctx, "contentgate-test",
		WithConfig(memoryConfig()),
		WithLogger(logger.Discard()),
	)
	require.NoError(t, err)

	assert.Nil(t, components.DB)
	assert.Nil(t, components.Redis)
	assert.NotNil(t, components.Queue)
	assert.IsType(t, &cache.MemoryCache{}, components.Cache)
	assert.Nil(t, components.Telemetry)
	assert.NoError(t, components.Health(ctx))

	assert.NoError(t, components.Shutdown(ctx))
	assert.NoError(t, components.Shutdown(ctx), "second shutdown is a no-op")
}

func TestSetupWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	cfg := memoryConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()

	components, err := Setup(ctx, "contentgate-test",
		WithConfig(cfg),
		WithLogger(logger.Discard()),
	)
	require.NoError(t, err)
	defer components.Shutdown(ctx)

	require.NotNil(t, components.Redis)
	assert.IsType(t, &cache.RedisCache{}, components.Cache)
	assert.NoError(t, components.Health(ctx))

	mr.Close()
	assert.Error(t, components.Health(ctx))
}

func TestSetupSkips(t *testing.T) {
	ctx := context.Background()

	components, err := Setup(ctx, "contentgate-test",
		WithConfig(memoryConfig()),
		WithLogger(logger.Discard()),
		WithoutQueue(),
		WithoutCache(),
	)
	require.NoError(t, err)
	defer components.Shutdown(ctx)

	assert.Nil(t, components.Queue)
	assert.Nil(t, components.Cache)
}
