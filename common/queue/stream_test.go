package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walrusgate/contentgate/common/logger"
)

func TestStreamQueuePublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewStreamQueue(client, "contentgate", "test-1", logger.Discard())
	defer q.Close()

	got := make(chan string, 2)
	require.NoError(t, q.Subscribe(ctx, "purchase.recorded", func(ctx context.Context, key string, value []byte) error {
		got <- key + "=" + string(value)
		return nil
	}))

	require.NoError(t, q.Publish(ctx, "purchase.recorded", "upload-1", []byte(`{"buyer":"0xb"}`)))

	select {
	case msg := <-got:
		assert.Equal(t, `upload-1={"buyer":"0xb"}`, msg)
	case <-time.After(3 * time.Second):
		t.Fatal("message not delivered")
	}

	pending, err := client.XPending(ctx, "events:purchase.recorded", "contentgate").Result()
	require.NoError(t, err)
	assert.Zero(t, pending.Count, "handled messages are acked")
}

func TestStreamQueueSubscribeTwice(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	q := NewStreamQueue(client, "contentgate", "test-1", logger.Discard())
	handler := func(ctx context.Context, key string, value []byte) error { return nil }

	ctx := context.Background()
	require.NoError(t, q.Subscribe(ctx, "t", handler))
	require.NoError(t, q.Subscribe(ctx, "t", handler), "existing group is reused")

	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.Error(t, q.Subscribe(ctx, "t", handler))
}
