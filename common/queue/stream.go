package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/walrusgate/contentgate/common/logger"
)

const (
	streamBlock   = time.Second
	streamCount   = 16
	streamMaxLen  = 10000
	fieldKey      = "key"
	fieldValue    = "value"
	streamsPrefix = "events:"
)

// StreamQueue is a Queue backed by Redis Streams. Each topic is a stream and
// subscribers read through one consumer group, so every message is handled
// once across all instances of the service.
type StreamQueue struct {
	redis    *redis.Client
	group    string
	consumer string
	log      *logger.Logger

	mu     sync.Mutex
	cancel []context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewStreamQueue creates a stream queue. group names the consumer group,
// usually the service name; consumer should be unique per process.
func NewStreamQueue(client *redis.Client, group, consumer string, log *logger.Logger) *StreamQueue {
	return &StreamQueue{
		redis:    client,
		group:    group,
		consumer: consumer,
		log:      log,
	}
}

func streamName(topic string) string {
	return streamsPrefix + topic
}

// Publish appends a message to the topic's stream
func (q *StreamQueue) Publish(ctx context.Context, topic string, key string, message []byte) error {
	err := q.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName(topic),
		MaxLen: streamMaxLen,
		Values: map[string]interface{}{
			fieldKey:   key,
			fieldValue: message,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe creates the consumer group if needed and starts reading
func (q *StreamQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	stream := streamName(topic)

	err := q.redis.XGroupCreateMkStream(ctx, stream, q.group, "$").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = append(q.cancel, cancel)
	q.wg.Add(1)

	q.log.Info("subscribing to stream", "stream", stream, "group", q.group, "consumer", q.consumer)

	go func() {
		defer q.wg.Done()
		q.consume(ctx, topic, stream, handler)
	}()

	return nil
}

func (q *StreamQueue) consume(ctx context.Context, topic, stream string, handler MessageHandler) {
	for ctx.Err() == nil {
		streams, err := q.redis.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.group,
			Consumer: q.consumer,
			Streams:  []string{stream, ">"},
			Count:    streamCount,
			Block:    streamBlock,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.log.Warn("stream read failed", "stream", stream, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(streamBlock):
			}
			continue
		}

		for _, s := range streams {
			for _, msg := range s.Messages {
				key, _ := msg.Values[fieldKey].(string)
				value, _ := msg.Values[fieldValue].(string)

				if err := handler(ctx, key, []byte(value)); err != nil {
					q.log.Error("message handler error", "topic", topic, "key", key, "error", err)
				}
				if err := q.redis.XAck(ctx, stream, q.group, msg.ID).Err(); err != nil {
					q.log.Warn("stream ack failed", "stream", stream, "id", msg.ID, "error", err)
				}
			}
		}
	}
}

// Close stops all subscriptions and waits for them to return. The Redis
// client is owned by the caller.
func (q *StreamQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, cancel := range q.cancel {
		cancel()
	}
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
