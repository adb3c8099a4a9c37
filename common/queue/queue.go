package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/walrusgate/contentgate/common/logger"
)

// Queue carries domain events between the request path and background
// consumers. Publish never blocks on consumers.
type Queue interface {
	Publish(ctx context.Context, topic string, key string, message []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// MessageHandler processes one message. A returned error is logged and the
// message is not redelivered.
type MessageHandler func(ctx context.Context, key string, value []byte) error

// ErrClosed is returned by Subscribe after Close
var ErrClosed = errors.New("queue closed")

type message struct {
	key   string
	value []byte
}

// MemoryQueue delivers messages in-process. Each topic buffers up to
// topicBuffer messages, so events published before a consumer subscribes
// are still delivered.
type MemoryQueue struct {
	mu      sync.Mutex
	topics  map[string]chan message
	closed  bool
	workers sync.WaitGroup
	log     *logger.Logger
}

const topicBuffer = 1000

func NewMemoryQueue(log *logger.Logger) *MemoryQueue {
	return &MemoryQueue{
		topics: make(map[string]chan message),
		log:    log,
	}
}

// mailbox returns the channel for topic. Callers hold q.mu.
func (q *MemoryQueue) mailbox(topic string) chan message {
	ch, ok := q.topics[topic]
	if !ok {
		ch = make(chan message, topicBuffer)
		q.topics[topic] = ch
	}
	return ch
}

// Publish enqueues a message. It is dropped with a warning when the queue is
// closed or the topic buffer is full.
func (q *MemoryQueue) Publish(ctx context.Context, topic string, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		q.log.Warn("dropping event on closed queue", "topic", topic, "key", key)
		return nil
	}

	select {
	case q.mailbox(topic) <- message{key: key, value: value}:
	default:
		q.log.Warn("dropping event, topic buffer full", "topic", topic, "key", key)
	}
	return nil
}

// Subscribe starts a consumer for topic that runs until ctx ends or the
// queue is closed
func (q *MemoryQueue) Subscribe(ctx context.Context, topic string, handler MessageHandler) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	ch := q.mailbox(topic)
	q.workers.Add(1)
	q.mu.Unlock()

	q.log.Info("subscribed", "topic", topic)

	go func() {
		defer q.workers.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if err := handler(ctx, msg.key, msg.value); err != nil {
					q.log.Error("event handler failed", "topic", topic, "key", msg.key, "error", err)
				}
			}
		}
	}()
	return nil
}

// Close stops accepting events, lets consumers drain their buffers and waits
// for them to exit
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for _, ch := range q.topics {
		close(ch)
	}
	q.mu.Unlock()

	q.workers.Wait()
	return nil
}
