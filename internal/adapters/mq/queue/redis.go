package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/okian/flatrank/pkg/logger"
	"github.com/okian/flatrank/pkg/metrics"
)

const defaultPollTimeout = time.Second

// RedisQueue implements Queue on a Redis list: LPUSH to enqueue, BRPOP to
// consume. Several processes may share the same key.
type RedisQueue struct {
	client      *redis.Client
	key         string
	capacity    int
	pollTimeout time.Duration
	logger      logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue wraps client. The client stays owned by the caller.
func NewRedisQueue(client *redis.Client, key string, opts ...RedisOption) *RedisQueue {
	q := &RedisQueue{
		client:      client,
		key:         key,
		capacity:    defaultQueueCapacity,
		pollTimeout: defaultPollTimeout,
		logger:      logger.Get().Named("redis-queue"),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	metrics.UpdateQueueCapacity(q.capacity)
	return q
}

// Enqueue pushes a job unless the list already holds capacity jobs.
func (q *RedisQueue) Enqueue(ctx context.Context, j Job) bool {
	if q.IsClosed() {
		metrics.RecordQueueEnqueueError()
		return false
	}
	payload, err := json.Marshal(j)
	if err != nil {
		metrics.RecordQueueEnqueueError()
		q.logger.Error(ctx, "encode job", logger.Error(err))
		return false
	}

	var size *redis.IntCmd
	_, err = q.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, q.key, payload)
		size = p.LLen(ctx, q.key)
		return nil
	})
	if err != nil {
		metrics.RecordQueueEnqueueError()
		q.logger.Error(ctx, "enqueue job", logger.String("key", q.key), logger.Error(err))
		return false
	}
	if int(size.Val()) > q.capacity {
		// Over capacity: take our job back out.
		q.client.LRem(ctx, q.key, 1, payload)
		metrics.RecordQueueEnqueueError()
		return false
	}
	metrics.RecordQueueEnqueue()
	metrics.UpdateQueueSize(int(size.Val()))
	return true
}

// Dequeue polls the list with BRPOP until ctx is done or the queue is closed.
func (q *RedisQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.done:
				return
			default:
			}

			res, err := q.client.BRPop(ctx, q.pollTimeout, q.key).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
					return
				}
				q.logger.Warn(ctx, "dequeue failed", logger.String("key", q.key), logger.Error(err))
				select {
				case <-time.After(q.pollTimeout):
				case <-ctx.Done():
					return
				}
				continue
			}

			var j Job
			if err := json.Unmarshal([]byte(res[1]), &j); err != nil {
				q.logger.Error(ctx, "drop malformed job", logger.String("payload", res[1]), logger.Error(err))
				continue
			}
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
			case <-ctx.Done():
				// Put it back for another consumer.
				if err := q.client.RPush(context.Background(), q.key, res[1]).Err(); err != nil {
					q.logger.Error(ctx, "requeue job", logger.Error(err))
				}
				return
			}
		}
	}()
	return out
}

// Len returns the list length, or 0 if Redis cannot be reached.
func (q *RedisQueue) Len(ctx context.Context) int {
	n, err := q.client.LLen(ctx, q.key).Result()
	if err != nil {
		return 0
	}
	metrics.UpdateQueueSize(int(n))
	return int(n)
}

// Ping checks the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close stops consumers. Queued jobs stay in Redis.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.done)
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *RedisQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
