package queue

import (
	"time"

	"github.com/okian/flatrank/pkg/logger"
)

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// RedisOption applies a configuration option to the RedisQueue.
type RedisOption func(*RedisQueue)

// WithRedisCapacity caps the list length.
func WithRedisCapacity(capacity int) RedisOption {
	return func(q *RedisQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithPollTimeout sets how long a single BRPOP blocks.
func WithPollTimeout(d time.Duration) RedisOption {
	return func(q *RedisQueue) {
		if d > 0 {
			q.pollTimeout = d
		}
	}
}

// WithRedisLogger sets a custom logger.
func WithRedisLogger(l logger.Logger) RedisOption {
	return func(q *RedisQueue) {
		if l != nil {
			q.logger = l
		}
	}
}
