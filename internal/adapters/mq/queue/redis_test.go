package queue

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/okian/flatrank/pkg/logger"
)

func init() {
	_ = logger.Init()
}

// redisClient connects to FLATRANK_TEST_REDIS (default localhost:6379) and
// skips the test when nothing answers.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("FLATRANK_TEST_REDIS")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 500 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisQueue_RoundTrip(t *testing.T) {
	client := redisClient(t)
	key := "flatrank:test:" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	q := NewRedisQueue(client, key, WithRedisCapacity(2), WithPollTimeout(100*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := q.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if !q.Enqueue(ctx, job(1)) || !q.Enqueue(ctx, job(2)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.Enqueue(ctx, job(3)) {
		t.Error("expected enqueue to fail over capacity")
	}
	if l := q.Len(ctx); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}

	out := q.Dequeue(ctx)
	first, second := <-out, <-out
	if first.ListingID != 1 || second.ListingID != 2 {
		t.Errorf("expected FIFO order, got %d then %d", first.ListingID, second.ListingID)
	}

	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if q.Enqueue(ctx, job(4)) {
		t.Error("expected enqueue to fail after closing")
	}
	select {
	case _, ok := <-out:
		if ok {
			t.Error("unexpected job after close")
		}
	case <-time.After(2 * time.Second):
		t.Error("dequeue channel not closed after Close")
	}
}
