package events

import (
	"context"
	"sync"

	"github.com/okian/flatrank/pkg/logger"
	"github.com/okian/flatrank/pkg/metrics"
)

const (
	defaultSubscriberBuffer = 64
	defaultHistorySize      = 100
)

// Publisher is what producers of events depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Subscription receives published events until Cancel is called or the hub
// shuts down, after which C is closed.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// Cancel detaches the subscription. Safe to call more than once.
func (s *Subscription) Cancel() { s.cancel() }

// Hub broadcasts events to subscribers. Slow subscribers are dropped rather
// than blocking publishers.
type Hub struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	nextID  uint64
	history []Event
	closed  bool

	buffer      int
	historySize int
	logger      logger.Logger
}

var _ Publisher = (*Hub)(nil)

// NewHub creates a hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:        make(map[uint64]chan Event),
		buffer:      defaultSubscriberBuffer,
		historySize: defaultHistorySize,
		logger:      logger.Get().Named("events"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publish delivers e to every subscriber and records it in the history.
func (h *Hub) Publish(ctx context.Context, e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	h.history = append(h.history, e)
	if over := len(h.history) - h.historySize; over > 0 {
		h.history = append(h.history[:0:0], h.history[over:]...)
	}

	for id, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.logger.Warn(ctx, "dropping slow subscriber", logger.Int64("subscriber", int64(id)))
			close(ch)
			delete(h.subs, id)
		}
	}
	metrics.RecordEventPublished(string(e.Type))
	metrics.UpdateEventSubscribers(len(h.subs))
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, h.buffer)
	if h.closed {
		close(ch)
		return &Subscription{C: ch, cancel: func() {}}
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = ch
	metrics.UpdateEventSubscribers(len(h.subs))

	var once sync.Once
	return &Subscription{C: ch, cancel: func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				close(c)
				delete(h.subs, id)
				metrics.UpdateEventSubscribers(len(h.subs))
			}
		})
	}}
}

// Recent returns up to n of the latest events, oldest first.
func (h *Hub) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if n <= 0 || n > len(h.history) {
		n = len(h.history)
	}
	out := make([]Event, n)
	copy(out, h.history[len(h.history)-n:])
	return out
}

// Subscribers returns the number of attached subscribers.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Serve blocks until ctx is done and then closes every subscription.
func (h *Hub) Serve(ctx context.Context) error {
	<-ctx.Done()
	h.Close()
	return ctx.Err()
}

// Close detaches all subscribers. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		close(ch)
		delete(h.subs, id)
	}
	metrics.UpdateEventSubscribers(0)
}
