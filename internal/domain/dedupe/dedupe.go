// Package dedupe tracks recently seen submission ids so that a retried
// judgment submission is applied at most once.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Deduper records seen submission ids.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so that a submission that failed downstream can be
	// retried with the same id.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

type entry struct {
	id   string
	seen time.Time
}

// inMemoryDeduper keeps ids in insertion order. The oldest id is evicted when
// the size bound is hit, and ids older than ttl count as unseen.
type inMemoryDeduper struct {
	mu      sync.Mutex
	order   *list.List // front = oldest
	index   map[string]*list.Element
	maxSize int           // <= 0 means unbounded
	ttl     time.Duration // <= 0 means ids never expire
	now     func() time.Time
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		order:   list.New(),
		index:   make(map[string]*list.Element),
		maxSize: 50_000,
		ttl:     24 * time.Hour,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.expire(now)
	if _, ok := d.index[id]; ok {
		return true
	}
	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.remove(d.order.Front())
	}
	d.index[id] = d.order.PushBack(entry{id: id, seen: now})
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.index[id]; ok {
		d.remove(el)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(d.order.Len())
}

// expire drops ids recorded more than ttl ago. Entries are in time order so
// it stops at the first live one.
func (d *inMemoryDeduper) expire(now time.Time) {
	if d.ttl <= 0 {
		return
	}
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if now.Sub(el.Value.(entry).seen) < d.ttl {
			return
		}
		d.remove(el)
	}
}

func (d *inMemoryDeduper) remove(el *list.Element) {
	delete(d.index, el.Value.(entry).id)
	d.order.Remove(el)
}
