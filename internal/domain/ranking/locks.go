package ranking

import (
	"context"
	"sync"

	"github.com/okian/flatrank/internal/domain/band"
)

// Locker serializes work on a band. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, b band.ID) (func(), error)
}

// KeyedMutex is an in-process Locker with one slot per band. Entries are
// dropped once no goroutine holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[band.ID]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[band.ID]*slot)}
}

// Lock blocks until the band is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, b band.ID) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[b]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[b] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-s.ch
				k.release(b, s)
			})
		}, nil
	case <-ctx.Done():
		k.release(b, s)
		return nil, ctx.Err()
	}
}

func (k *KeyedMutex) release(b band.ID, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, b)
	}
}

// Len returns the number of bands currently locked or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.slots)
}
