package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/pkg/logger"
)

// ErrPoolTooSmall is returned when the pool cannot hold a lock connection
// and still serve the queries made under that lock.
var ErrPoolTooSmall = errors.New("connection pool too small for advisory locks")

// AdvisoryLocker serializes band recomputation across processes with
// session-level advisory locks keyed by hashtext(band id).
//
// Each held lock pins one pooled connection, so at most MaxOpenConnections-1
// locks are held at once and the queries run under them always find a free
// connection.
type AdvisoryLocker struct {
	db     *sql.DB
	slots  chan struct{}
	logger logger.Logger
}

// NewAdvisoryLocker creates a locker on db. The pool limit must already be
// set; an unlimited pool leaves lock holders uncapped.
func NewAdvisoryLocker(db *sql.DB) (*AdvisoryLocker, error) {
	a := &AdvisoryLocker{db: db, logger: logger.Get().Named("advisory-lock")}
	switch n := db.Stats().MaxOpenConnections; {
	case n == 0:
	case n < 2:
		return nil, fmt.Errorf("%w: max open conns %d, need at least 2", ErrPoolTooSmall, n)
	default:
		a.slots = make(chan struct{}, n-1)
	}
	return a, nil
}

// Slots returns how many locks may be held at once, 0 meaning unbounded.
func (a *AdvisoryLocker) Slots() int { return cap(a.slots) }

func (a *AdvisoryLocker) acquire(ctx context.Context) error {
	if a.slots == nil {
		return nil
	}
	select {
	case a.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *AdvisoryLocker) release() {
	if a.slots != nil {
		<-a.slots
	}
}

// Lock blocks until the band's advisory lock is held or ctx is done. The
// lock lives on a dedicated connection that is returned to the pool on unlock.
func (a *AdvisoryLocker) Lock(ctx context.Context, b band.ID) (func(), error) {
	if err := a.acquire(ctx); err != nil {
		return nil, fmt.Errorf("wait for lock slot %s: %w", b, err)
	}
	conn, err := a.db.Conn(ctx)
	if err != nil {
		a.release()
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock(hashtext($1))`, string(b)); err != nil {
		_ = conn.Close()
		a.release()
		return nil, fmt.Errorf("advisory lock %s: %w", b, err)
	}
	return func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, string(b)); err != nil {
			a.logger.Error(context.Background(), "advisory unlock failed", logger.String("band", string(b)), logger.Error(err))
			// Drop the session so the server releases the lock.
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
		a.release()
	}, nil
}
