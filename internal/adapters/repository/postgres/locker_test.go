package postgres_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/flatrank/internal/adapters/repository/postgres"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/ranking"
	"github.com/okian/flatrank/pkg/logger"
)

// stubDriver accepts every statement and answers every query with no rows.
type stubDriver struct{}

func (stubDriver) Open(string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(string) (driver.Stmt, error) { return nil, driver.ErrSkip }
func (stubConn) Close() error                        { return nil }
func (stubConn) Begin() (driver.Tx, error)           { return stubTx{}, nil }

func (stubConn) ExecContext(context.Context, string, []driver.NamedValue) (driver.Result, error) {
	return driver.RowsAffected(1), nil
}

func (stubConn) QueryContext(context.Context, string, []driver.NamedValue) (driver.Rows, error) {
	return stubRows{}, nil
}

func (stubConn) CheckNamedValue(*driver.NamedValue) error { return nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

type stubRows struct{}

func (stubRows) Columns() []string         { return nil }
func (stubRows) Close() error              { return nil }
func (stubRows) Next([]driver.Value) error { return io.EOF }

func init() {
	_ = logger.Init()
	sql.Register("flatrank-stub", stubDriver{})
}

func openStub(maxOpen int) *sql.DB {
	db, err := sql.Open("flatrank-stub", "")
	if err != nil {
		panic(err)
	}
	db.SetMaxOpenConns(maxOpen)
	return db
}

func TestAdvisoryLockerPool(t *testing.T) {
	Convey("Given an advisory locker over a bounded pool", t, func() {
		Convey("When the pool has a single connection", func() {
			db := openStub(1)
			defer db.Close()
			_, err := postgres.NewAdvisoryLocker(db)

			Convey("Then the locker is refused", func() {
				So(err, ShouldWrap, postgres.ErrPoolTooSmall)
			})
		})

		Convey("When the pool is unbounded", func() {
			db := openStub(0)
			defer db.Close()
			locker, err := postgres.NewAdvisoryLocker(db)
			So(err, ShouldBeNil)
			So(locker.Slots(), ShouldEqual, 0)
		})

		Convey("When more bands recompute at once than the pool has connections", func() {
			db := openStub(2)
			defer db.Close()
			locker, err := postgres.NewAdvisoryLocker(db)
			So(err, ShouldBeNil)
			So(locker.Slots(), ShouldEqual, 1)

			store := postgres.New(db)
			orch := ranking.New(store, store, ranking.WithLocker(locker))
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			var wg sync.WaitGroup
			errs := make([]error, 8)
			for i := range errs {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, errs[i] = orch.RecomputeBand(ctx, band.MakeID(2, fmt.Sprintf("b%d", i)))
				}()
			}
			wg.Wait()

			Convey("Then every lock holder still reaches the store", func() {
				for _, err := range errs {
					So(err, ShouldBeNil)
				}
				So(db.Stats().InUse, ShouldEqual, 0)
			})
		})
	})
}
