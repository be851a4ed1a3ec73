//go:build integration

package postgres_test

import (
	"context"
	"os/exec"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/okian/flatrank/internal/adapters/repository"
	"github.com/okian/flatrank/internal/adapters/repository/postgres"
	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
	"github.com/okian/flatrank/internal/domain/ranking"
	"github.com/okian/flatrank/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func dockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return exec.CommandContext(ctx, "docker", "info").Run() == nil
}

func startPostgres(t *testing.T) string {
	t.Helper()
	if !dockerAvailable() {
		t.Skip("Skipping test: Docker not available")
	}
	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("flatrank"),
		tcpostgres.WithUsername("flatrank"),
		tcpostgres.WithPassword("flatrank"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}
	if err := postgres.MigrateUp(dsn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return dsn
}

func TestStore(t *testing.T) {
	dsn := startPostgres(t)

	Convey("Given a migrated postgres store", t, func() {
		ctx := context.Background()
		store, err := postgres.Open(ctx, dsn)
		So(err, ShouldBeNil)
		defer store.Close()
		_, err = store.DB().ExecContext(ctx, `TRUNCATE comparisons, ratings, listings RESTART IDENTITY CASCADE`)
		So(err, ShouldBeNil)

		b := band.ID("2-room_1800-1900")
		add := func(url string, ppa float64) model.RatedListing {
			l, err := store.Create(ctx, url)
			So(err, ShouldBeNil)
			So(store.UpdateAttributes(ctx, l.ID, model.Attributes{Rooms: 2, Price: ppa * 50, PricePerArea: ppa, Area: 50}, b, model.StatusEligible), ShouldBeNil)
			l, err = store.FindByID(ctx, l.ID)
			So(err, ShouldBeNil)
			return l
		}

		Convey("When listings are created", func() {
			a := add("https://listings.example/a", 1850)
			_, dupErr := store.Create(ctx, "https://listings.example/a")

			Convey("Then they start pending with the default rating and urls are unique", func() {
				So(a.Rating, ShouldResemble, model.NewRating())
				So(a.Band, ShouldEqual, b)
				So(a.Status, ShouldEqual, model.StatusEligible)
				So(dupErr, ShouldWrap, repository.ErrDuplicate)
				byURL, err := store.FindByURL(ctx, a.URL)
				So(err, ShouldBeNil)
				So(byURL.ID, ShouldEqual, a.ID)
				_, err = store.FindByID(ctx, 9999)
				So(err, ShouldWrap, repository.ErrNotFound)
			})
		})

		Convey("When outcomes are appended and ratings recomputed", func() {
			a := add("https://listings.example/a", 1850)
			bb := add("https://listings.example/b", 1820)
			c := add("https://listings.example/c", 1810)
			locker, err := postgres.NewAdvisoryLocker(store.DB())
			So(err, ShouldBeNil)
			orch := ranking.New(store, store, ranking.WithLocker(locker))
			_, err = orch.RecordJudgment(ctx, a.ID, bb.ID)
			So(err, ShouldBeNil)
			_, err = orch.RecordJudgment(ctx, bb.ID, c.ID)
			So(err, ShouldBeNil)

			Convey("Then the band is ordered by rating and the log is queryable", func() {
				members, err := store.ListEligibleActiveByBand(ctx, b)
				So(err, ShouldBeNil)
				So(repository.IDs(members), ShouldResemble, []model.ListingID{a.ID, bb.ID, c.ID})

				outcomes, err := store.ListOutcomesAmong(ctx, repository.IDs(members))
				So(err, ShouldBeNil)
				So(outcomes, ShouldHaveLength, 2)
				So(outcomes[0].WinnerID, ShouldEqual, a.ID)

				keys, err := store.JudgedPairKeys(ctx, repository.IDs(members))
				So(err, ShouldBeNil)
				So(keys.Has(model.NewPairKey(bb.ID, a.ID)), ShouldBeTrue)
				So(keys.Has(model.NewPairKey(a.ID, c.ID)), ShouldBeFalse)

				n, err := store.CountByListing(ctx, bb.ID)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 2)
			})

			Convey("Then withdrawing and reactivating moves listings in and out of the band", func() {
				_, err := orch.Withdraw(ctx, bb.ID)
				So(err, ShouldBeNil)
				members, _ := store.ListEligibleActiveByBand(ctx, b)
				So(members, ShouldHaveLength, 2)
				counts, err := store.CountByStatus(ctx)
				So(err, ShouldBeNil)
				So(counts[model.StatusEligible], ShouldEqual, 2)

				So(store.Reactivate(ctx, bb.ID), ShouldBeNil)
				got, _ := store.FindByID(ctx, bb.ID)
				So(got.Active, ShouldBeTrue)
				So(got.Status, ShouldEqual, model.StatusPending)
				all, err := store.ListAll(ctx, false)
				So(err, ShouldBeNil)
				So(all, ShouldHaveLength, 3)
			})
		})

		Convey("When two goroutines take the same band's advisory lock", func() {
			locker, err := postgres.NewAdvisoryLocker(store.DB())
			So(err, ShouldBeNil)
			var (
				mu      sync.Mutex
				order   []int
				wg      sync.WaitGroup
				release = make(chan struct{})
			)
			unlock, err := locker.Lock(ctx, b)
			So(err, ShouldBeNil)
			wg.Add(1)
			go func() {
				defer wg.Done()
				u, err := locker.Lock(ctx, b)
				if err != nil {
					return
				}
				mu.Lock()
				order = append(order, 2)
				mu.Unlock()
				u()
			}()
			go func() {
				time.Sleep(100 * time.Millisecond)
				mu.Lock()
				order = append(order, 1)
				mu.Unlock()
				unlock()
				close(release)
			}()
			<-release
			wg.Wait()

			Convey("Then the second waits for the first", func() {
				So(order, ShouldResemble, []int{1, 2})
			})
		})
	})
}
