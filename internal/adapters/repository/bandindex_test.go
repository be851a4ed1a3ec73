package repository

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func member(id model.ListingID, b string, rating float64) model.RatedListing {
	r := model.NewRating()
	r.Rating = rating
	return model.RatedListing{
		Listing: model.Listing{ID: id, Band: band.ID(b), Status: model.StatusEligible, Active: true},
		Rating:  r,
	}
}

func TestBandIndex(t *testing.T) {
	Convey("Given a band index under random churn", t, func() {
		x := newBandIndex(rand.New(rand.NewSource(42)))
		rng := rand.New(rand.NewSource(7))
		want := map[model.ListingID]float64{}

		for i := 0; i < 2000; i++ {
			id := model.ListingID(rng.Intn(200) + 1)
			if rng.Intn(5) == 0 {
				x.remove(id)
				delete(want, id)
				continue
			}
			rating := float64(1400 + rng.Intn(20)*10)
			x.sync(member(id, "x", rating))
			want[id] = rating
		}

		Convey("Then traversal matches a sorted reference", func() {
			ids := make([]model.ListingID, 0, len(want))
			for id := range want {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool {
				if want[ids[i]] != want[ids[j]] {
					return want[ids[i]] > want[ids[j]]
				}
				return ids[i] < ids[j]
			})
			So(x.ranked("x"), ShouldResemble, ids)
			So(x.size("x"), ShouldEqual, len(ids))
		})

		Convey("Then a non-comparable listing is dropped from the index", func() {
			m := member(1000, "x", 1500)
			x.sync(m)
			before := x.size("x")
			m.Active = false
			x.sync(m)
			So(x.size("x"), ShouldEqual, before-1)
		})
	})
}
