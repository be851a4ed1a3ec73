package glicko_test

import (
	"math"
	"testing"
	"time"

	"github.com/okian/flatrank/internal/domain/glicko"
	"github.com/okian/flatrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func fresh(ids ...model.ListingID) []glicko.State {
	out := make([]glicko.State, len(ids))
	for i, id := range ids {
		out[i] = glicko.State{ID: id, Rating: model.NewRating()}
	}
	return out
}

func beat(w, l model.ListingID) model.Outcome {
	return model.NewOutcome(w, l, time.Unix(0, 0))
}

func byID(states []glicko.State) map[model.ListingID]model.Rating {
	m := make(map[model.ListingID]model.Rating, len(states))
	for _, s := range states {
		m[s.ID] = s.Rating
	}
	return m
}

func TestGlickmanExample(t *testing.T) {
	Convey("Given the worked example from Glickman's Glicko-2 paper", t, func() {
		states := []glicko.State{
			{ID: 1, Rating: model.Rating{Rating: 1500, Deviation: 200, Volatility: 0.06}},
			{ID: 2, Rating: model.Rating{Rating: 1400, Deviation: 30, Volatility: 0.06}},
			{ID: 3, Rating: model.Rating{Rating: 1550, Deviation: 100, Volatility: 0.06}},
			{ID: 4, Rating: model.Rating{Rating: 1700, Deviation: 300, Volatility: 0.06}},
		}
		outcomes := []model.Outcome{beat(1, 2), beat(3, 1), beat(4, 1)}

		Convey("When one rating period is run", func() {
			out := byID(glicko.New(glicko.WithTau(0.5)).Recompute(states, outcomes))

			Convey("Then player one matches the published result", func() {
				So(out[1].Rating, ShouldAlmostEqual, 1464.06, 0.01)
				So(out[1].Deviation, ShouldAlmostEqual, 151.52, 0.01)
				So(out[1].Volatility, ShouldAlmostEqual, 0.05999, 0.00001)
			})
		})
	})
}

func TestRecompute(t *testing.T) {
	Convey("Given an engine with default parameters", t, func() {
		engine := glicko.New()

		Convey("When one listing beats another from fresh states", func() {
			out := byID(engine.Recompute(fresh(1, 2), []model.Outcome{beat(1, 2)}))

			Convey("Then the winner rises and the loser falls symmetrically", func() {
				So(out[1].Rating, ShouldBeGreaterThan, 1500)
				So(out[2].Rating, ShouldBeLessThan, 1500)
				So(out[1].Rating-1500, ShouldAlmostEqual, 1500-out[2].Rating, 1e-9)
			})

			Convey("Then both deviations shrink", func() {
				So(out[1].Deviation, ShouldBeLessThan, 350)
				So(out[2].Deviation, ShouldBeLessThan, 350)
			})
		})

		Convey("When a member has no outcomes", func() {
			in := fresh(1, 2, 3)
			in[2].Rating = model.Rating{Rating: 1600, Deviation: 80, Volatility: 0.07}
			out := engine.Recompute(in, []model.Outcome{beat(1, 2)})

			Convey("Then it is returned unchanged", func() {
				So(out[2], ShouldResemble, in[2])
			})
		})

		Convey("When outcomes reference ids outside the members", func() {
			out := engine.Recompute(fresh(1, 2), []model.Outcome{beat(1, 99), beat(42, 2), beat(1, 1)})

			Convey("Then they are ignored", func() {
				So(out, ShouldResemble, fresh(1, 2))
			})
		})

		Convey("When the outcome order is shuffled", func() {
			a := engine.Recompute(fresh(1, 2, 3), []model.Outcome{beat(1, 2), beat(2, 3), beat(1, 3)})
			b := engine.Recompute(fresh(1, 2, 3), []model.Outcome{beat(1, 3), beat(1, 2), beat(2, 3)})

			Convey("Then the result is the same", func() {
				So(a, ShouldResemble, b)
			})
		})

		Convey("When A>B, B>C and A>C are replayed", func() {
			out := byID(engine.Recompute(fresh(1, 2, 3), []model.Outcome{beat(1, 2), beat(2, 3), beat(1, 3)}))

			Convey("Then the order is A, B, C", func() {
				So(out[1].Rating, ShouldBeGreaterThan, out[2].Rating)
				So(out[2].Rating, ShouldBeGreaterThan, out[3].Rating)
			})
		})

		Convey("When a member plays many games", func() {
			var outcomes []model.Outcome
			for i := 0; i < 500; i++ {
				outcomes = append(outcomes, beat(1, 2), beat(2, 1))
			}
			out := byID(engine.Recompute(fresh(1, 2), outcomes))

			Convey("Then the deviation never drops below the floor", func() {
				So(out[1].Deviation, ShouldBeGreaterThanOrEqualTo, glicko.DefaultMinDeviation)
				So(math.IsNaN(out[1].Volatility), ShouldBeFalse)
			})
		})
	})

	Convey("Given custom deviation bounds", t, func() {
		engine := glicko.New(glicko.WithDeviationBounds(100, 200), glicko.WithEpsilon(1e-8))
		out := byID(engine.Recompute(fresh(1, 2), []model.Outcome{beat(1, 2)}))

		Convey("Then deviations are clamped into range", func() {
			So(out[1].Deviation, ShouldBeBetweenOrEqual, 100, 200)
		})
	})

	Convey("Given invalid options", t, func() {
		engine := glicko.New(glicko.WithTau(-1), glicko.WithDeviationBounds(10, 5))
		So(engine.Tau(), ShouldEqual, glicko.DefaultTau)
	})
}

func TestWinProbability(t *testing.T) {
	Convey("Given two ratings", t, func() {
		strong := model.Rating{Rating: 1700, Deviation: 50, Volatility: 0.06}
		weak := model.Rating{Rating: 1400, Deviation: 50, Volatility: 0.06}

		So(glicko.WinProbability(strong, weak), ShouldBeGreaterThan, 0.5)
		So(glicko.WinProbability(strong, weak)+glicko.WinProbability(weak, strong), ShouldAlmostEqual, 1, 1e-9)
		So(glicko.WinProbability(model.NewRating(), model.NewRating()), ShouldAlmostEqual, 0.5, 1e-9)
	})
}
