package band_test

import (
	"errors"
	"testing"

	"github.com/okian/flatrank/internal/domain/band"
	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("Given the default band grid", t, func() {
		cfg := band.DefaultConfig()

		Convey("When the price is inside an interval", func() {
			id, ok := band.Classify(1, 1850, cfg)

			Convey("Then the band id names rooms and label", func() {
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, band.ID("1-room_1800-1900"))
			})
		})

		Convey("When the price sits exactly on a boundary", func() {
			id, ok := band.Classify(2, 1900, cfg)

			Convey("Then it belongs to the upper interval", func() {
				So(ok, ShouldBeTrue)
				So(id, ShouldEqual, band.ID("2-room_1900-2000"))
			})
		})

		Convey("When the price is at the lowest bound", func() {
			id, ok := band.Classify(3, 1700, cfg)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, band.ID("3-room_1700-1800"))
		})

		Convey("When the price is outside the grid", func() {
			_, below := band.Classify(1, 1699.99, cfg)
			_, atTop := band.Classify(1, 2400, cfg)
			_, above := band.Classify(1, 5000, cfg)

			Convey("Then it is unclassified", func() {
				So(below, ShouldBeFalse)
				So(atTop, ShouldBeFalse)
				So(above, ShouldBeFalse)
			})
		})

		Convey("When the room count is not configured", func() {
			_, ok := band.Classify(4, 1850, cfg)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestAllIDs(t *testing.T) {
	Convey("Given the default band grid", t, func() {
		ids := band.AllIDs(band.DefaultConfig())

		Convey("Then it enumerates rooms then intervals in order", func() {
			So(len(ids), ShouldEqual, 21)
			So(ids[0], ShouldEqual, band.ID("1-room_1700-1800"))
			So(ids[6], ShouldEqual, band.ID("1-room_2300-2400"))
			So(ids[7], ShouldEqual, band.ID("2-room_1700-1800"))
			So(ids[20], ShouldEqual, band.ID("3-room_2300-2400"))
		})

		Convey("Then every classified id is known", func() {
			cfg := band.DefaultConfig()
			id, _ := band.Classify(2, 2250, cfg)
			So(band.Known(id, cfg), ShouldBeTrue)
			So(band.Known("9-room_x", cfg), ShouldBeFalse)
		})
	})

	Convey("Given unsorted room counts", t, func() {
		cfg, err := band.StepConfig([]int{3, 1}, 1000, 1200, 100)
		So(err, ShouldBeNil)
		So(band.AllIDs(cfg), ShouldResemble, []band.ID{
			"1-room_1000-1100", "1-room_1100-1200", "3-room_1000-1100", "3-room_1100-1200",
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given band configs", t, func() {
		Convey("When the step does not divide the range", func() {
			cfg, err := band.StepConfig([]int{1}, 1000, 1250, 100)
			So(err, ShouldBeNil)
			So(cfg.Intervals[len(cfg.Intervals)-1].Label, ShouldEqual, "1200-1250")
		})

		Convey("When the step is a fraction that floats cannot represent", func() {
			cfg, err := band.StepConfig([]int{1}, 0.1, 0.4, 0.1)
			So(err, ShouldBeNil)
			So(band.AllIDs(cfg), ShouldResemble, []band.ID{"1-room_0.1-0.2", "1-room_0.2-0.3", "1-room_0.3-0.4"})
			id, ok := band.Classify(1, 0.3, cfg)
			So(ok, ShouldBeTrue)
			So(id, ShouldEqual, band.ID("1-room_0.3-0.4"))
		})

		Convey("When the config is malformed", func() {
			cases := []band.Config{
				{},
				{RoomCounts: []int{1}},
				{RoomCounts: []int{1, 1}, Intervals: []band.Interval{{Label: "a", Min: 0, Max: 1}}},
				{RoomCounts: []int{0}, Intervals: []band.Interval{{Label: "a", Min: 0, Max: 1}}},
				{RoomCounts: []int{1}, Intervals: []band.Interval{{Label: "a", Min: 1, Max: 1}}},
				{RoomCounts: []int{1}, Intervals: []band.Interval{{Label: "a", Min: 0, Max: 1}, {Label: "b", Min: 2, Max: 3}}},
				{RoomCounts: []int{1}, Intervals: []band.Interval{{Label: "a", Min: 0, Max: 1}, {Label: "a", Min: 1, Max: 2}}},
			}
			for _, c := range cases {
				So(errors.Is(c.Validate(), band.ErrInvalidConfig), ShouldBeTrue)
			}
			_, err := band.StepConfig([]int{1}, 10, 5, 1)
			So(errors.Is(err, band.ErrInvalidConfig), ShouldBeTrue)
		})
	})
}
