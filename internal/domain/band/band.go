// Package band partitions listings into comparison bands by room count and
// price-per-area range.
package band

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// ID names a band, e.g. "1-room_1800-1900". The empty ID means unclassified.
type ID string

// Interval is a half-open price-per-area range [Min, Max).
type Interval struct {
	Label string  `koanf:"label" json:"label"`
	Min   float64 `koanf:"min" json:"min"`
	Max   float64 `koanf:"max" json:"max"`
}

// Contains reports whether v falls inside the interval.
func (i Interval) Contains(v float64) bool {
	return v >= i.Min && v < i.Max
}

// Config describes the band grid. It is a value passed to every call.
type Config struct {
	RoomCounts []int      `json:"room_counts"`
	Intervals  []Interval `json:"intervals"`
}

// Default grid bounds.
const (
	DefaultMin  = 1700.0
	DefaultMax  = 2400.0
	DefaultStep = 100.0
)

const boundPrecision = 1e9

// DefaultConfig returns rooms {1,2,3} with 100 USD steps from 1700 to 2400.
func DefaultConfig() Config {
	cfg, _ := StepConfig([]int{1, 2, 3}, DefaultMin, DefaultMax, DefaultStep)
	return cfg
}

// StepConfig builds a grid of equal-width intervals labelled "<min>-<max>".
func StepConfig(rooms []int, minPrice, maxPrice, step float64) (Config, error) {
	if step <= 0 || minPrice >= maxPrice {
		return Config{}, fmt.Errorf("%w: min=%v max=%v step=%v", ErrInvalidConfig, minPrice, maxPrice, step)
	}
	n := int(math.Ceil(roundBound((maxPrice - minPrice) / step)))
	intervals := make([]Interval, 0, n)
	for i := range n {
		lo := roundBound(minPrice + float64(i)*step)
		hi := min(roundBound(minPrice+float64(i+1)*step), maxPrice)
		intervals = append(intervals, Interval{Label: formatBound(lo) + "-" + formatBound(hi), Min: lo, Max: hi})
	}
	cfg := Config{RoomCounts: append([]int(nil), rooms...), Intervals: intervals}
	return cfg, cfg.Validate()
}

// roundBound drops float noise from computed bounds so 0.1+2*0.1 is 0.3.
func roundBound(v float64) float64 {
	return math.Round(v*boundPrecision) / boundPrecision
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Validate checks that room counts are unique and the intervals are
// contiguous, ordered and non-overlapping.
func (c Config) Validate() error {
	if len(c.RoomCounts) == 0 {
		return fmt.Errorf("%w: no room counts", ErrInvalidConfig)
	}
	seen := make(map[int]struct{}, len(c.RoomCounts))
	for _, r := range c.RoomCounts {
		if r <= 0 {
			return fmt.Errorf("%w: room count %d", ErrInvalidConfig, r)
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("%w: duplicate room count %d", ErrInvalidConfig, r)
		}
		seen[r] = struct{}{}
	}
	if len(c.Intervals) == 0 {
		return fmt.Errorf("%w: no intervals", ErrInvalidConfig)
	}
	labels := make(map[string]struct{}, len(c.Intervals))
	for i, iv := range c.Intervals {
		if iv.Label == "" {
			return fmt.Errorf("%w: interval %d has no label", ErrInvalidConfig, i)
		}
		if _, dup := labels[iv.Label]; dup {
			return fmt.Errorf("%w: duplicate label %q", ErrInvalidConfig, iv.Label)
		}
		labels[iv.Label] = struct{}{}
		if iv.Min >= iv.Max {
			return fmt.Errorf("%w: interval %q is empty", ErrInvalidConfig, iv.Label)
		}
		if i > 0 && c.Intervals[i-1].Max != iv.Min {
			return fmt.Errorf("%w: interval %q does not start where %q ends", ErrInvalidConfig, iv.Label, c.Intervals[i-1].Label)
		}
	}
	return nil
}

// Classify maps a listing's room count and price per area to its band.
// It returns false when the room count is not configured or the price falls
// outside every interval.
func Classify(rooms int, pricePerArea float64, cfg Config) (ID, bool) {
	if !hasRooms(cfg, rooms) {
		return "", false
	}
	for _, iv := range cfg.Intervals {
		if iv.Contains(pricePerArea) {
			return MakeID(rooms, iv.Label), true
		}
	}
	return "", false
}

// MakeID formats a band id.
func MakeID(rooms int, label string) ID {
	return ID(strconv.Itoa(rooms) + "-room_" + label)
}

// AllIDs enumerates every band ordered by room count, then interval.
func AllIDs(cfg Config) []ID {
	rooms := append([]int(nil), cfg.RoomCounts...)
	sort.Ints(rooms)
	ids := make([]ID, 0, len(rooms)*len(cfg.Intervals))
	for _, r := range rooms {
		for _, iv := range cfg.Intervals {
			ids = append(ids, MakeID(r, iv.Label))
		}
	}
	return ids
}

// Known reports whether id belongs to the configured grid.
func Known(id ID, cfg Config) bool {
	for _, candidate := range AllIDs(cfg) {
		if candidate == id {
			return true
		}
	}
	return false
}

func hasRooms(cfg Config, rooms int) bool {
	for _, r := range cfg.RoomCounts {
		if r == rooms {
			return true
		}
	}
	return false
}
