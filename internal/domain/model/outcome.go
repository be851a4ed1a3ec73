package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Outcome is one recorded pairwise judgment. Outcomes are append-only.
type Outcome struct {
	ID        uuid.UUID `json:"id"`
	WinnerID  ListingID `json:"winner_id"`
	LoserID   ListingID `json:"loser_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewOutcome builds an outcome with a fresh id.
func NewOutcome(winner, loser ListingID, at time.Time) Outcome {
	return Outcome{ID: uuid.New(), WinnerID: winner, LoserID: loser, CreatedAt: at}
}

// Key returns the unordered pair the outcome was recorded for.
func (o Outcome) Key() PairKey {
	return NewPairKey(o.WinnerID, o.LoserID)
}

// PairKey is an unordered pair of listing ids with Lo < Hi.
type PairKey struct {
	Lo ListingID
	Hi ListingID
}

// NewPairKey normalizes a pair so that NewPairKey(a, b) == NewPairKey(b, a).
func NewPairKey(a, b ListingID) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// String renders the key as "lo-hi".
func (k PairKey) String() string {
	return strconv.FormatInt(int64(k.Lo), 10) + "-" + strconv.FormatInt(int64(k.Hi), 10)
}

// ParsePairKey parses the "lo-hi" form, normalizing the order.
func ParsePairKey(s string) (PairKey, error) {
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return PairKey{}, fmt.Errorf("%w: %q", ErrInvalidPairKey, s)
	}
	a, err := strconv.ParseInt(lo, 10, 64)
	if err != nil {
		return PairKey{}, fmt.Errorf("%w: %q", ErrInvalidPairKey, s)
	}
	b, err := strconv.ParseInt(hi, 10, 64)
	if err != nil {
		return PairKey{}, fmt.Errorf("%w: %q", ErrInvalidPairKey, s)
	}
	return NewPairKey(ListingID(a), ListingID(b)), nil
}

// PairKeySet is a set of judged pairs.
type PairKeySet map[PairKey]struct{}

// Add inserts the pair.
func (s PairKeySet) Add(k PairKey) { s[k] = struct{}{} }

// Has reports whether the pair has been judged.
func (s PairKeySet) Has(k PairKey) bool {
	_, ok := s[k]
	return ok
}
