// Package repository defines the listing store and comparison log ports and
// an in-memory implementation of both.
package repository

import (
	"context"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
)

// ListingStore provides read/write access to listings and their ratings.
type ListingStore interface {
	// Create inserts a pending, active listing with a fresh rating.
	// Returns ErrDuplicate if the URL is already known (active or not).
	Create(ctx context.Context, url string) (model.RatedListing, error)

	// FindByID returns ErrNotFound for unknown ids. Withdrawn listings are returned.
	FindByID(ctx context.Context, id model.ListingID) (model.RatedListing, error)
	// FindByURL looks a listing up by its normalized URL, withdrawn included.
	FindByURL(ctx context.Context, url string) (model.RatedListing, error)
	// ListAll returns listings ordered by id. Withdrawn ones only when includeInactive.
	ListAll(ctx context.Context, includeInactive bool) ([]model.RatedListing, error)
	// ListEligibleActiveByBand returns the comparable members of a band
	// ordered by rating desc, then id asc.
	ListEligibleActiveByBand(ctx context.Context, id band.ID) ([]model.RatedListing, error)

	// UpdateAttributes stores resolved attributes, band and status together.
	UpdateAttributes(ctx context.Context, id model.ListingID, attrs model.Attributes, b band.ID, status model.Status) error
	SetStatus(ctx context.Context, id model.ListingID, status model.Status) error
	UpdateRating(ctx context.Context, id model.ListingID, r model.Rating) error

	// Deactivate withdraws a listing. Its outcomes stay in the log.
	Deactivate(ctx context.Context, id model.ListingID) error
	// Reactivate restores a withdrawn listing with status pending.
	Reactivate(ctx context.Context, id model.ListingID) error

	// CountByStatus counts active listings per status.
	CountByStatus(ctx context.Context) (map[model.Status]int, error)
}

// ComparisonLog is the append-only record of pairwise outcomes.
type ComparisonLog interface {
	Append(ctx context.Context, o model.Outcome) error
	// ListOutcomesAmong returns outcomes whose winner and loser are both in ids,
	// oldest first.
	ListOutcomesAmong(ctx context.Context, ids []model.ListingID) ([]model.Outcome, error)
	// JudgedPairKeys returns the pairs among ids that have at least one outcome.
	JudgedPairKeys(ctx context.Context, ids []model.ListingID) (model.PairKeySet, error)
	// CountByListing counts outcomes involving id on either side.
	CountByListing(ctx context.Context, id model.ListingID) (int, error)
}

// Store bundles both ports, as provided by a single backend.
type Store interface {
	ListingStore
	ComparisonLog
	Ping(ctx context.Context) error
	Close() error
}

// IDs extracts listing ids.
func IDs(items []model.RatedListing) []model.ListingID {
	out := make([]model.ListingID, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}
