// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/okian/flatrank/internal/domain/band"
)

// ListingID identifies a listing. It never changes after creation.
type ListingID int64

// Status is the scrape lifecycle state of a listing.
type Status string

// Listing statuses.
const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusEligible   Status = "eligible"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusPending, StatusProcessing, StatusEligible, StatusFailed}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusEligible, StatusFailed:
		return true
	}
	return false
}

// Attributes are the facts resolved by the scrape pipeline.
type Attributes struct {
	Rooms        int        `json:"rooms"`
	Price        float64    `json:"price"`
	PricePerArea float64    `json:"price_per_area"`
	Area         float64    `json:"area,omitempty"`
	Location     string     `json:"location,omitempty"`
	ImageURL     string     `json:"image_url,omitempty"`
	ListedAt     *time.Time `json:"listed_at,omitempty"`
}

// Listing is a real-estate listing taking part in ranking.
type Listing struct {
	ID         ListingID  `json:"id"`
	URL        string     `json:"url"`
	Attributes Attributes `json:"attributes"`
	Band       band.ID    `json:"band,omitempty"` // empty when unclassified
	Status     Status     `json:"status"`
	Active     bool       `json:"active"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Comparable reports whether the listing takes part in pairing and ranking.
func (l Listing) Comparable() bool {
	return l.Active && l.Status == StatusEligible && l.Band != ""
}

// RatedListing is a listing joined with its rating record.
type RatedListing struct {
	Listing
	Rating Rating `json:"rating"`
}
