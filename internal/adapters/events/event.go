// Package events fans out pipeline notifications to websocket subscribers.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/okian/flatrank/internal/domain/band"
	"github.com/okian/flatrank/internal/domain/model"
)

// Type names a notification.
type Type string

const (
	TypeScrapeSuccess       Type = "scrape.success"
	TypeScrapeError         Type = "scrape.error"
	TypeRatingsRecalculated Type = "ratings.recalculated"
	TypeListingWithdrawn    Type = "listing.withdrawn"
)

// Event is one notification.
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	ListingID model.ListingID `json:"listing_id,omitempty"`
	Band      band.ID         `json:"band,omitempty"`
	Message   string          `json:"message,omitempty"`
	Data      any             `json:"data,omitempty"`
	At        time.Time       `json:"at"`
}

// New builds an event stamped with a fresh id and the current time.
func New(t Type, id model.ListingID, b band.ID) Event {
	return Event{ID: uuid.NewString(), Type: t, ListingID: id, Band: b, At: time.Now().UTC()}
}

// WithMessage returns a copy of e carrying msg.
func (e Event) WithMessage(msg string) Event {
	e.Message = msg
	return e
}

// WithData returns a copy of e carrying data.
func (e Event) WithData(data any) Event {
	e.Data = data
	return e
}
