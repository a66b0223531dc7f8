package domain

import "time"

type EventType string

const (
	EventListingSubmitted EventType = "listing.submitted"
	EventListingApproved  EventType = "listing.approved"
	EventListingRejected  EventType = "listing.rejected"
	EventListingDeleted   EventType = "listing.deleted"
	EventOrderCreated     EventType = "order.created"
	EventOrderCompleted   EventType = "order.completed"
	EventOrderCanceled    EventType = "order.canceled"
)

// Event records a committed state transition.
type Event struct {
	Type      EventType `json:"type"`
	ListingID int64     `json:"listing_id,omitempty"`
	OrderID   int64     `json:"order_id,omitempty"`
	ActorID   int64     `json:"actor_id"`
	ByAdmin   bool      `json:"by_admin,omitempty"`
	At        time.Time `json:"at"`
}
