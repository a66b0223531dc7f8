package domain

import (
	"fmt"
	"strings"
	"time"
)

type ListingStatus string

const (
	ListingStatusPending  ListingStatus = "pending"
	ListingStatusApproved ListingStatus = "approved"
	ListingStatusRejected ListingStatus = "rejected"
	ListingStatusSold     ListingStatus = "sold"
)

var listingNext = map[ListingStatus]map[ListingStatus]bool{
	ListingStatusPending:  {ListingStatusApproved: true, ListingStatusRejected: true},
	ListingStatusApproved: {ListingStatusSold: true},
}

func ParseListingStatus(s string) (ListingStatus, error) {
	switch st := ListingStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ListingStatusPending, ListingStatusApproved, ListingStatusRejected, ListingStatusSold:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown listing status %q", ErrValidation, s)
}

// CanTransition reports whether a listing may move from s to next.
func (s ListingStatus) CanTransition(next ListingStatus) bool {
	return listingNext[s][next]
}

type ListingKind string

const (
	ListingKindProduct ListingKind = "product"
	ListingKindService ListingKind = "service"
)

func ParseListingKind(s string) (ListingKind, error) {
	switch k := ListingKind(s); k {
	case ListingKindProduct, ListingKindService:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown listing kind %q", ErrValidation, s)
}

func (k ListingKind) Label() string {
	if k == ListingKindService {
		return "Service"
	}
	return "Product"
}

type Listing struct {
	ID               int64         `json:"id"`
	SellerID         int64         `json:"seller_id"`
	Name             string        `json:"name"`
	Description      string        `json:"description"`
	Price            string        `json:"price"`
	Contact          string        `json:"contact"`
	Photo            string        `json:"photo"`
	Kind             ListingKind   `json:"kind"`
	Status           ListingStatus `json:"status"`
	ChannelMessageID int           `json:"channel_message_id"` // zero until published
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

func (l Listing) Published() bool {
	return l.ChannelMessageID != 0
}
