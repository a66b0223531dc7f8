package domain

import (
	"fmt"
	"strings"
)

// DraftStep tags which field a listing draft is waiting for.
// Steps are captured strictly in declaration order.
type DraftStep int

const (
	StepName DraftStep = iota + 1
	StepDescription
	StepPrice
	StepContact
	StepPhoto
	StepDone
)

func (s DraftStep) String() string {
	switch s {
	case StepName:
		return "name"
	case StepDescription:
		return "description"
	case StepPrice:
		return "price"
	case StepContact:
		return "contact"
	case StepPhoto:
		return "photo"
	case StepDone:
		return "done"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Draft is the partial listing accumulated by the submission session.
type Draft struct {
	Step        DraftStep   `json:"step"`
	Kind        ListingKind `json:"kind"`
	Name        string      `json:"name,omitempty"`
	Description string      `json:"description,omitempty"`
	Price       string      `json:"price,omitempty"`
	Contact     string      `json:"contact,omitempty"`
	Photo       string      `json:"photo,omitempty"`
}

func NewDraft(kind ListingKind) Draft {
	return Draft{Step: StepName, Kind: kind}
}

func (d Draft) Done() bool {
	return d.Step == StepDone
}

// Capture records in as the value of the current step and advances.
// The photo step accepts a photo or skipWord (case-insensitive); text steps accept text only.
// On error the draft is returned unchanged.
func (d Draft) Capture(in Incoming, skipWord string) (Draft, error) {
	text := strings.TrimSpace(in.Text)

	switch d.Step {
	case StepName, StepDescription, StepPrice, StepContact:
		if text == "" {
			return d, fmt.Errorf("%w: %s must be text", ErrValidation, d.Step)
		}
	}

	next := d
	switch d.Step {
	case StepName:
		next.Name = text
	case StepDescription:
		next.Description = text
	case StepPrice:
		next.Price = text
	case StepContact:
		next.Contact = text
	case StepPhoto:
		switch {
		case in.Photo != "":
			next.Photo = in.Photo
		case text != "" && strings.EqualFold(text, skipWord):
		default:
			return d, fmt.Errorf("%w: send a photo or %q", ErrValidation, skipWord)
		}
	default:
		return d, fmt.Errorf("%w: draft is %s", ErrInvalidState, d.Step)
	}
	next.Step++
	return next, nil
}

// Listing materializes a completed draft as a pending listing.
func (d Draft) Listing(sellerID int64) Listing {
	return Listing{
		SellerID:    sellerID,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		Contact:     d.Contact,
		Photo:       d.Photo,
		Kind:        d.Kind,
		Status:      ListingStatusPending,
	}
}
