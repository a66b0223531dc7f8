package domain

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrValidation   = errors.New("validation error")
	ErrTransport    = errors.New("transport failure")
	ErrStorage      = errors.New("storage failure")

	ErrNotEligible     = errors.New("user may not create listings")
	ErrNoActiveOrder   = errors.New("no active order")
	ErrActiveOrder     = fmt.Errorf("%w: user already has an active order", ErrInvalidState)
	ErrSelfPurchase    = fmt.Errorf("%w: cannot buy own listing", ErrValidation)
	ErrDuplicateUpdate = errors.New("duplicate update")
)

// StateError reports an action attempted against an entity in the wrong status.
type StateError struct {
	Entity string
	ID     int64
	Status string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %d is %s", e.Entity, e.ID, e.Status)
}

func (e *StateError) Is(target error) bool {
	return target == ErrInvalidState
}

func ListingStateError(l Listing) error {
	return &StateError{Entity: "listing", ID: l.ID, Status: string(l.Status)}
}

func OrderStateError(o Order) error {
	return &StateError{Entity: "order", ID: o.ID, Status: string(o.Status)}
}

// OpError wraps an adapter failure with its taxonomy kind (ErrStorage or ErrTransport).
type OpError struct {
	Kind error
	Op   string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

func (e *OpError) Is(target error) bool {
	return target == e.Kind
}

func StorageFailure(op string, err error) error {
	return &OpError{Kind: ErrStorage, Op: op, Err: err}
}

func TransportFailure(op string, err error) error {
	return &OpError{Kind: ErrTransport, Op: op, Err: err}
}
