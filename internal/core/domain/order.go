package domain

import "time"

type OrderStatus string

const (
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCanceled   OrderStatus = "canceled"
)

var orderNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusInProgress: {OrderStatusCompleted: true, OrderStatusCanceled: true},
}

func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return orderNext[s][next]
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCanceled
}

type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

func (r Role) Valid() bool {
	return r == RoleSeller || r == RoleBuyer
}

type Order struct {
	ID              int64       `json:"id"`
	ListingID       int64       `json:"listing_id"`
	SellerID        int64       `json:"seller_id"`
	BuyerID         int64       `json:"buyer_id"`
	Status          OrderStatus `json:"status"`
	SellerConfirmed bool        `json:"seller_confirmed"`
	BuyerConfirmed  bool        `json:"buyer_confirmed"`
	SellerMessageID int         `json:"seller_message_id"`
	BuyerMessageID  int         `json:"buyer_message_id"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// RoleOf returns the role userID plays in the order.
func (o Order) RoleOf(userID int64) (Role, bool) {
	switch userID {
	case o.SellerID:
		return RoleSeller, true
	case o.BuyerID:
		return RoleBuyer, true
	}
	return "", false
}

func (o Order) PartyID(role Role) int64 {
	if role == RoleSeller {
		return o.SellerID
	}
	return o.BuyerID
}

func (o Order) Counterparty(userID int64) int64 {
	if userID == o.BuyerID {
		return o.SellerID
	}
	return o.BuyerID
}

func (o Order) BothConfirmed() bool {
	return o.SellerConfirmed && o.BuyerConfirmed
}

// ActionMessages returns the in-chat action messages recorded for both parties.
func (o Order) ActionMessages() []MessageRef {
	var refs []MessageRef
	if o.SellerMessageID != 0 {
		refs = append(refs, MessageRef{ChatID: o.SellerID, MessageID: o.SellerMessageID})
	}
	if o.BuyerMessageID != 0 {
		refs = append(refs, MessageRef{ChatID: o.BuyerID, MessageID: o.BuyerMessageID})
	}
	return refs
}
