package port

import (
	"context"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

// Missing rows are reported as domain.ErrNotFound, failed conditional
// transitions as a *domain.StateError, everything else as domain.ErrStorage.

type ListingRepository interface {
	// CreateListing persists a pending listing and returns it with its assigned ID
	CreateListing(ctx context.Context, listing domain.Listing) (domain.Listing, error)

	GetListing(ctx context.Context, id int64) (domain.Listing, error)

	// MarkApproved moves a pending listing to approved and records its channel post
	MarkApproved(ctx context.Context, id int64, channelMessageID int) error

	// MarkRejected moves a pending listing to rejected
	MarkRejected(ctx context.Context, id int64) error

	DeleteListing(ctx context.Context, id int64) error

	ListListings(ctx context.Context, status domain.ListingStatus) ([]domain.Listing, error)

	// CatalogPage returns approved listings of kind, newest first
	CatalogPage(ctx context.Context, kind domain.ListingKind, offset, limit int) ([]domain.Listing, error)
}

type OrderRepository interface {
	// CreateOrder inserts an in-progress order unless either party already has one
	CreateOrder(ctx context.Context, order domain.Order) (domain.Order, error)

	GetOrder(ctx context.Context, id int64) (domain.Order, error)

	// ActiveOrderByUser returns the in-progress order userID is a party to
	ActiveOrderByUser(ctx context.Context, userID int64) (domain.Order, error)

	ListActiveOrders(ctx context.Context) ([]domain.Order, error)

	SetActionMessages(ctx context.Context, orderID int64, sellerMessageID, buyerMessageID int) error

	// Confirm atomically sets the role's flag on an in-progress order and returns the updated order
	Confirm(ctx context.Context, orderID int64, role domain.Role) (domain.Order, error)

	// CompleteOrder moves an in-progress order to completed and its listing to sold
	CompleteOrder(ctx context.Context, orderID int64) (domain.Order, error)

	// CancelOrder moves an in-progress order to canceled
	CancelOrder(ctx context.Context, orderID int64) (domain.Order, error)
}

type UserRepository interface {
	// EnsureUser creates the eligibility record with can_sell=true if absent and returns the flag
	EnsureUser(ctx context.Context, userID int64) (bool, error)

	SetCanSell(ctx context.Context, userID int64, canSell bool) error

	ListUserIDs(ctx context.Context) ([]int64, error)

	IsAdmin(ctx context.Context, userID int64) (bool, error)
	ListAdmins(ctx context.Context) ([]domain.Admin, error)
	AddAdmin(ctx context.Context, admin domain.Admin) error
	RemoveAdmin(ctx context.Context, userID int64) error
}

type AdRepository interface {
	CreateAd(ctx context.Context, ad domain.Ad) (domain.Ad, error)
	GetAd(ctx context.Context, id int64) (domain.Ad, error)
	SetAdChannelMessage(ctx context.Context, id int64, channelMessageID int) error
	DeleteAd(ctx context.Context, id int64) error
}

type ReportRepository interface {
	Stats(ctx context.Context) (domain.Stats, error)
	UserSummary(ctx context.Context, userID int64) (domain.UserSummary, error)
	TopSellers(ctx context.Context, limit int) ([]domain.RankEntry, error)
	TopBuyers(ctx context.Context, limit int) ([]domain.RankEntry, error)
}

type Store interface {
	ListingRepository
	OrderRepository
	UserRepository
	AdRepository
	ReportRepository
}
