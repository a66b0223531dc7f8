package port

import (
	"context"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

type Locker interface {
	// Lock blocks until key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (func(), error)
}

type SessionRepository interface {
	// GetDraft returns the user's submission draft, or false if none is open
	GetDraft(ctx context.Context, userID int64) (domain.Draft, bool, error)
	SaveDraft(ctx context.Context, userID int64, draft domain.Draft) error
	ClearDraft(ctx context.Context, userID int64) error

	// ChatOrder returns the order the user's free-text messages route to, or 0
	ChatOrder(ctx context.Context, userID int64) (int64, error)
	SetChatOrder(ctx context.Context, userID, orderID int64) error
	ClearChatOrder(ctx context.Context, userID int64) error
}

type UpdateDeduper interface {
	// MarkUpdate records an inbound update id, returns false if it was already seen
	MarkUpdate(ctx context.Context, updateID int) (bool, error)
	// ForgetUpdate drops the mark so a redelivery is accepted again.
	ForgetUpdate(ctx context.Context, updateID int) error
}
