package port

import (
	"context"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

// Notifier delivers content over the chat transport. Failures are domain.ErrTransport.
type Notifier interface {
	Send(ctx context.Context, userID int64, content domain.Content) (domain.MessageRef, error)
	Edit(ctx context.Context, ref domain.MessageRef, content domain.Content) error
	Delete(ctx context.Context, ref domain.MessageRef) error

	PublishToChannel(ctx context.Context, content domain.Content) (int, error)
	EditChannel(ctx context.Context, messageID int, content domain.Content) error
	DeleteChannel(ctx context.Context, messageID int) error
	PinChannel(ctx context.Context, messageID int) error
	UnpinAllChannel(ctx context.Context) error
}
