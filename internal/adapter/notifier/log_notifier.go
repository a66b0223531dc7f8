package notifier

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

// LogNotifier writes every delivery to the log instead of a chat transport.
// Message ids are allocated from a counter so edits and deletes can refer back.
type LogNotifier struct {
	log    *slog.Logger
	nextID atomic.Int64
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) id() int {
	return int(n.nextID.Add(1))
}

func (n *LogNotifier) Send(ctx context.Context, userID int64, c domain.Content) (domain.MessageRef, error) {
	ref := domain.MessageRef{ChatID: userID, MessageID: n.id()}
	n.log.InfoContext(ctx, "send", "chat_id", userID, "message_id", ref.MessageID, "text", c.Text, "photo", c.Photo)
	return ref, nil
}

func (n *LogNotifier) Edit(ctx context.Context, ref domain.MessageRef, c domain.Content) error {
	n.log.InfoContext(ctx, "edit", "chat_id", ref.ChatID, "message_id", ref.MessageID, "text", c.Text)
	return nil
}

func (n *LogNotifier) Delete(ctx context.Context, ref domain.MessageRef) error {
	n.log.InfoContext(ctx, "delete", "chat_id", ref.ChatID, "message_id", ref.MessageID)
	return nil
}

func (n *LogNotifier) PublishToChannel(ctx context.Context, c domain.Content) (int, error) {
	id := n.id()
	n.log.InfoContext(ctx, "publish", "message_id", id, "text", c.Text, "photo", c.Photo)
	return id, nil
}

func (n *LogNotifier) EditChannel(ctx context.Context, messageID int, c domain.Content) error {
	n.log.InfoContext(ctx, "edit channel", "message_id", messageID, "text", c.Text)
	return nil
}

func (n *LogNotifier) DeleteChannel(ctx context.Context, messageID int) error {
	n.log.InfoContext(ctx, "delete channel", "message_id", messageID)
	return nil
}

func (n *LogNotifier) PinChannel(ctx context.Context, messageID int) error {
	n.log.InfoContext(ctx, "pin channel", "message_id", messageID)
	return nil
}

func (n *LogNotifier) UnpinAllChannel(ctx context.Context) error {
	n.log.InfoContext(ctx, "unpin channel")
	return nil
}
