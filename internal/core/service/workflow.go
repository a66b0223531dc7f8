package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

func listingKey(id int64) string { return fmt.Sprintf("listing:%d", id) }
func orderKey(id int64) string   { return fmt.Sprintf("order:%d", id) }

// withLock runs fn while holding key.
func withLock(ctx context.Context, locker port.Locker, key string, fn func() error) error {
	unlock, err := locker.Lock(ctx, key)
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	defer unlock()
	return fn()
}

func requireAdmin(ctx context.Context, users port.UserRepository, userID int64) error {
	ok, err := users.IsAdmin(ctx, userID)
	if err != nil {
		return fmt.Errorf("check admin: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: user %d is not an admin", domain.ErrUnauthorized, userID)
	}
	return nil
}

// effect is a best-effort side effect run after a state change has committed.
type effect struct {
	name string
	run  func(ctx context.Context) error
}

// runEffects executes every effect regardless of earlier failures and
// returns how many succeeded. Failures are logged, never returned.
func runEffects(ctx context.Context, log *slog.Logger, attrs []any, effects ...effect) int {
	ok := 0
	for _, e := range effects {
		if err := e.run(ctx); err != nil {
			log.WarnContext(ctx, "side effect failed", append([]any{"effect", e.name, "err", err}, attrs...)...)
			continue
		}
		ok++
	}
	return ok
}

func sendEffect(n port.Notifier, name string, userID int64, content domain.Content) effect {
	return effect{name: name, run: func(ctx context.Context) error {
		_, err := n.Send(ctx, userID, content)
		return err
	}}
}

func deleteEffect(n port.Notifier, ref domain.MessageRef) effect {
	return effect{name: "delete action message", run: func(ctx context.Context) error {
		return n.Delete(ctx, ref)
	}}
}

func transportErr(op string, err error) error {
	if errors.Is(err, domain.ErrTransport) {
		return err
	}
	return domain.TransportFailure(op, err)
}

func discardIfNil(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return log
}
