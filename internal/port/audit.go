package port

import (
	"context"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

type AuditLog interface {
	Append(ctx context.Context, entry domain.AuditEntry) error

	// Entries returns one user's stream for day (YYYY-MM-DD), oldest first
	Entries(ctx context.Context, userID int64, day string) ([]domain.AuditEntry, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}
