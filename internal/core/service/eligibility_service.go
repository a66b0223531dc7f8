package service

import (
	"context"
	"fmt"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

// EligibilityService gates listing creation on the per-user can_sell flag.
type EligibilityService struct {
	users port.UserRepository
}

func NewEligibilityService(users port.UserRepository) *EligibilityService {
	return &EligibilityService{users: users}
}

// CanSell reports whether userID may create listings. Unknown users are
// recorded as eligible on first contact.
func (s *EligibilityService) CanSell(ctx context.Context, userID int64) (bool, error) {
	ok, err := s.users.EnsureUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("ensure user %d: %w", userID, err)
	}
	return ok, nil
}

// Check is CanSell as an error: ErrNotEligible for banned users, and the
// storage error itself when the flag cannot be read.
func (s *EligibilityService) Check(ctx context.Context, userID int64) error {
	ok, err := s.CanSell(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrNotEligible
	}
	return nil
}

func (s *EligibilityService) Ban(ctx context.Context, userID int64) error {
	return s.users.SetCanSell(ctx, userID, false)
}

func (s *EligibilityService) Unban(ctx context.Context, userID int64) error {
	return s.users.SetCanSell(ctx, userID, true)
}
