package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

// AdminService holds the administrator commands that sit outside the listing
// and order state machines. Every method checks the caller against the admin table.
type AdminService struct {
	store    port.Store
	gate     *EligibilityService
	notifier port.Notifier
	audit    port.AuditLog
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func NewAdminService(store port.Store, gate *EligibilityService, notifier port.Notifier, audit port.AuditLog, log *slog.Logger) *AdminService {
	return &AdminService{
		store:    store,
		gate:     gate,
		notifier: notifier,
		audit:    audit,
		validate: validator.New(),
		log:      discardIfNil(log),
		now:      time.Now,
	}
}

// SeedAdmins adds the bootstrap admins. Existing rows are left untouched.
func (s *AdminService) SeedAdmins(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		if err := s.store.AddAdmin(ctx, domain.Admin{UserID: id, CreatedAt: s.now()}); err != nil {
			return fmt.Errorf("seed admin %d: %w", id, err)
		}
	}
	return nil
}

func (s *AdminService) ListAdmins(ctx context.Context, callerID int64) ([]domain.Admin, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return nil, err
	}
	return s.store.ListAdmins(ctx)
}

func (s *AdminService) AddAdmin(ctx context.Context, callerID, userID int64) error {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return err
	}
	return s.store.AddAdmin(ctx, domain.Admin{UserID: userID, AddedBy: callerID, CreatedAt: s.now()})
}

func (s *AdminService) RemoveAdmin(ctx context.Context, callerID, userID int64) error {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return err
	}
	admins, err := s.store.ListAdmins(ctx)
	if err != nil {
		return err
	}
	found := false
	for _, a := range admins {
		found = found || a.UserID == userID
	}
	if !found {
		return fmt.Errorf("%w: user %d is not an admin", domain.ErrNotFound, userID)
	}
	if len(admins) == 1 {
		return fmt.Errorf("%w: cannot remove the last admin", domain.ErrValidation)
	}
	return s.store.RemoveAdmin(ctx, userID)
}

func (s *AdminService) Ban(ctx context.Context, callerID, userID int64) error {
	return s.setEligibility(ctx, callerID, userID, false)
}

func (s *AdminService) Unban(ctx context.Context, callerID, userID int64) error {
	return s.setEligibility(ctx, callerID, userID, true)
}

func (s *AdminService) setEligibility(ctx context.Context, callerID, userID int64, canSell bool) error {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return err
	}
	set, text := s.gate.Ban, "🚫 You can no longer create listings."
	if canSell {
		set, text = s.gate.Unban, "✅ You can create listings again."
	}
	if err := set(ctx, userID); err != nil {
		return err
	}
	runEffects(ctx, s.log, []any{"user_id", userID}, sendEffect(s.notifier, "notify user", userID, domain.Content{Text: text}))
	return nil
}

func (s *AdminService) Listings(ctx context.Context, callerID int64, status domain.ListingStatus) ([]domain.Listing, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return nil, err
	}
	return s.store.ListListings(ctx, status)
}

func (s *AdminService) ActiveOrders(ctx context.Context, callerID int64) ([]domain.Order, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return nil, err
	}
	return s.store.ListActiveOrders(ctx)
}

func (s *AdminService) Stats(ctx context.Context, callerID int64) (domain.Stats, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return domain.Stats{}, err
	}
	return s.store.Stats(ctx)
}

func (s *AdminService) UserSummary(ctx context.Context, callerID, userID int64) (domain.UserSummary, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return domain.UserSummary{}, err
	}
	return s.store.UserSummary(ctx, userID)
}

func (s *AdminService) TopSellers(ctx context.Context, callerID int64, limit int) ([]domain.RankEntry, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return nil, err
	}
	return s.store.TopSellers(ctx, limit)
}

func (s *AdminService) TopBuyers(ctx context.Context, callerID int64, limit int) ([]domain.RankEntry, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return nil, err
	}
	return s.store.TopBuyers(ctx, limit)
}

type adInput struct {
	Text  string `validate:"required,max=4096"`
	Photo string
}

func (s *AdminService) CreateAd(ctx context.Context, callerID int64, text, photo string) (domain.Ad, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return domain.Ad{}, err
	}
	in := adInput{Text: text, Photo: photo}
	if err := s.validate.Struct(in); err != nil {
		return domain.Ad{}, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if photo != "" && captionLen(html.EscapeString(text)) > MaxCaptionLen {
		return domain.Ad{}, fmt.Errorf("%w: photo caption longer than %d characters", domain.ErrValidation, MaxCaptionLen)
	}
	return s.store.CreateAd(ctx, domain.Ad{Text: text, Photo: photo, CreatedAt: s.now()})
}

// PublishAd sends an ad to the channel or to every known user and returns the
// number of successful deliveries.
func (s *AdminService) PublishAd(ctx context.Context, callerID, adID int64, target domain.AdTarget) (int, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return 0, err
	}
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return 0, err
	}
	content := domain.Content{Text: html.EscapeString(ad.Text), Photo: ad.Photo}

	switch target {
	case domain.AdTargetChannel:
		msgID, err := s.notifier.PublishToChannel(ctx, content)
		if err != nil {
			return 0, transportErr("publish ad", err)
		}
		if err := s.store.SetAdChannelMessage(ctx, ad.ID, msgID); err != nil {
			return 1, err
		}
		return 1, nil
	case domain.AdTargetUsers:
		return s.sendAll(ctx, content)
	}
	return 0, fmt.Errorf("%w: unknown ad target %q", domain.ErrValidation, target)
}

func (s *AdminService) DeleteAd(ctx context.Context, callerID, adID int64) (channelErr error, err error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return nil, err
	}
	ad, err := s.store.GetAd(ctx, adID)
	if err != nil {
		return nil, err
	}
	if ad.ChannelMessageID != 0 {
		if err := s.notifier.DeleteChannel(ctx, ad.ChannelMessageID); err != nil {
			channelErr = transportErr("delete ad post", err)
			s.log.WarnContext(ctx, "ad post not removed", "ad_id", ad.ID, "err", err)
		}
	}
	return channelErr, s.store.DeleteAd(ctx, ad.ID)
}

func (s *AdminService) Pin(ctx context.Context, callerID, listingID int64) error {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return err
	}
	l, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		return err
	}
	if !l.Published() {
		return fmt.Errorf("%w: listing %d has no channel post", domain.ErrNotFound, listingID)
	}
	if err := s.notifier.PinChannel(ctx, l.ChannelMessageID); err != nil {
		return transportErr("pin listing", err)
	}
	return nil
}

func (s *AdminService) UnpinAll(ctx context.Context, callerID int64) error {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return err
	}
	if err := s.notifier.UnpinAllChannel(ctx); err != nil {
		return transportErr("unpin all", err)
	}
	return nil
}

// Broadcast sends text to every known user and returns how many received it.
// text is plain; markup characters are shown as typed.
func (s *AdminService) Broadcast(ctx context.Context, callerID int64, text string) (int, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return 0, err
	}
	if err := s.validate.Var(text, "required,max=4096"); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return s.sendAll(ctx, domain.Content{Text: html.EscapeString(text)})
}

func (s *AdminService) sendAll(ctx context.Context, content domain.Content) (int, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	effects := make([]effect, 0, len(ids))
	for _, id := range ids {
		effects = append(effects, sendEffect(s.notifier, "deliver to user", id, content))
	}
	return runEffects(ctx, s.log, nil, effects...), nil
}

// SendUser delivers plain text to one user.
func (s *AdminService) SendUser(ctx context.Context, callerID, userID int64, text string) error {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return err
	}
	if err := s.validate.Var(text, "required,max=4096"); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if _, err := s.notifier.Send(ctx, userID, domain.Content{Text: html.EscapeString(text)}); err != nil {
		return transportErr("send user", err)
	}
	return nil
}

// AuditEntries returns one user's message log for day (YYYY-MM-DD).
func (s *AdminService) AuditEntries(ctx context.Context, callerID, userID int64, day string) ([]domain.AuditEntry, error) {
	if err := requireAdmin(ctx, s.store, callerID); err != nil {
		return nil, err
	}
	if _, err := time.Parse(time.DateOnly, day); err != nil {
		return nil, fmt.Errorf("%w: bad day %q", domain.ErrValidation, day)
	}
	entries, err := s.audit.Entries(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no log for user %d on %s", domain.ErrNotFound, userID, day)
	}
	return entries, nil
}

// IsAdmin reports whether userID may run admin commands. Storage errors count as no.
func (s *AdminService) IsAdmin(ctx context.Context, userID int64) bool {
	err := requireAdmin(ctx, s.store, userID)
	if err != nil && !errors.Is(err, domain.ErrUnauthorized) {
		s.log.ErrorContext(ctx, "admin check failed", "user_id", userID, "err", err)
	}
	return err == nil
}
