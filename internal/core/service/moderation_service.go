package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

type ModerationService struct {
	store       port.Store
	notifier    port.Notifier
	locker      port.Locker
	events      port.EventPublisher
	botUsername string
	log         *slog.Logger
	now         func() time.Time
}

func NewModerationService(store port.Store, notifier port.Notifier, locker port.Locker,
	events port.EventPublisher, botUsername string, log *slog.Logger) *ModerationService {
	return &ModerationService{
		store:       store,
		notifier:    notifier,
		locker:      locker,
		events:      events,
		botUsername: botUsername,
		log:         discardIfNil(log),
		now:         time.Now,
	}
}

// Decide approves or rejects a pending listing. card, when non-nil, is the
// admin's moderation message and is edited to show the outcome.
//
// Approval publishes to the channel first; if that fails the listing stays
// pending and the transport error is returned.
func (s *ModerationService) Decide(ctx context.Context, adminID, listingID int64, d Decision, card *domain.MessageRef) (domain.Listing, error) {
	if d != DecisionApprove && d != DecisionReject {
		return domain.Listing{}, fmt.Errorf("%w: unknown decision %q", domain.ErrValidation, d)
	}
	if err := requireAdmin(ctx, s.store, adminID); err != nil {
		return domain.Listing{}, err
	}

	var out domain.Listing
	err := withLock(ctx, s.locker, listingKey(listingID), func() error {
		l, err := s.store.GetListing(ctx, listingID)
		if err != nil {
			return err
		}
		if l.Status != domain.ListingStatusPending {
			return domain.ListingStateError(l)
		}

		if d == DecisionApprove {
			out, err = s.approve(ctx, l)
		} else {
			out, err = s.reject(ctx, l)
		}
		return err
	})
	if err != nil {
		return out, err
	}

	attrs := []any{"listing_id", out.ID, "admin_id", adminID}
	effects := []effect{s.sellerNotice(out)}
	if card != nil {
		ref := *card
		effects = append(effects, effect{name: "edit moderation card", run: func(ctx context.Context) error {
			return s.notifier.Edit(ctx, ref, decidedCard(out))
		}})
	}
	runEffects(ctx, s.log, attrs, effects...)

	eventType := domain.EventListingApproved
	if out.Status == domain.ListingStatusRejected {
		eventType = domain.EventListingRejected
	}
	s.events.Publish(ctx, domain.Event{Type: eventType, ListingID: out.ID, ActorID: adminID, ByAdmin: true, At: s.now()})
	s.log.InfoContext(ctx, "listing decided", append(attrs, "status", out.Status)...)
	return out, nil
}

func (s *ModerationService) approve(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	msgID, err := s.notifier.PublishToChannel(ctx, channelPost(l, s.botUsername))
	if err != nil {
		return l, transportErr("publish listing", err)
	}
	if err := s.store.MarkApproved(ctx, l.ID, msgID); err != nil {
		// A pending listing must not have a channel post.
		runEffects(ctx, s.log, []any{"listing_id", l.ID}, effect{name: "retract channel post", run: func(ctx context.Context) error {
			return s.notifier.DeleteChannel(ctx, msgID)
		}})
		return l, fmt.Errorf("mark approved: %w", err)
	}
	l.Status = domain.ListingStatusApproved
	l.ChannelMessageID = msgID
	return l, nil
}

func (s *ModerationService) reject(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	if err := s.store.MarkRejected(ctx, l.ID); err != nil {
		return l, fmt.Errorf("mark rejected: %w", err)
	}
	l.Status = domain.ListingStatusRejected
	return l, nil
}

func (s *ModerationService) sellerNotice(l domain.Listing) effect {
	text := fmt.Sprintf("✅ Your %s has been approved and published in the channel!", listingRef(l, l.ID))
	if l.Status == domain.ListingStatusRejected {
		text = fmt.Sprintf("❌ Your %s was rejected by the moderator.", listingRef(l, l.ID))
	}
	return sendEffect(s.notifier, "notify seller", l.SellerID, domain.Content{Text: text, Actions: mainMenu})
}

type DeleteResult struct {
	Listing domain.Listing
	// ChannelErr is set when the channel post could not be removed.
	ChannelErr error
}

// Delete removes a listing in any status, taking down its channel post first
// on a best-effort basis.
func (s *ModerationService) Delete(ctx context.Context, adminID, listingID int64) (DeleteResult, error) {
	if err := requireAdmin(ctx, s.store, adminID); err != nil {
		return DeleteResult{}, err
	}

	var res DeleteResult
	err := withLock(ctx, s.locker, listingKey(listingID), func() error {
		l, err := s.store.GetListing(ctx, listingID)
		if err != nil {
			return err
		}
		res.Listing = l

		if l.Published() {
			if err := s.notifier.DeleteChannel(ctx, l.ChannelMessageID); err != nil {
				res.ChannelErr = transportErr("delete channel post", err)
				s.log.WarnContext(ctx, "channel post not removed", "listing_id", l.ID, "err", err)
			}
		}
		return s.store.DeleteListing(ctx, l.ID)
	})
	if err != nil {
		return res, err
	}

	s.events.Publish(ctx, domain.Event{Type: domain.EventListingDeleted, ListingID: listingID, ActorID: adminID, ByAdmin: true, At: s.now()})
	return res, nil
}
