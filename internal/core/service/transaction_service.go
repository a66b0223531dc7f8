package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

// TransactionService drives an order from initiation through relayed
// conversation to completion or cancellation.
type TransactionService struct {
	store    port.Store
	sessions port.SessionRepository
	notifier port.Notifier
	locker   port.Locker
	audit    port.AuditLog
	events   port.EventPublisher
	log      *slog.Logger
	now      func() time.Time
}

func NewTransactionService(store port.Store, sessions port.SessionRepository, notifier port.Notifier,
	locker port.Locker, audit port.AuditLog, events port.EventPublisher, log *slog.Logger) *TransactionService {
	return &TransactionService{
		store:    store,
		sessions: sessions,
		notifier: notifier,
		locker:   locker,
		audit:    audit,
		events:   events,
		log:      discardIfNil(log),
		now:      time.Now,
	}
}

// Initiate opens an order between buyerID and the seller of a published listing.
func (s *TransactionService) Initiate(ctx context.Context, buyerID, listingID int64) (domain.Order, error) {
	var (
		order   domain.Order
		listing domain.Listing
	)
	err := withLock(ctx, s.locker, listingKey(listingID), func() error {
		l, err := s.store.GetListing(ctx, listingID)
		if err != nil {
			return err
		}
		if l.Status != domain.ListingStatusApproved {
			return fmt.Errorf("%w: listing %d is not published", domain.ErrNotFound, listingID)
		}
		if l.SellerID == buyerID {
			return domain.ErrSelfPurchase
		}
		listing = l

		now := s.now()
		order, err = s.store.CreateOrder(ctx, domain.Order{
			ListingID: l.ID,
			SellerID:  l.SellerID,
			BuyerID:   buyerID,
			Status:    domain.OrderStatusInProgress,
			CreatedAt: now,
			UpdatedAt: now,
		})
		return err
	})
	if err != nil {
		return domain.Order{}, err
	}

	attrs := []any{"order_id", order.ID, "listing_id", listing.ID}
	if ref, err := s.notifier.Send(ctx, order.SellerID, sellerOpened(order, listing)); err != nil {
		s.log.WarnContext(ctx, "seller not notified", append(attrs, "err", err)...)
	} else {
		order.SellerMessageID = ref.MessageID
	}
	if ref, err := s.notifier.Send(ctx, order.BuyerID, buyerOpened(order, listing)); err != nil {
		s.log.WarnContext(ctx, "buyer not notified", append(attrs, "err", err)...)
	} else {
		order.BuyerMessageID = ref.MessageID
	}

	runEffects(ctx, s.log, attrs,
		effect{name: "record action messages", run: func(ctx context.Context) error {
			if order.SellerMessageID == 0 && order.BuyerMessageID == 0 {
				return nil
			}
			return s.store.SetActionMessages(ctx, order.ID, order.SellerMessageID, order.BuyerMessageID)
		}},
		effect{name: "route buyer chat", run: func(ctx context.Context) error {
			return s.sessions.SetChatOrder(ctx, order.BuyerID, order.ID)
		}},
		effect{name: "route seller chat", run: func(ctx context.Context) error {
			return s.sessions.SetChatOrder(ctx, order.SellerID, order.ID)
		}},
	)

	s.events.Publish(ctx, domain.Event{Type: domain.EventOrderCreated, OrderID: order.ID, ListingID: listing.ID, ActorID: buyerID, At: s.now()})
	s.log.InfoContext(ctx, "order created", append(attrs, "buyer_id", buyerID, "seller_id", order.SellerID)...)
	return order, nil
}

type RelayResult struct {
	Order domain.Order
	From  domain.Role
	To    int64
}

// Relay forwards a message to the sender's counterparty in their active order.
// The message is written to the sender's audit stream whether or not it is delivered.
func (s *TransactionService) Relay(ctx context.Context, senderID int64, in domain.Incoming) (RelayResult, error) {
	order, err := s.activeOrder(ctx, senderID)
	if errors.Is(err, domain.ErrNotFound) {
		s.record(ctx, senderID, domain.AuditRoleUser, domain.DirectionToBot, in)
		return RelayResult{}, domain.ErrNoActiveOrder
	}
	if err != nil {
		return RelayResult{}, err
	}

	from, _ := order.RoleOf(senderID)
	direction := domain.DirectionToSeller
	if from == domain.RoleSeller {
		direction = domain.DirectionToBuyer
	}
	s.record(ctx, senderID, string(from), direction, in)

	res := RelayResult{Order: order, From: from, To: order.Counterparty(senderID)}
	if _, err := s.notifier.Send(ctx, res.To, relayed(from, in)); err != nil {
		return res, transportErr("relay message", err)
	}
	return res, nil
}

// activeOrder resolves the sender's in-progress order, preferring the chat
// session and falling back to the store.
func (s *TransactionService) activeOrder(ctx context.Context, userID int64) (domain.Order, error) {
	orderID, err := s.sessions.ChatOrder(ctx, userID)
	if err != nil {
		s.log.WarnContext(ctx, "chat session lookup failed", "user_id", userID, "err", err)
	}
	if orderID != 0 {
		o, err := s.store.GetOrder(ctx, orderID)
		if err == nil && o.Status == domain.OrderStatusInProgress {
			if _, ok := o.RoleOf(userID); ok {
				return o, nil
			}
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, err
		}
		s.clearChat(ctx, userID)
	}
	return s.store.ActiveOrderByUser(ctx, userID)
}

func (s *TransactionService) record(ctx context.Context, userID int64, role, direction string, in domain.Incoming) {
	entry := domain.AuditEntry{UserID: userID, At: s.now(), Role: role, Direction: direction, Text: in.Text, Photo: in.Photo}
	if err := s.audit.Append(ctx, entry); err != nil {
		s.log.WarnContext(ctx, "audit append failed", "user_id", userID, "err", err)
	}
}

type ConfirmResult struct {
	Order     domain.Order
	Completed bool
}

// Confirm records the caller's confirmation for role. The order completes
// when both flags are set.
func (s *TransactionService) Confirm(ctx context.Context, userID, orderID int64, role domain.Role) (ConfirmResult, error) {
	if !role.Valid() {
		return ConfirmResult{}, fmt.Errorf("%w: unknown role %q", domain.ErrValidation, role)
	}

	var res ConfirmResult
	err := withLock(ctx, s.locker, orderKey(orderID), func() error {
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.PartyID(role) != userID {
			return fmt.Errorf("%w: user %d is not the %s of order %d", domain.ErrUnauthorized, userID, role, orderID)
		}
		if o.Status != domain.OrderStatusInProgress {
			return domain.OrderStateError(o)
		}

		o, err = s.store.Confirm(ctx, orderID, role)
		if err != nil {
			return err
		}
		res.Order = o
		if !o.BothConfirmed() {
			return nil
		}

		res.Order, err = s.complete(ctx, o, userID, false)
		res.Completed = err == nil
		return err
	})
	return res, err
}

func (s *TransactionService) complete(ctx context.Context, o domain.Order, actorID int64, byAdmin bool) (domain.Order, error) {
	done, err := s.store.CompleteOrder(ctx, o.ID)
	if err != nil {
		return o, fmt.Errorf("complete order: %w", err)
	}

	attrs := []any{"order_id", done.ID, "listing_id", done.ListingID}
	listing, err := s.store.GetListing(ctx, done.ListingID)
	if err != nil {
		s.log.WarnContext(ctx, "listing unavailable for completion", append(attrs, "err", err)...)
		listing = domain.Listing{}
	}

	var effects []effect
	if listing.Published() {
		effects = append(effects, effect{name: "mark channel post sold", run: func(ctx context.Context) error {
			return s.notifier.EditChannel(ctx, listing.ChannelMessageID, soldPost(listing))
		}})
	}
	effects = append(effects, s.closeEffects(done, completedNotice(done, listing, byAdmin))...)
	runEffects(ctx, s.log, attrs, effects...)

	s.events.Publish(ctx, domain.Event{Type: domain.EventOrderCompleted, OrderID: done.ID, ListingID: done.ListingID, ActorID: actorID, ByAdmin: byAdmin, At: s.now()})
	s.log.InfoContext(ctx, "order completed", append(attrs, "by_admin", byAdmin)...)
	return done, nil
}

// Cancel closes an in-progress order at the request of either party. The
// listing stays approved.
func (s *TransactionService) Cancel(ctx context.Context, userID, orderID int64) (domain.Order, error) {
	var out domain.Order
	err := withLock(ctx, s.locker, orderKey(orderID), func() error {
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		role, ok := o.RoleOf(userID)
		if !ok {
			return fmt.Errorf("%w: user %d is not a party to order %d", domain.ErrUnauthorized, userID, orderID)
		}
		if o.Status != domain.OrderStatusInProgress {
			return domain.OrderStateError(o)
		}
		out, err = s.cancel(ctx, o, userID, string(role), false)
		return err
	})
	return out, err
}

func (s *TransactionService) cancel(ctx context.Context, o domain.Order, actorID int64, by string, byAdmin bool) (domain.Order, error) {
	done, err := s.store.CancelOrder(ctx, o.ID)
	if err != nil {
		return o, fmt.Errorf("cancel order: %w", err)
	}

	attrs := []any{"order_id", done.ID, "listing_id", done.ListingID}
	runEffects(ctx, s.log, attrs, s.closeEffects(done, canceledNotice(done, by))...)

	s.events.Publish(ctx, domain.Event{Type: domain.EventOrderCanceled, OrderID: done.ID, ListingID: done.ListingID, ActorID: actorID, ByAdmin: byAdmin, At: s.now()})
	s.log.InfoContext(ctx, "order canceled", append(attrs, "by", by)...)
	return done, nil
}

// closeEffects removes both action messages, tells both parties, and ends chat routing.
func (s *TransactionService) closeEffects(o domain.Order, notice domain.Content) []effect {
	var effects []effect
	for _, ref := range o.ActionMessages() {
		effects = append(effects, deleteEffect(s.notifier, ref))
	}
	effects = append(effects,
		sendEffect(s.notifier, "notify seller", o.SellerID, notice),
		sendEffect(s.notifier, "notify buyer", o.BuyerID, notice),
		effect{name: "end chat routing", run: func(ctx context.Context) error {
			return errors.Join(s.sessions.ClearChatOrder(ctx, o.SellerID), s.sessions.ClearChatOrder(ctx, o.BuyerID))
		}},
	)
	return effects
}

func (s *TransactionService) clearChat(ctx context.Context, userID int64) {
	if err := s.sessions.ClearChatOrder(ctx, userID); err != nil {
		s.log.WarnContext(ctx, "clear chat session failed", "user_id", userID, "err", err)
	}
}

// AdminClose forces an in-progress order to completed or canceled without
// waiting for the parties.
func (s *TransactionService) AdminClose(ctx context.Context, adminID, orderID int64, outcome domain.OrderStatus) (domain.Order, error) {
	if outcome != domain.OrderStatusCompleted && outcome != domain.OrderStatusCanceled {
		return domain.Order{}, fmt.Errorf("%w: unknown outcome %q", domain.ErrValidation, outcome)
	}
	if err := requireAdmin(ctx, s.store, adminID); err != nil {
		return domain.Order{}, err
	}

	var out domain.Order
	err := withLock(ctx, s.locker, orderKey(orderID), func() error {
		o, err := s.store.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != domain.OrderStatusInProgress {
			return domain.OrderStateError(o)
		}
		if outcome == domain.OrderStatusCompleted {
			out, err = s.complete(ctx, o, adminID, true)
		} else {
			out, err = s.cancel(ctx, o, adminID, "administrator", true)
		}
		return err
	})
	return out, err
}
