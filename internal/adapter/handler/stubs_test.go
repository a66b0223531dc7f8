package handler

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/core/service"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

// stubStore implements the store methods the handler paths reach; any
// other call panics on the nil embedded interface.
type stubStore struct {
	port.Store
	mu       sync.Mutex
	listings map[int64]domain.Listing
	admins   map[int64]bool
	stats    domain.Stats
}

func (s *stubStore) GetListing(_ context.Context, id int64) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return l, fmt.Errorf("%w: listing %d", domain.ErrNotFound, id)
	}
	return l, nil
}

func (s *stubStore) EnsureUser(context.Context, int64) (bool, error) { return true, nil }

func (s *stubStore) IsAdmin(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.admins[id], nil
}

func (s *stubStore) Stats(context.Context) (domain.Stats, error) { return s.stats, nil }

func (s *stubStore) ActiveOrderByUser(_ context.Context, id int64) (domain.Order, error) {
	return domain.Order{}, fmt.Errorf("%w: no order for %d", domain.ErrNotFound, id)
}

type memSessions struct {
	mu     sync.Mutex
	drafts map[int64]domain.Draft
	chats  map[int64]int64
}

func newMemSessions() *memSessions {
	return &memSessions{drafts: map[int64]domain.Draft{}, chats: map[int64]int64{}}
}

func (m *memSessions) GetDraft(_ context.Context, id int64) (domain.Draft, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[id]
	return d, ok, nil
}

func (m *memSessions) SaveDraft(_ context.Context, id int64, d domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[id] = d
	return nil
}

func (m *memSessions) ClearDraft(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, id)
	return nil
}

func (m *memSessions) ChatOrder(_ context.Context, id int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chats[id], nil
}

func (m *memSessions) SetChatOrder(_ context.Context, id, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[id] = orderID
	return nil
}

func (m *memSessions) ClearChatOrder(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, id)
	return nil
}

type sent struct {
	to      int64
	content domain.Content
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) Send(_ context.Context, to int64, c domain.Content) (domain.MessageRef, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{to: to, content: c})
	return domain.MessageRef{ChatID: to, MessageID: len(n.sent)}, nil
}

func (n *recordingNotifier) messages() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sent(nil), n.sent...)
}

func (n *recordingNotifier) Edit(context.Context, domain.MessageRef, domain.Content) error { return nil }
func (n *recordingNotifier) Delete(context.Context, domain.MessageRef) error                { return nil }
func (n *recordingNotifier) PublishToChannel(context.Context, domain.Content) (int, error)  { return 1, nil }
func (n *recordingNotifier) EditChannel(context.Context, int, domain.Content) error         { return nil }
func (n *recordingNotifier) DeleteChannel(context.Context, int) error                       { return nil }
func (n *recordingNotifier) PinChannel(context.Context, int) error                          { return nil }
func (n *recordingNotifier) UnpinAllChannel(context.Context) error                          { return nil }

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

type nopAudit struct{}

func (nopAudit) Append(context.Context, domain.AuditEntry) error { return nil }
func (nopAudit) Entries(context.Context, int64, string) ([]domain.AuditEntry, error) {
	return nil, nil
}

type nopEvents struct{}

func (nopEvents) Publish(context.Context, domain.Event) {}

type recordingAnswerer struct {
	mu      sync.Mutex
	answers []tgbotapi.CallbackConfig
}

func (a *recordingAnswerer) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		a.answers = append(a.answers, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

const (
	testAdmin int64 = 1
	testUser  int64 = 42
)

type botFixture struct {
	store    *stubStore
	notifier *recordingNotifier
	answerer *recordingAnswerer
	handler  *BotHandler
}

func newBotFixture() *botFixture {
	store := &stubStore{
		listings: map[int64]domain.Listing{
			5: {ID: 5, SellerID: 7, Name: "Bike", Description: "Red", Price: "100", Kind: domain.ListingKindProduct, Status: domain.ListingStatusApproved},
			6: {ID: 6, SellerID: 7, Name: "Lamp", Description: "Old", Price: "5", Kind: domain.ListingKindProduct, Status: domain.ListingStatusPending},
		},
		admins: map[int64]bool{testAdmin: true},
		stats:  domain.Stats{Listings: 3, Approved: 2, Sold: 1, Users: 9},
	}
	sessions := newMemSessions()
	n := &recordingNotifier{}
	gate := service.NewEligibilityService(store)
	svc := Services{
		Gate:        gate,
		Submission:  service.NewSubmissionService(gate, sessions, store, n, nopEvents{}, "skip", nil),
		Moderation:  service.NewModerationService(store, n, nopLocker{}, nopEvents{}, "market_bot", nil),
		Transaction: service.NewTransactionService(store, sessions, n, nopLocker{}, nopAudit{}, nopEvents{}, nil),
		Catalog:     service.NewCatalogService(store, 5),
		Admin:       service.NewAdminService(store, gate, n, nopAudit{}, nil),
	}
	a := &recordingAnswerer{}
	return &botFixture{store: store, notifier: n, answerer: a, handler: NewBotHandler(svc, n, a, "skip", nil)}
}

func commandUpdate(userID int64, text string) tgbotapi.Update {
	cmdLen := len(text)
	for i, r := range text {
		if r == ' ' {
			cmdLen = i
			break
		}
	}
	return tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}}
}

func textUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 2, Message: &tgbotapi.Message{
		MessageID: 2, From: &tgbotapi.User{ID: userID}, Chat: &tgbotapi.Chat{ID: userID}, Text: text,
	}}
}

func callbackUpdate(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{UpdateID: 3, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:   "cb-1",
		From: &tgbotapi.User{ID: userID},
		Data: data,
		Message: &tgbotapi.Message{
			MessageID: 10, Chat: &tgbotapi.Chat{ID: userID}, Text: "menu",
		},
	}}
}
