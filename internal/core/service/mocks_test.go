package service

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

// Mock Store
type mockStore struct {
	mu       sync.Mutex
	nextID   int64
	listings map[int64]domain.Listing
	orders   map[int64]domain.Order
	users    map[int64]bool
	admins   map[int64]domain.Admin
	ads      map[int64]domain.Ad
	failUser error
}

func newMockStore(admins ...int64) *mockStore {
	m := &mockStore{
		listings: make(map[int64]domain.Listing),
		orders:   make(map[int64]domain.Order),
		users:    make(map[int64]bool),
		admins:   make(map[int64]domain.Admin),
		ads:      make(map[int64]domain.Ad),
	}
	for _, id := range admins {
		m.admins[id] = domain.Admin{UserID: id}
	}
	return m
}

func (m *mockStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockStore) CreateListing(ctx context.Context, l domain.Listing) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = m.id()
	m.listings[l.ID] = l
	return l, nil
}

func (m *mockStore) GetListing(ctx context.Context, id int64) (domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.listings[id]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return l, nil
}

func (m *mockStore) transitionListing(id int64, to domain.ListingStatus, msgID int) error {
	l, ok := m.listings[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !l.Status.CanTransition(to) {
		return domain.ListingStateError(l)
	}
	l.Status = to
	if msgID != 0 {
		l.ChannelMessageID = msgID
	}
	m.listings[id] = l
	return nil
}

func (m *mockStore) MarkApproved(ctx context.Context, id int64, channelMessageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionListing(id, domain.ListingStatusApproved, channelMessageID)
}

func (m *mockStore) MarkRejected(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionListing(id, domain.ListingStatusRejected, 0)
}

func (m *mockStore) DeleteListing(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.listings[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.listings, id)
	return nil
}

func (m *mockStore) ListListings(ctx context.Context, status domain.ListingStatus) ([]domain.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Listing
	for _, l := range m.listings {
		if l.Status == status {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *mockStore) CatalogPage(ctx context.Context, kind domain.ListingKind, offset, limit int) ([]domain.Listing, error) {
	all, _ := m.ListListings(ctx, domain.ListingStatusApproved)
	var out []domain.Listing
	for _, l := range all {
		if l.Kind == kind {
			out = append(out, l)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) CreateOrder(ctx context.Context, o domain.Order) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.orders {
		if other.Status != domain.OrderStatusInProgress {
			continue
		}
		if _, ok := other.RoleOf(o.BuyerID); ok {
			return domain.Order{}, domain.ErrActiveOrder
		}
		if _, ok := other.RoleOf(o.SellerID); ok {
			return domain.Order{}, domain.ErrActiveOrder
		}
	}
	o.ID = m.id()
	m.orders[o.ID] = o
	return o, nil
}

func (m *mockStore) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return o, nil
}

func (m *mockStore) ActiveOrderByUser(ctx context.Context, userID int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if _, ok := o.RoleOf(userID); ok && o.Status == domain.OrderStatusInProgress {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (m *mockStore) ListActiveOrders(ctx context.Context) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.Status == domain.OrderStatusInProgress {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockStore) SetActionMessages(ctx context.Context, orderID int64, sellerMessageID, buyerMessageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o := m.orders[orderID]
	o.SellerMessageID, o.BuyerMessageID = sellerMessageID, buyerMessageID
	m.orders[orderID] = o
	return nil
}

func (m *mockStore) Confirm(ctx context.Context, orderID int64, role domain.Role) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if o.Status != domain.OrderStatusInProgress {
		return o, domain.OrderStateError(o)
	}
	if role == domain.RoleSeller {
		o.SellerConfirmed = true
	} else {
		o.BuyerConfirmed = true
	}
	m.orders[orderID] = o
	return o, nil
}

func (m *mockStore) closeOrder(orderID int64, to domain.OrderStatus) (domain.Order, error) {
	o, ok := m.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	if !o.Status.CanTransition(to) {
		return o, domain.OrderStateError(o)
	}
	o.Status = to
	m.orders[orderID] = o
	return o, nil
}

func (m *mockStore) CompleteOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, err := m.closeOrder(orderID, domain.OrderStatusCompleted)
	if err != nil {
		return o, err
	}
	if l, ok := m.listings[o.ListingID]; ok {
		l.Status = domain.ListingStatusSold
		m.listings[l.ID] = l
	}
	return o, nil
}

func (m *mockStore) CancelOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeOrder(orderID, domain.OrderStatusCanceled)
}

func (m *mockStore) EnsureUser(ctx context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUser != nil {
		return false, m.failUser
	}
	canSell, ok := m.users[userID]
	if !ok {
		m.users[userID] = true
		return true, nil
	}
	return canSell, nil
}

func (m *mockStore) SetCanSell(ctx context.Context, userID int64, canSell bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[userID] = canSell
	return nil
}

func (m *mockStore) ListUserIDs(ctx context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *mockStore) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.admins[userID]
	return ok, nil
}

func (m *mockStore) ListAdmins(ctx context.Context) ([]domain.Admin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Admin
	for _, a := range m.admins {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (m *mockStore) AddAdmin(ctx context.Context, a domain.Admin) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.admins[a.UserID]; !ok {
		m.admins[a.UserID] = a
	}
	return nil
}

func (m *mockStore) RemoveAdmin(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.admins, userID)
	return nil
}

func (m *mockStore) CreateAd(ctx context.Context, ad domain.Ad) (domain.Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad.ID = m.id()
	m.ads[ad.ID] = ad
	return ad, nil
}

func (m *mockStore) GetAd(ctx context.Context, id int64) (domain.Ad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad, ok := m.ads[id]
	if !ok {
		return domain.Ad{}, domain.ErrNotFound
	}
	return ad, nil
}

func (m *mockStore) SetAdChannelMessage(ctx context.Context, id int64, channelMessageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ad := m.ads[id]
	ad.ChannelMessageID = channelMessageID
	m.ads[id] = ad
	return nil
}

func (m *mockStore) DeleteAd(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.ads, id)
	return nil
}

func (m *mockStore) Stats(ctx context.Context) (domain.Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := domain.Stats{Listings: len(m.listings), Users: len(m.users)}
	for _, l := range m.listings {
		switch l.Status {
		case domain.ListingStatusApproved:
			st.Approved++
		case domain.ListingStatusSold:
			st.Sold++
		}
	}
	return st, nil
}

func (m *mockStore) UserSummary(ctx context.Context, userID int64) (domain.UserSummary, error) {
	return domain.UserSummary{UserID: userID}, nil
}

func (m *mockStore) TopSellers(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	return nil, nil
}

func (m *mockStore) TopBuyers(ctx context.Context, limit int) ([]domain.RankEntry, error) {
	return nil, nil
}

// Mock Notifier
type sent struct {
	To      int64
	Content domain.Content
}

type mockNotifier struct {
	mu          sync.Mutex
	nextMsg     int
	sent        []sent
	edited      map[domain.MessageRef]domain.Content
	deleted     []domain.MessageRef
	channel     map[int]domain.Content
	pinned      []int
	failChannel error
	failSendTo  map[int64]error
	failDelete  error
}

func newMockNotifier() *mockNotifier {
	return &mockNotifier{
		edited:     make(map[domain.MessageRef]domain.Content),
		channel:    make(map[int]domain.Content),
		failSendTo: make(map[int64]error),
	}
}

func (m *mockNotifier) Send(ctx context.Context, userID int64, c domain.Content) (domain.MessageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failSendTo[userID]; err != nil {
		return domain.MessageRef{}, domain.TransportFailure("send", err)
	}
	m.nextMsg++
	m.sent = append(m.sent, sent{To: userID, Content: c})
	return domain.MessageRef{ChatID: userID, MessageID: m.nextMsg}, nil
}

func (m *mockNotifier) Edit(ctx context.Context, ref domain.MessageRef, c domain.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edited[ref] = c
	return nil
}

func (m *mockNotifier) Delete(ctx context.Context, ref domain.MessageRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDelete != nil {
		return m.failDelete
	}
	m.deleted = append(m.deleted, ref)
	return nil
}

func (m *mockNotifier) PublishToChannel(ctx context.Context, c domain.Content) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChannel != nil {
		return 0, m.failChannel
	}
	m.nextMsg++
	m.channel[m.nextMsg] = c
	return m.nextMsg, nil
}

func (m *mockNotifier) EditChannel(ctx context.Context, messageID int, c domain.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChannel != nil {
		return m.failChannel
	}
	m.channel[messageID] = c
	return nil
}

func (m *mockNotifier) DeleteChannel(ctx context.Context, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failChannel != nil {
		return m.failChannel
	}
	delete(m.channel, messageID)
	return nil
}

func (m *mockNotifier) PinChannel(ctx context.Context, messageID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned = append(m.pinned, messageID)
	return nil
}

func (m *mockNotifier) UnpinAllChannel(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned = nil
	return nil
}

func (m *mockNotifier) sentTo(userID int64) []domain.Content {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Content
	for _, s := range m.sent {
		if s.To == userID {
			out = append(out, s.Content)
		}
	}
	return out
}

// Mock SessionRepository
type mockSessions struct {
	mu     sync.Mutex
	drafts map[int64]domain.Draft
	chats  map[int64]int64
}

func newMockSessions() *mockSessions {
	return &mockSessions{drafts: make(map[int64]domain.Draft), chats: make(map[int64]int64)}
}

func (m *mockSessions) GetDraft(ctx context.Context, userID int64) (domain.Draft, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drafts[userID]
	return d, ok, nil
}

func (m *mockSessions) SaveDraft(ctx context.Context, userID int64, d domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[userID] = d
	return nil
}

func (m *mockSessions) ClearDraft(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.drafts, userID)
	return nil
}

func (m *mockSessions) ChatOrder(ctx context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chats[userID], nil
}

func (m *mockSessions) SetChatOrder(ctx context.Context, userID, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[userID] = orderID
	return nil
}

func (m *mockSessions) ClearChatOrder(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, userID)
	return nil
}

// Mock Locker
type mockLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMockLocker() *mockLocker {
	return &mockLocker{locks: make(map[string]*sync.Mutex)}
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock, nil
}

// Mock AuditLog
type mockAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
}

func (m *mockAudit) Append(ctx context.Context, e domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockAudit) Entries(ctx context.Context, userID int64, day string) ([]domain.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.entries {
		if e.UserID == userID && e.Day() == day {
			out = append(out, e)
		}
	}
	return out, nil
}

// Mock EventPublisher
type mockEvents struct {
	mu     sync.Mutex
	events []domain.Event
}

func (m *mockEvents) Publish(ctx context.Context, e domain.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
}

func (m *mockEvents) count(t domain.EventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

var errUnreachable = errors.New("unreachable")

// fixture wires every service over the same mocks.
type fixture struct {
	store    *mockStore
	notifier *mockNotifier
	sessions *mockSessions
	audit    *mockAudit
	events   *mockEvents

	gate        *EligibilityService
	submission  *SubmissionService
	moderation  *ModerationService
	transaction *TransactionService
	admin       *AdminService
	catalog     *CatalogService
}

const adminID = int64(1)

func newFixture() *fixture {
	f := &fixture{
		store:    newMockStore(adminID),
		notifier: newMockNotifier(),
		sessions: newMockSessions(),
		audit:    &mockAudit{},
		events:   &mockEvents{},
	}
	locker := newMockLocker()
	f.gate = NewEligibilityService(f.store)
	f.submission = NewSubmissionService(f.gate, f.sessions, f.store, f.notifier, f.events, "skip", nil)
	f.moderation = NewModerationService(f.store, f.notifier, locker, f.events, "market_bot", nil)
	f.transaction = NewTransactionService(f.store, f.sessions, f.notifier, locker, f.audit, f.events, nil)
	f.admin = NewAdminService(f.store, f.gate, f.notifier, f.audit, nil)
	f.catalog = NewCatalogService(f.store, 2)
	return f
}

// submit runs a full submission for sellerID and returns the pending listing.
func (f *fixture) submit(ctx context.Context, sellerID int64, name string) (domain.Listing, error) {
	if err := f.submission.Start(ctx, sellerID, domain.ListingKindProduct); err != nil {
		return domain.Listing{}, err
	}
	var res CaptureResult
	for _, in := range []domain.Incoming{{Text: name}, {Text: "Wooden chair"}, {Text: "500"}, {Text: "@a"}, {Text: "skip"}} {
		var err error
		if res, err = f.submission.Capture(ctx, sellerID, in); err != nil {
			return domain.Listing{}, err
		}
	}
	return res.Listing, nil
}

// published submits and approves a listing.
func (f *fixture) published(ctx context.Context, sellerID int64, name string) (domain.Listing, error) {
	l, err := f.submit(ctx, sellerID, name)
	if err != nil {
		return l, err
	}
	return f.moderation.Decide(ctx, adminID, l.ID, DecisionApprove, nil)
}
