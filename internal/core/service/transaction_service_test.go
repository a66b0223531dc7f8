package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

const (
	sellerA = int64(100)
	buyerB  = int64(200)
	buyerC  = int64(300)
)

func TestInitiate_CreatesOrderAndNotifiesBothParties(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)

	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)

	assert.Equal(t, domain.OrderStatusInProgress, o.Status)
	assert.Equal(t, sellerA, o.SellerID)
	assert.Equal(t, buyerB, o.BuyerID)
	assert.False(t, o.SellerConfirmed)
	assert.False(t, o.BuyerConfirmed)

	stored, _ := f.store.GetOrder(ctx, o.ID)
	assert.NotZero(t, stored.SellerMessageID)
	assert.NotZero(t, stored.BuyerMessageID)

	buyerMsgs := f.notifier.sentTo(buyerB)
	require.Len(t, buyerMsgs, 1)
	assert.Equal(t, ActionData(ActionConfirm, domain.RoleBuyer, o.ID), buyerMsgs[0].Actions[0][0].Data)

	chat, _ := f.sessions.ChatOrder(ctx, buyerB)
	assert.Equal(t, o.ID, chat)
}

func TestInitiate_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	pending, err := f.submit(ctx, sellerA, "Pending")
	require.NoError(t, err)
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)

	_, err = f.transaction.Initiate(ctx, buyerB, pending.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.transaction.Initiate(ctx, buyerB, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.transaction.Initiate(ctx, sellerA, l.ID)
	assert.ErrorIs(t, err, domain.ErrSelfPurchase)

	_, err = f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)
	_, err = f.transaction.Initiate(ctx, buyerB, l.ID)
	assert.ErrorIs(t, err, domain.ErrActiveOrder)
	_, err = f.transaction.Initiate(ctx, buyerC, l.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState, "seller already has an active order")
}

func TestConfirm_BothPartiesCompleteTheSale(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)
	o, _ = f.store.GetOrder(ctx, o.ID)

	res, err := f.transaction.Confirm(ctx, buyerB, o.ID, domain.RoleBuyer)
	require.NoError(t, err)
	assert.False(t, res.Completed)
	assert.True(t, res.Order.BuyerConfirmed)

	res, err = f.transaction.Confirm(ctx, sellerA, o.ID, domain.RoleSeller)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, domain.OrderStatusCompleted, res.Order.Status)
	assert.True(t, res.Order.BothConfirmed())

	sold, _ := f.store.GetListing(ctx, l.ID)
	assert.Equal(t, domain.ListingStatusSold, sold.Status)
	post := f.notifier.channel[sold.ChannelMessageID]
	assert.Contains(t, post.Text, "<s>")
	assert.Contains(t, post.Text, "SOLD")
	assert.Empty(t, post.Actions)

	assert.ElementsMatch(t, o.ActionMessages(), f.notifier.deleted)

	chat, _ := f.sessions.ChatOrder(ctx, buyerB)
	assert.Zero(t, chat)
	assert.Equal(t, 1, f.events.count(domain.EventOrderCompleted))
}

func TestConfirm_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)

	_, err = f.transaction.Confirm(ctx, buyerC, o.ID, domain.RoleBuyer)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.transaction.Confirm(ctx, buyerB, o.ID, domain.RoleSeller)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = f.transaction.Confirm(ctx, buyerB, 999, domain.RoleBuyer)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.transaction.Confirm(ctx, buyerB, o.ID, domain.Role("judge"))
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, _ := f.store.GetOrder(ctx, o.ID)
	assert.False(t, stored.BuyerConfirmed)
	assert.False(t, stored.SellerConfirmed)
}

func TestCancel_ThenConfirmIsInvalidState(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)

	canceled, err := f.transaction.Cancel(ctx, sellerA, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, canceled.Status)

	stillListed, _ := f.store.GetListing(ctx, l.ID)
	assert.Equal(t, domain.ListingStatusApproved, stillListed.Status)

	for _, party := range []int64{sellerA, buyerB} {
		msgs := f.notifier.sentTo(party)
		last := msgs[len(msgs)-1]
		assert.Contains(t, last.Text, "canceled by the seller")
		assert.Equal(t, ActionMenu, last.Actions[0][0].Data)
	}

	_, err = f.transaction.Confirm(ctx, buyerB, o.ID, domain.RoleBuyer)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.transaction.Cancel(ctx, buyerB, o.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	stored, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderStatusCanceled, stored.Status)

	second, err := f.transaction.Initiate(ctx, buyerC, l.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusInProgress, second.Status)
}

func TestCancel_NonPartyUnauthorized(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)

	_, err = f.transaction.Cancel(ctx, buyerC, o.ID)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.transaction.Cancel(ctx, buyerB, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAdminClose(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)

	_, err = f.transaction.AdminClose(ctx, buyerB, o.ID, domain.OrderStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = f.transaction.AdminClose(ctx, adminID, 999, domain.OrderStatusCompleted)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	done, err := f.transaction.AdminClose(ctx, adminID, o.ID, domain.OrderStatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCompleted, done.Status)
	assert.False(t, done.BothConfirmed())

	sold, _ := f.store.GetListing(ctx, l.ID)
	assert.Equal(t, domain.ListingStatusSold, sold.Status)

	msgs := f.notifier.sentTo(buyerB)
	assert.Contains(t, msgs[len(msgs)-1].Text, "administrator")

	_, err = f.transaction.AdminClose(ctx, adminID, o.ID, domain.OrderStatusCanceled)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestAdminClose_CancelKeepsListing(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)

	done, err := f.transaction.AdminClose(ctx, adminID, o.ID, domain.OrderStatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCanceled, done.Status)

	stored, _ := f.store.GetListing(ctx, l.ID)
	assert.Equal(t, domain.ListingStatusApproved, stored.Status)
	msgs := f.notifier.sentTo(sellerA)
	assert.Contains(t, msgs[len(msgs)-1].Text, "administrator")
}

func TestRelay_ForwardsToCounterpartyAndAudits(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)

	res, err := f.transaction.Relay(ctx, buyerB, domain.Incoming{Text: "is it <new>?"})
	require.NoError(t, err)
	assert.Equal(t, sellerA, res.To)
	assert.Equal(t, domain.RoleBuyer, res.From)
	assert.Equal(t, o.ID, res.Order.ID)

	msgs := f.notifier.sentTo(sellerA)
	assert.Equal(t, "📩 From the buyer: is it &lt;new&gt;?", msgs[len(msgs)-1].Text)

	// Without a chat session the store lookup still finds the order.
	require.NoError(t, f.sessions.ClearChatOrder(ctx, sellerA))
	res, err = f.transaction.Relay(ctx, sellerA, domain.Incoming{Photo: "photo-1"})
	require.NoError(t, err)
	assert.Equal(t, buyerB, res.To)
	msgs = f.notifier.sentTo(buyerB)
	assert.Equal(t, "photo-1", msgs[len(msgs)-1].Photo)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, "buyer", f.audit.entries[0].Role)
	assert.Equal(t, domain.DirectionToSeller, f.audit.entries[0].Direction)
	assert.Equal(t, "seller", f.audit.entries[1].Role)
	assert.Equal(t, domain.DirectionToBuyer, f.audit.entries[1].Direction)
	assert.Equal(t, "photo-1", f.audit.entries[1].Photo)
}

func TestRelay_NoActiveOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.transaction.Relay(ctx, buyerB, domain.Incoming{Text: "hello?"})
	assert.ErrorIs(t, err, domain.ErrNoActiveOrder)

	require.Len(t, f.audit.entries, 1)
	assert.Equal(t, domain.AuditRoleUser, f.audit.entries[0].Role)
	assert.Equal(t, domain.DirectionToBot, f.audit.entries[0].Direction)
}

func TestRelay_StaleSessionFallsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)
	_, err = f.transaction.Cancel(ctx, buyerB, o.ID)
	require.NoError(t, err)

	require.NoError(t, f.sessions.SetChatOrder(ctx, buyerB, o.ID))
	_, err = f.transaction.Relay(ctx, buyerB, domain.Incoming{Text: "still there?"})
	assert.ErrorIs(t, err, domain.ErrNoActiveOrder)

	chat, _ := f.sessions.ChatOrder(ctx, buyerB)
	assert.Zero(t, chat)
}

func TestConfirm_ConcurrentCompletesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	l, err := f.published(ctx, sellerA, "Chair")
	require.NoError(t, err)
	o, err := f.transaction.Initiate(ctx, buyerB, l.ID)
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		completed atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, role := buyerB, domain.RoleBuyer
			if i%2 == 0 {
				user, role = sellerA, domain.RoleSeller
			}
			res, err := f.transaction.Confirm(ctx, user, o.ID, role)
			if err == nil && res.Completed {
				completed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), completed.Load())
	assert.Equal(t, 1, f.events.count(domain.EventOrderCompleted))
}
