package handler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

type orderRecorder struct {
	mu      sync.Mutex
	byUser  map[int64][]int
	handled atomic.Int32
}

func (r *orderRecorder) Handle(_ context.Context, upd tgbotapi.Update) error {
	time.Sleep(time.Millisecond)
	r.mu.Lock()
	r.byUser[upd.Message.From.ID] = append(r.byUser[upd.Message.From.ID], upd.UpdateID)
	r.mu.Unlock()
	r.handled.Add(1)
	return nil
}

type memDeduper struct {
	mu   sync.Mutex
	seen map[int]bool
}

func (d *memDeduper) MarkUpdate(_ context.Context, id int) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDeduper) ForgetUpdate(_ context.Context, id int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

func TestDispatcher_PerSenderOrder(t *testing.T) {
	rec := &orderRecorder{byUser: map[int64][]int{}}
	d := NewDispatcher(rec, nil, 4, 16, nil)
	d.Start(context.Background())

	ctx := context.Background()
	const perUser = 50
	var wg sync.WaitGroup
	for user := int64(1); user <= 5; user++ {
		wg.Add(1)
		go func(user int64) {
			defer wg.Done()
			for i := 0; i < perUser; i++ {
				upd := textUpdate(user, "x")
				upd.UpdateID = int(user)*1000 + i
				assert.NoError(t, d.Submit(ctx, upd))
			}
		}(user)
	}
	wg.Wait()
	d.Close()

	assert.Equal(t, int32(5*perUser), rec.handled.Load())
	for user, ids := range rec.byUser {
		require.Len(t, ids, perUser, "user %d", user)
		for i := 1; i < len(ids); i++ {
			assert.Less(t, ids[i-1], ids[i], "user %d out of order", user)
		}
	}
}

func TestDispatcher_RejectsDuplicates(t *testing.T) {
	rec := &orderRecorder{byUser: map[int64][]int{}}
	d := NewDispatcher(rec, &memDeduper{seen: map[int]bool{}}, 2, 4, nil)
	d.Start(context.Background())

	upd := textUpdate(7, "x")
	upd.UpdateID = 99
	require.NoError(t, d.Submit(context.Background(), upd))
	assert.ErrorIs(t, d.Submit(context.Background(), upd), domain.ErrDuplicateUpdate)
	d.Close()

	assert.Equal(t, int32(1), rec.handled.Load())
}

func TestDispatcher_SubmitAfterClose(t *testing.T) {
	rec := &orderRecorder{byUser: map[int64][]int{}}
	d := NewDispatcher(rec, nil, 1, 1, nil)
	d.Start(context.Background())
	d.Close()
	d.Close()

	assert.ErrorIs(t, d.Submit(context.Background(), textUpdate(1, "x")), ErrDispatcherClosed)
}

func TestSenderID(t *testing.T) {
	assert.Equal(t, int64(5), senderID(textUpdate(5, "x")))
	assert.Equal(t, int64(6), senderID(callbackUpdate(6, "menu")))
	assert.Equal(t, int64(12), senderID(tgbotapi.Update{UpdateID: 12}))
}

func TestDispatcher_UnqueuedUpdateCanBeRedelivered(t *testing.T) {
	dedup := &memDeduper{seen: map[int]bool{}}
	upd := textUpdate(7, "x")
	upd.UpdateID = 321

	closed := NewDispatcher(&orderRecorder{byUser: map[int64][]int{}}, dedup, 1, 1, nil)
	closed.Start(context.Background())
	closed.Close()
	assert.ErrorIs(t, closed.Submit(context.Background(), upd), ErrDispatcherClosed)

	rec := &orderRecorder{byUser: map[int64][]int{}}
	d := NewDispatcher(rec, dedup, 1, 1, nil)
	d.Start(context.Background())
	require.NoError(t, d.Submit(context.Background(), upd))
	d.Close()

	assert.Equal(t, int32(1), rec.handled.Load())
}

type blockingHandler struct {
	release chan struct{}
	handled atomic.Int32
}

func (b *blockingHandler) Handle(context.Context, tgbotapi.Update) error {
	<-b.release
	b.handled.Add(1)
	return nil
}

func TestDispatcher_TimedOutSubmitCanBeRedelivered(t *testing.T) {
	dedup := &memDeduper{seen: map[int]bool{}}
	h := &blockingHandler{release: make(chan struct{})}
	d := NewDispatcher(h, dedup, 1, 1, nil)
	d.Start(context.Background())

	first := textUpdate(7, "a")
	first.UpdateID = 1
	second := textUpdate(7, "b")
	second.UpdateID = 2
	require.NoError(t, d.Submit(context.Background(), first))
	require.Eventually(t, func() bool { return len(d.shards[0]) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, d.Submit(context.Background(), second))

	stuck := textUpdate(7, "c")
	stuck.UpdateID = 3
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Submit(ctx, stuck), context.DeadlineExceeded)

	close(h.release)
	require.NoError(t, d.Submit(context.Background(), stuck))
	d.Close()
	assert.Equal(t, int32(3), h.handled.Load())
}
