package handler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
	"github.com/IDiwizerI/seller-bot/internal/port"
)

var ErrDispatcherClosed = errors.New("dispatcher closed")

const updateTimeout = 30 * time.Second

type UpdateHandler interface {
	Handle(ctx context.Context, upd tgbotapi.Update) error
}

// Dispatcher runs updates on a fixed pool of workers. Updates from the same
// sender always land on the same worker, so they are handled in arrival order.
type Dispatcher struct {
	handler UpdateHandler
	dedup   port.UpdateDeduper
	log     *slog.Logger

	mu     sync.RWMutex
	closed bool
	shards []chan tgbotapi.Update
	wg     sync.WaitGroup
}

// NewDispatcher builds a dispatcher; dedup may be nil.
func NewDispatcher(handler UpdateHandler, dedup port.UpdateDeduper, workers, queueSize int, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 100
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	shards := make([]chan tgbotapi.Update, workers)
	for i := range shards {
		shards[i] = make(chan tgbotapi.Update, queueSize)
	}
	return &Dispatcher{handler: handler, dedup: dedup, log: log, shards: shards}
}

// Start launches the workers. Handling is detached from ctx cancellation so
// queued updates still drain after shutdown begins.
func (d *Dispatcher) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i, shard := range d.shards {
		d.wg.Add(1)
		go func(id int, queue <-chan tgbotapi.Update) {
			defer d.wg.Done()
			d.workerLoop(base, id, queue)
		}(i, shard)
	}
	d.log.Info("dispatcher started", "workers", len(d.shards))
}

func (d *Dispatcher) workerLoop(base context.Context, id int, queue <-chan tgbotapi.Update) {
	for upd := range queue {
		ctx, cancel := context.WithTimeout(base, updateTimeout)
		if err := d.handler.Handle(ctx, upd); err != nil {
			d.log.Error("update failed", "worker", id, "update_id", upd.UpdateID, "err", err)
		}
		cancel()
	}
}

// Submit queues upd, blocking while the sender's shard is full. A redelivered
// update is rejected with domain.ErrDuplicateUpdate. An update that could not
// be queued is unmarked so its redelivery is accepted.
func (d *Dispatcher) Submit(ctx context.Context, upd tgbotapi.Update) error {
	marked := false
	if d.dedup != nil {
		fresh, err := d.dedup.MarkUpdate(ctx, upd.UpdateID)
		switch {
		case err != nil:
			d.log.WarnContext(ctx, "update dedup unavailable", "update_id", upd.UpdateID, "err", err)
		case !fresh:
			return domain.ErrDuplicateUpdate
		default:
			marked = true
		}
	}

	err := d.enqueue(ctx, upd)
	if err != nil && marked {
		d.forget(ctx, upd.UpdateID)
	}
	return err
}

func (d *Dispatcher) enqueue(ctx context.Context, upd tgbotapi.Update) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDispatcherClosed
	}

	shard := d.shards[senderID(upd)%int64(len(d.shards))]
	select {
	case shard <- upd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) forget(ctx context.Context, updateID int) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
	defer cancel()
	if err := d.dedup.ForgetUpdate(ctx, updateID); err != nil {
		d.log.WarnContext(ctx, "update mark not released", "update_id", updateID, "err", err)
	}
}

// Close stops intake and waits until every queued update is handled.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, shard := range d.shards {
			close(shard)
		}
	}
	d.mu.Unlock()
	d.wg.Wait()
	d.log.Info("dispatcher drained")
}

func senderID(upd tgbotapi.Update) int64 {
	var id int64
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		id = upd.Message.From.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		id = upd.CallbackQuery.From.ID
	default:
		id = int64(upd.UpdateID)
	}
	if id < 0 {
		id = -id
	}
	return id
}
