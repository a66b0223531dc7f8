package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher queues events in memory and writes them from a single
// goroutine. Publish never blocks: a full queue drops the event with a warning.
type KafkaPublisher struct {
	w        messageWriter
	producer string
	log      *slog.Logger

	mu      sync.RWMutex
	closed  bool
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewKafkaPublisher(brokers []string, topic, producer string, buf int, log *slog.Logger) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newKafkaPublisher(w, producer, buf, log)
}

func newKafkaPublisher(w messageWriter, producer string, buf int, log *slog.Logger) *KafkaPublisher {
	if buf <= 0 {
		buf = 256
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &KafkaPublisher{
		w:        w,
		producer: producer,
		log:      log,
		inbox:    make(chan kafka.Message, buf),
		closeCh:  make(chan struct{}),
	}
}

// Start runs the write loop until Close is called, then flushes what is queued.
func (p *KafkaPublisher) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.log.Error("event write failed", "key", string(m.Key), "err", err)
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.log.Error("event writer close failed", "err", err)
		}
	}()
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev domain.Event) {
	env, err := NewEnvelope(p.producer, ev)
	if err != nil {
		p.log.ErrorContext(ctx, "event encode failed", "type", ev.Type, "err", err)
		return
	}
	value, err := json.Marshal(env)
	if err != nil {
		p.log.ErrorContext(ctx, "event encode failed", "type", ev.Type, "err", err)
		return
	}
	msg := kafka.Message{
		Key:   PartitionKey(ev),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(env.EventVersion))},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.WarnContext(ctx, "event dropped after close", "type", ev.Type)
		return
	}
	select {
	case p.inbox <- msg:
	default:
		p.log.WarnContext(ctx, "event queue full, dropping", "type", ev.Type, "key", string(msg.Key))
	}
}

// Close stops accepting events. Queued events are still written.
func (p *KafkaPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

// WaitClosed blocks until the write loop has flushed and exited.
func (p *KafkaPublisher) WaitClosed() { <-p.closeCh }

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.Event) {}
