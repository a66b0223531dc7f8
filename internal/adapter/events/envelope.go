package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/IDiwizerI/seller-bot/internal/core/domain"
)

const envelopeVersion = 1

// Envelope is the wire format of every event written to the topic.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

func NewEnvelope(producer string, ev domain.Event) (Envelope, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode payload: %w", err)
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     string(ev.Type),
		EventVersion:  envelopeVersion,
		OccurredAt:    ev.At.UTC(),
		Producer:      producer,
		CorrelationID: correlationID(ev),
		Payload:       payload,
	}, nil
}

// PartitionKey keeps all events of one order, or of one listing when there
// is no order, on the same partition.
func PartitionKey(ev domain.Event) []byte {
	return []byte(correlationID(ev))
}

func correlationID(ev domain.Event) string {
	if ev.OrderID != 0 {
		return "order-" + strconv.FormatInt(ev.OrderID, 10)
	}
	return "listing-" + strconv.FormatInt(ev.ListingID, 10)
}

func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
