package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Event is a lifecycle notification keyed by the aggregate it concerns.
type Event struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	AggregateID int64           `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Data        json.RawMessage `json:"data,omitempty"`
}

// New builds an event with a fresh id, marshalling data as its payload.
func New(eventType string, aggregateID int64, data any) (Event, error) {
	evt := Event{
		ID:          uuid.NewString(),
		Type:        eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		evt.Data = raw
	}
	return evt, nil
}

type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	headerEventType = "event_type"
	headerEventID   = "event_id"
)

// Delivery is the broker's answer for one event written by KafkaPublisher.
type Delivery struct {
	EventID     string
	EventType   string
	AggregateID int64
	Err         error
}

// KafkaPublisher writes events to a single topic, keyed by aggregate id so
// that events for one patient stay ordered within a partition. Writes are
// asynchronous: Publish returns once the message is queued and the outcome
// is reported to onDelivery.
type KafkaPublisher struct {
	writer     messageWriter
	onDelivery func(Delivery)
}

// NewKafkaPublisher builds an async publisher. onDelivery may be nil.
func NewKafkaPublisher(brokers []string, topic string, onDelivery func(Delivery)) *KafkaPublisher {
	p := &KafkaPublisher{onDelivery: onDelivery}
	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion:   p.complete,
	}
	return p
}

func (p *KafkaPublisher) complete(msgs []kafka.Message, err error) {
	if p.onDelivery == nil {
		return
	}
	for _, msg := range msgs {
		d := Delivery{Err: err}
		d.AggregateID, _ = strconv.ParseInt(string(msg.Key), 10, 64)
		for _, h := range msg.Headers {
			switch h.Key {
			case headerEventType:
				d.EventType = string(h.Value)
			case headerEventID:
				d.EventID = string(h.Value)
			}
		}
		p.onDelivery(d)
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, evt Event) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(evt.AggregateID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(evt.Type)},
			{Key: headerEventID, Value: []byte(evt.ID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", evt.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards events. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }
