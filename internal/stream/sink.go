// Package stream forwards deal domain events to Kafka for downstream
// consumers such as analytics or CRM sync.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"salesflow_backend/internal/events"
	"salesflow_backend/platform/config"
	"salesflow_backend/platform/logger"

	"github.com/segmentio/kafka-go"
)

// messageWriter is the subset of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Envelope is the record value written to the topic.
type Envelope struct {
	Name       string          `json:"name"`
	DealID     string          `json:"dealId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Payload    json.RawMessage `json:"payload"`
}

// Sink writes every deal event to one topic keyed by deal id, so a
// partition sees a deal's events in order.
type Sink struct {
	writer messageWriter
	log    *logger.Logger
}

// NewSink creates a sink for the configured brokers and topic.
func NewSink(cfg config.StreamConfig, log *logger.Logger) *Sink {
	return &Sink{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.GetKafkaBrokers()...),
			Topic:        cfg.GetKafkaDealsTopic(),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Register subscribes the sink to every deal event.
func (s *Sink) Register(bus events.Bus) {
	for _, name := range events.DealEventNames {
		bus.Subscribe(name, s)
	}
}

// Handle implements events.Handler.
func (s *Sink) Handle(ctx context.Context, event events.Event) error {
	msg, err := encode(event)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s to kafka: %w", event.EventName(), err)
	}
	s.log.Debug("event streamed", "event", event.EventName(), "deal_id", string(msg.Key))
	return nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}

func encode(event events.Event) (kafka.Message, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", event.EventName(), err)
	}
	id := dealID(event)
	value, err := json.Marshal(Envelope{
		Name:       event.EventName(),
		DealID:     id,
		OccurredAt: event.OccurredAt(),
		Payload:    payload,
	})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode envelope: %w", err)
	}
	return kafka.Message{
		Key:   []byte(id),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(event.EventName())},
		},
	}, nil
}

func dealID(event events.Event) string {
	switch e := event.(type) {
	case events.DealTurnCompleted:
		return e.DealID
	case events.DealStageChanged:
		return e.DealID
	case events.DealQuotationDetected:
		return e.DealID
	case events.DealDeleted:
		return e.DealID
	default:
		return ""
	}
}
