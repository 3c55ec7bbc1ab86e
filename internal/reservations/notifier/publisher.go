package notifier

import (
	"context"
	"fmt"
	"staybook/pkg/kafka"
	"staybook/pkg/logger"
	"staybook/pkg/model"
)

const eventSchemaVersion = "1"

// MessagePublisher is satisfied by *kafka.Producer.
type MessagePublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// KafkaPublisher writes booking events keyed by booking id, so every event
// of one booking lands on the same partition in order.
type KafkaPublisher struct {
	producer MessagePublisher
	source   string
}

func NewKafkaPublisher(producer MessagePublisher, source string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, source: source}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event model.BookingEvent) error {
	msg, err := EventMessage(event, p.source)
	if err != nil {
		return err
	}
	if err := p.producer.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s for booking %s: %w", event.Type, event.BookingID, err)
	}
	return nil
}

func EventMessage(event model.BookingEvent, source string) (kafka.Message, error) {
	return kafka.NewMessage().
		WithKey(event.BookingID).
		WithValue(event).
		WithEventID(event.EventID).
		WithEventType(string(event.Type)).
		WithSchemaVersion(eventSchemaVersion).
		WithSource(source).
		WithTimestamp(event.OccurredAt).
		Build()
}

// LogPublisher writes events to the log. Used when no broker is configured.
type LogPublisher struct {
	log *logger.Logger
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log.Component("booking_events")}
}

func (p *LogPublisher) Publish(ctx context.Context, event model.BookingEvent) error {
	p.log.Info("Booking state changed",
		"event_id", event.EventID,
		"type", event.Type,
		"booking_id", event.BookingID,
		"accommodation_id", event.AccommodationID,
		"previous_state", event.PreviousState,
		"new_state", event.NewState,
		"actor_id", event.ActorID,
	)
	return nil
}
