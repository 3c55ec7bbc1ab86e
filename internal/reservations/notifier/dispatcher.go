package notifier

import (
	"context"
	"fmt"
	"staybook/pkg/kafka"
	"staybook/pkg/logger"
	"staybook/pkg/model"
)

type Recipient string

const (
	RecipientGuest Recipient = "guest"
	RecipientHost  Recipient = "host"
)

type Notification struct {
	EventID   string
	BookingID string
	Recipient Recipient
	UserID    string
	Subject   string
}

type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher turns booking events consumed from Kafka into notifications
// for the guest and the host.
type Dispatcher struct {
	sender Sender
	log    *logger.Logger
}

func NewDispatcher(sender Sender, log *logger.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, log: log.Component("dispatcher")}
}

// Handle is a kafka.MessageHandler.
func (d *Dispatcher) Handle(ctx context.Context, msg kafka.Message) error {
	var event model.BookingEvent
	if err := msg.DecodeValue(&event); err != nil {
		return kafka.NewPermanentError("failed to decode booking event", err)
	}
	if event.BookingID == "" || event.Type == "" {
		return kafka.NewPermanentError(fmt.Sprintf("incomplete booking event %s", msg.GetEventID()), nil)
	}

	for _, n := range Notifications(event) {
		if err := d.sender.Send(ctx, n); err != nil {
			return kafka.NewTransientError(fmt.Sprintf("failed to notify %s", n.Recipient), err)
		}
	}
	return nil
}

// Notifications lists who hears about event.
func Notifications(event model.BookingEvent) []Notification {
	subject := subjectFor(event)
	if subject == "" {
		return nil
	}

	var out []Notification
	add := func(r Recipient, userID string) {
		if userID == "" || userID == event.ActorID {
			return
		}
		out = append(out, Notification{
			EventID:   event.EventID,
			BookingID: event.BookingID,
			Recipient: r,
			UserID:    userID,
			Subject:   subject,
		})
	}

	switch event.Type {
	case model.EventBookingCreated, model.EventBookingModified, model.EventBookingPaid:
		add(RecipientHost, event.HostID)
		add(RecipientGuest, event.GuestID)
	case model.EventBookingConfirmed, model.EventBookingCancelled:
		add(RecipientGuest, event.GuestID)
		add(RecipientHost, event.HostID)
	case model.EventBookingCheckedIn, model.EventBookingCheckedOut:
		add(RecipientHost, event.HostID)
	}
	return out
}

func subjectFor(event model.BookingEvent) string {
	stay := fmt.Sprintf("%s to %s", event.CheckIn.Format(model.DateLayout), event.CheckOut.Format(model.DateLayout))
	switch event.Type {
	case model.EventBookingCreated:
		return "New booking request for " + stay
	case model.EventBookingConfirmed:
		return "Booking confirmed for " + stay
	case model.EventBookingCancelled:
		if event.RefundEligible != nil && *event.RefundEligible {
			return "Booking cancelled for " + stay + ", refund due"
		}
		return "Booking cancelled for " + stay
	case model.EventBookingModified:
		return "Booking updated: " + stay
	case model.EventBookingPaid:
		return "Payment received for " + stay
	case model.EventBookingCheckedIn:
		return "Guest checked in"
	case model.EventBookingCheckedOut:
		return "Guest checked out"
	default:
		return ""
	}
}

type LogSender struct {
	log *logger.Logger
}

func NewLogSender(log *logger.Logger) *LogSender {
	return &LogSender{log: log.Component("sender")}
}

func (s *LogSender) Send(ctx context.Context, n Notification) error {
	s.log.Info("Notification sent",
		"event_id", n.EventID,
		"booking_id", n.BookingID,
		"recipient", n.Recipient,
		"user_id", n.UserID,
		"subject", n.Subject,
	)
	return nil
}
