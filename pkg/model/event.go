package model

import "time"

type BookingEventType string

const (
	EventBookingCreated    BookingEventType = "booking.created"
	EventBookingConfirmed  BookingEventType = "booking.confirmed"
	EventBookingCancelled  BookingEventType = "booking.cancelled"
	EventBookingCheckedIn  BookingEventType = "booking.checked_in"
	EventBookingCheckedOut BookingEventType = "booking.checked_out"
	EventBookingModified   BookingEventType = "booking.modified"
	EventBookingPaid       BookingEventType = "booking.paid"
)

// EventTypeFor returns the event emitted when a booking enters state.
func EventTypeFor(state BookingState) BookingEventType {
	switch state {
	case StatePending:
		return EventBookingCreated
	case StateConfirmed:
		return EventBookingConfirmed
	case StateCancelled:
		return EventBookingCancelled
	case StateCheckIn:
		return EventBookingCheckedIn
	case StateCheckOut:
		return EventBookingCheckedOut
	default:
		return EventBookingModified
	}
}

type BookingEvent struct {
	EventID         string           `json:"event_id"`
	Type            BookingEventType `json:"type"`
	BookingID       string           `json:"booking_id"`
	AccommodationID string           `json:"accommodation_id"`
	GuestID         string           `json:"guest_id"`
	HostID          string           `json:"host_id,omitempty"`
	PreviousState   BookingState     `json:"previous_state,omitempty"`
	NewState        BookingState     `json:"new_state"`
	CheckIn         time.Time        `json:"check_in"`
	CheckOut        time.Time        `json:"check_out"`
	TotalPrice      int64            `json:"total_price"`
	Currency        string           `json:"currency"`
	RefundEligible  *bool            `json:"refund_eligible,omitempty"`
	ActorID         string           `json:"actor_id,omitempty"`
	OccurredAt      time.Time        `json:"occurred_at"`
}
