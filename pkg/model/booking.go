package model

import (
	"time"
)

type BookingState string

const (
	StatePending   BookingState = "PENDING"
	StateConfirmed BookingState = "CONFIRMED"
	StateCheckIn   BookingState = "CHECK_IN"
	StateCheckOut  BookingState = "CHECK_OUT"
	StateCancelled BookingState = "CANCELLED"
)

func (s BookingState) String() string {
	return string(s)
}

type Booking struct {
	ID              string `json:"id" bson:"_id" validate:"required,uuid"`
	AccommodationID string `json:"accommodation_id" bson:"accommodation_id" validate:"required,max=64"`
	GuestID         string `json:"guest_id" bson:"guest_id" validate:"required,max=64"`
	DateRange       `bson:",inline"`
	State           BookingState `json:"state" bson:"state" validate:"required,booking_state"`
	TotalPrice      int64        `json:"total_price" bson:"total_price" validate:"min=0"`
	Currency        string       `json:"currency" bson:"currency" validate:"required,len=3"`

	PaymentConfirmed   bool       `json:"payment_confirmed" bson:"payment_confirmed"`
	RefundEligible     *bool      `json:"refund_eligible,omitempty" bson:"refund_eligible,omitempty"`
	CancelledBy        string     `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancellationReason string     `json:"cancellation_reason,omitempty" bson:"cancellation_reason,omitempty" validate:"omitempty,max=500"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" bson:"cancelled_at,omitempty"`

	Detail DetailBooking `json:"detail" bson:"detail"`

	Version   int64     `json:"version" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// DetailBooking is the price breakdown owned by exactly one Booking.
type DetailBooking struct {
	BookingID   string      `json:"booking_id" bson:"booking_id"`
	NightlyRate int64       `json:"nightly_rate" bson:"nightly_rate"`
	Nights      int         `json:"nights" bson:"nights"`
	GuestCount  int         `json:"guest_count" bson:"guest_count" validate:"min=1"`
	Subtotal    int64       `json:"subtotal" bson:"subtotal"`
	Discount    int64       `json:"discount" bson:"discount"`
	PolicyFee   int64       `json:"policy_fee" bson:"policy_fee"`
	ServiceFee  int64       `json:"service_fee" bson:"service_fee"`
	Total       int64       `json:"total" bson:"total"`
	AddOns      []AddOnLine `json:"add_ons,omitempty" bson:"add_ons,omitempty"`
	ServiceIDs  []string    `json:"service_ids,omitempty" bson:"service_ids,omitempty"`
}

type AddOnLine struct {
	ServiceID string `json:"service_id" bson:"service_id"`
	Name      string `json:"name" bson:"name"`
	Price     int64  `json:"price" bson:"price"`
}

// Clone returns a deep copy so callers can mutate it without aliasing stored state.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	if b.RefundEligible != nil {
		v := *b.RefundEligible
		c.RefundEligible = &v
	}
	if b.CancelledAt != nil {
		v := *b.CancelledAt
		c.CancelledAt = &v
	}
	if b.Detail.AddOns != nil {
		c.Detail.AddOns = append([]AddOnLine(nil), b.Detail.AddOns...)
	}
	if b.Detail.ServiceIDs != nil {
		c.Detail.ServiceIDs = append([]string(nil), b.Detail.ServiceIDs...)
	}
	return &c
}

type CreateBookingRequest struct {
	GuestID         string    `json:"-" validate:"required,max=64,entity_id"`
	AccommodationID string    `json:"accommodation_id" validate:"required,max=64,entity_id"`
	Range           DateRange `json:"-" validate:"-"`
	GuestCount      int       `json:"guest_count" validate:"required,min=1"`
	ServiceIDs      []string  `json:"service_ids,omitempty" validate:"omitempty,max=20,unique,dive,required,max=64,entity_id"`
}

type QuoteRequest struct {
	AccommodationID string    `json:"accommodation_id" validate:"required,max=64,entity_id"`
	Range           DateRange `json:"-" validate:"-"`
	GuestCount      int       `json:"guest_count" validate:"required,min=1"`
	ServiceIDs      []string  `json:"service_ids,omitempty" validate:"omitempty,max=20,unique,dive,required,max=64,entity_id"`
}
