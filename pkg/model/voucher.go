package model

import "time"

// Voucher is the immutable proof of payment for a booking.
type Voucher struct {
	ID               string    `json:"id" bson:"_id"`
	BookingID        string    `json:"booking_id" bson:"booking_id"`
	Total            int64     `json:"total" bson:"total"`
	Currency         string    `json:"currency" bson:"currency"`
	PaymentReference string    `json:"payment_reference" bson:"payment_reference"`
	IssuedAt         time.Time `json:"issued_at" bson:"issued_at"`
}
