package errors

import (
	"errors"
	"fmt"
	"staybook/pkg/model"
)

var (
	ErrNotFound = errors.New("booking not found")

	ErrAccommodationNotFound = errors.New("accommodation not found")

	ErrServiceNotFound = errors.New("add-on service not found")

	ErrVoucherNotFound = errors.New("voucher not found")

	ErrVoucherExists = errors.New("voucher already issued for booking")

	// ErrOverlap is raised by a storage-level constraint when a write would
	// create two overlapping active bookings for one accommodation.
	ErrOverlap = errors.New("booking overlaps an active booking")

	// ErrSerializationFailure means a concurrent calendar transaction won and
	// this one was aborted without writing anything. Safe to retry.
	ErrSerializationFailure = errors.New("calendar transaction aborted by a concurrent writer")

	// ErrCommitUnknown means the commit was sent but its outcome is unknown.
	// Never retry a write after this error.
	ErrCommitUnknown = errors.New("calendar transaction commit outcome unknown")

	// ErrStaleBooking means the booking changed since it was read.
	ErrStaleBooking = errors.New("booking was modified concurrently")

	ErrIllegalTransition = errors.New("illegal booking state transition")

	ErrNotOwner = errors.New("actor does not own the booking")
)

// TransitionError describes a rejected state change.
type TransitionError struct {
	From   model.BookingState
	To     model.BookingState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot move booking from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("cannot move booking from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// Retryable reports whether err aborted a calendar transaction before any write
// became visible.
func Retryable(err error) bool {
	return errors.Is(err, ErrSerializationFailure) || errors.Is(err, ErrStaleBooking)
}
