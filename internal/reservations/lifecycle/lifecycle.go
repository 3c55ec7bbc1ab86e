// Package lifecycle holds the booking state machine.
//
//	PENDING   -> CONFIRMED | CANCELLED
//	CONFIRMED -> CHECK_IN  | CANCELLED
//	CHECK_IN  -> CHECK_OUT
//
// CHECK_OUT and CANCELLED are terminal. Nothing ever re-enters PENDING.
package lifecycle

import (
	"fmt"
	reserrors "staybook/internal/reservations/errors"
	"staybook/pkg/model"
	"time"
)

type Role string

const (
	RoleGuest  Role = "guest"
	RoleHost   Role = "host"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
	RoleNone   Role = ""
)

// Trigger identifies who asks for a transition and when.
type Trigger struct {
	ActorID string
	Role    Role
	At      time.Time
	Reason  string
}

// Change records one applied transition.
type Change struct {
	BookingID      string
	Previous       model.BookingState
	Next           model.BookingState
	ActorID        string
	RefundEligible *bool
	At             time.Time
}

var transitions = map[model.BookingState][]model.BookingState{
	model.StatePending:   {model.StateConfirmed, model.StateCancelled},
	model.StateConfirmed: {model.StateCheckIn, model.StateCancelled},
	model.StateCheckIn:   {model.StateCheckOut},
	model.StateCheckOut:  {},
	model.StateCancelled: {},
}

var allowedRoles = map[model.BookingState][]Role{
	model.StateConfirmed: {RoleHost, RoleSystem},
	model.StateCancelled: {RoleGuest, RoleHost, RoleAdmin, RoleSystem},
	model.StateCheckIn:   {RoleHost, RoleAdmin, RoleSystem},
	model.StateCheckOut:  {RoleHost, RoleAdmin, RoleSystem},
}

func CanTransition(from, to model.BookingState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func IsTerminal(state model.BookingState) bool {
	next, known := transitions[state]
	return known && len(next) == 0
}

// IsEditable reports whether dates or guests of a booking in state may change.
func IsEditable(state model.BookingState) bool {
	return state == model.StatePending || state == model.StateConfirmed
}

type Policy struct {
	// CancellationCutoff is how long before check-in a guest may still cancel
	// with a refund or change dates.
	CancellationCutoff time.Duration
}

type Machine struct {
	policy Policy
}

func NewMachine(policy Policy) *Machine {
	return &Machine{policy: policy}
}

// BeforeCutoff reports whether at is no later than check-in minus the cutoff.
func (m *Machine) BeforeCutoff(rng model.DateRange, at time.Time) bool {
	return !at.After(rng.CheckIn.Add(-m.policy.CancellationCutoff))
}

// Apply validates the transition of b to target and mutates b on success.
// Overlap re-validation for CONFIRMED is the caller's job: it needs the
// calendar transaction.
func (m *Machine) Apply(b *model.Booking, target model.BookingState, trig Trigger) (Change, error) {
	if !CanTransition(b.State, target) {
		reason := ""
		if IsTerminal(b.State) {
			reason = "booking is in a terminal state"
		}
		return Change{}, &reserrors.TransitionError{From: b.State, To: target, Reason: reason}
	}
	if !roleAllowed(target, trig.Role) {
		return Change{}, fmt.Errorf("%w: role %q cannot move booking to %s", reserrors.ErrNotOwner, trig.Role, target)
	}

	today := model.TruncateDay(trig.At)
	change := Change{
		BookingID: b.ID,
		Previous:  b.State,
		Next:      target,
		ActorID:   trig.ActorID,
		At:        trig.At,
	}

	switch target {
	case model.StateCheckIn:
		if today.Before(b.CheckIn) {
			return Change{}, &reserrors.TransitionError{From: b.State, To: target, Reason: "check-in date not reached"}
		}
	case model.StateCheckOut:
		if today.Before(b.CheckOut) {
			return Change{}, &reserrors.TransitionError{From: b.State, To: target, Reason: "check-out date not reached"}
		}
	case model.StateCancelled:
		refund := m.refundEligible(b, trig)
		change.RefundEligible = &refund
		at := trig.At
		b.RefundEligible = &refund
		b.CancelledBy = trig.ActorID
		b.CancellationReason = trig.Reason
		b.CancelledAt = &at
	}

	b.State = target
	b.UpdatedAt = trig.At
	return change, nil
}

// Cancellations by the host or the system always refund the guest.
func (m *Machine) refundEligible(b *model.Booking, trig Trigger) bool {
	if trig.Role == RoleHost || trig.Role == RoleSystem {
		return true
	}
	return m.BeforeCutoff(b.DateRange, trig.At)
}

func roleAllowed(target model.BookingState, role Role) bool {
	for _, r := range allowedRoles[target] {
		if r == role {
			return true
		}
	}
	return false
}
