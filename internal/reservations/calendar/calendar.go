// Package calendar answers whether an accommodation is free for a date range.
//
// It never mutates anything. Callers that need a race-free answer must query
// through the calendar transaction that will also perform the write.
package calendar

import (
	"context"
	"sort"
	"staybook/pkg/model"
)

var activeStates = []model.BookingState{
	model.StatePending,
	model.StateConfirmed,
	model.StateCheckIn,
}

// ActiveStates returns the states that occupy calendar nights.
func ActiveStates() []model.BookingState {
	return append([]model.BookingState(nil), activeStates...)
}

func IsActive(state model.BookingState) bool {
	for _, s := range activeStates {
		if s == state {
			return true
		}
	}
	return false
}

// Overlaps is the half-open interval test a.CheckIn < b.CheckOut && b.CheckIn < a.CheckOut.
func Overlaps(a, b model.DateRange) bool {
	return a.Overlaps(b)
}

// Source lists bookings of one accommodation that may occupy rng.
// Implementations may over-fetch; results are filtered again here.
type Source interface {
	FindActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error)
}

// Conflicts returns the active bookings overlapping rng, ignoring excludeID.
func Conflicts(ctx context.Context, src Source, accommodationID string, rng model.DateRange, excludeID string) ([]*model.Booking, error) {
	candidates, err := src.FindActiveBookings(ctx, accommodationID, rng)
	if err != nil {
		return nil, err
	}

	var conflicts []*model.Booking
	for _, b := range candidates {
		if b.ID == excludeID || b.AccommodationID != accommodationID {
			continue
		}
		if IsActive(b.State) && Overlaps(b.DateRange, rng) {
			conflicts = append(conflicts, b)
		}
	}
	sortByCheckIn(conflicts)
	return conflicts, nil
}

func HasConflict(ctx context.Context, src Source, accommodationID string, rng model.DateRange, excludeID string) (bool, error) {
	conflicts, err := Conflicts(ctx, src, accommodationID, rng, excludeID)
	if err != nil {
		return false, err
	}
	return len(conflicts) > 0, nil
}

// ListActive returns the active bookings occupying any night of rng, ordered by check-in.
func ListActive(ctx context.Context, src Source, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	return Conflicts(ctx, src, accommodationID, rng, "")
}

// FreeNights returns the sub-ranges of rng not occupied by any of the bookings.
func FreeNights(rng model.DateRange, occupied []*model.Booking) []model.DateRange {
	sorted := append([]*model.Booking(nil), occupied...)
	sortByCheckIn(sorted)

	var free []model.DateRange
	cursor := rng.CheckIn
	for _, b := range sorted {
		if !b.CheckOut.After(cursor) {
			continue
		}
		if b.CheckIn.After(cursor) {
			end := b.CheckIn
			if end.After(rng.CheckOut) {
				end = rng.CheckOut
			}
			if cursor.Before(end) {
				free = append(free, model.DateRange{CheckIn: cursor, CheckOut: end})
			}
		}
		cursor = b.CheckOut
		if !cursor.Before(rng.CheckOut) {
			return free
		}
	}
	if cursor.Before(rng.CheckOut) {
		free = append(free, model.DateRange{CheckIn: cursor, CheckOut: rng.CheckOut})
	}
	return free
}

func sortByCheckIn(bookings []*model.Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		if bookings[i].CheckIn.Equal(bookings[j].CheckIn) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].CheckIn.Before(bookings[j].CheckIn)
	})
}
