package service

import (
	"context"
	"errors"
	"staybook/internal/reservations/lifecycle"
	"staybook/internal/reservations/repository"
	"staybook/pkg/model"
	"time"
)

const (
	sweepBatchSize = 200
	systemActorID  = "system"
)

var errStateMoved = errors.New("booking left the expected state")

// AdvanceResult counts what one sweep did.
type AdvanceResult struct {
	CheckedIn  int `json:"checked_in"`
	CheckedOut int `json:"checked_out"`
	Failed     int `json:"failed"`
}

// AdvanceStays moves CONFIRMED bookings whose check-in day has come to
// CHECK_IN, then CHECK_IN bookings whose check-out day has come to CHECK_OUT.
// Each booking is advanced in its own calendar transaction, so one failure
// does not stop the sweep.
func (s *reservationService) AdvanceStays(ctx context.Context, now time.Time) (AdvanceResult, error) {
	var result AdvanceResult
	today := model.TruncateDay(now)
	hosts := make(map[string]*model.Accommodation)

	var due []*model.Booking
	err := s.read(ctx, "find due check-ins", func(ctx context.Context) error {
		var err error
		due, err = s.store.Bookings().FindDueForCheckIn(ctx, today, sweepBatchSize)
		return err
	})
	if err != nil {
		return result, s.readError("Failed to list bookings due for check-in", err)
	}
	for _, b := range due {
		switch err := s.advance(ctx, b, model.StateConfirmed, model.StateCheckIn, now, hosts); {
		case err == nil:
			result.CheckedIn++
		case errors.Is(err, errStateMoved):
		default:
			result.Failed++
		}
	}

	err = s.read(ctx, "find due check-outs", func(ctx context.Context) error {
		var err error
		due, err = s.store.Bookings().FindDueForCheckOut(ctx, today, sweepBatchSize)
		return err
	})
	if err != nil {
		return result, s.readError("Failed to list bookings due for check-out", err)
	}
	for _, b := range due {
		switch err := s.advance(ctx, b, model.StateCheckIn, model.StateCheckOut, now, hosts); {
		case err == nil:
			result.CheckedOut++
		case errors.Is(err, errStateMoved):
		default:
			result.Failed++
		}
	}

	if result.CheckedIn+result.CheckedOut+result.Failed > 0 {
		s.log.Info("Advanced stays",
			"checked_in", result.CheckedIn,
			"checked_out", result.CheckedOut,
			"failed", result.Failed,
		)
	}
	return result, nil
}

func (s *reservationService) advance(
	ctx context.Context,
	due *model.Booking,
	from, to model.BookingState,
	now time.Time,
	hosts map[string]*model.Accommodation,
) error {
	acc, ok := hosts[due.AccommodationID]
	if !ok {
		var err error
		acc, err = s.accommodation(ctx, due.AccommodationID)
		if err != nil {
			s.log.Error("Failed to load accommodation for sweep", "booking_id", due.ID, "error", err)
			return err
		}
		hosts[acc.ID] = acc
	}

	var event model.BookingEvent
	_, err := s.mutate(ctx, "advance stay", acc, due.ID, func(ctx context.Context, tx repository.CalendarTx, b *model.Booking) error {
		if b.State != from {
			return errStateMoved
		}
		change, err := s.machine.Apply(b, to, lifecycle.Trigger{
			ActorID: systemActorID,
			Role:    lifecycle.RoleSystem,
			At:      now,
		})
		if err != nil {
			return transitionError(systemActorID, "advance", err)
		}
		event = s.changeEvent(b, acc.HostID, change)
		return nil
	})
	if err != nil {
		if !errors.Is(err, errStateMoved) {
			s.log.Warn("Failed to advance stay",
				"booking_id", due.ID,
				"target_state", to,
				"error", err,
			)
		}
		return err
	}

	s.publish(ctx, event)
	return nil
}
