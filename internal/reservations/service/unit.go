package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"staybook/internal/reservations/calendar"
	reserrors "staybook/internal/reservations/errors"
	"staybook/internal/reservations/lifecycle"
	"staybook/internal/reservations/pricing"
	"staybook/internal/reservations/repository"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/model"
	"time"

	"github.com/google/uuid"
)

const (
	maxAttempts                  = 2
	reasonConcurrentModification = "concurrent_modification"
)

// inCalendar runs fn as one calendar transaction on accommodationID. A
// transaction that lost to a concurrent writer is retried once; a second loss
// is reported to the caller as a date conflict.
func (s *reservationService) inCalendar(ctx context.Context, op, accommodationID string, fn repository.CalendarTxFunc) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.store.ExecuteCalendarTransaction(ctx, accommodationID, fn)
		if err == nil || !reserrors.Retryable(err) || attempt == maxAttempts {
			break
		}

		s.log.Debug("Calendar transaction lost to a concurrent writer, retrying",
			"operation", op,
			"accommodation_id", accommodationID,
			"attempt", attempt,
		)
		if werr := s.backoff(ctx); werr != nil {
			err = werr
			break
		}
	}
	return unitError(op, err)
}

func (s *reservationService) backoff(ctx context.Context) error {
	if s.cfg.RetryBackoff <= 0 {
		return ctx.Err()
	}
	delay := s.cfg.RetryBackoff/2 + rand.N(s.cfg.RetryBackoff/2+1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func unitError(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case reserrors.Retryable(err):
		return apperrors.DateConflict("Booking calendar changed concurrently, please retry",
			map[string]any{"reason": reasonConcurrentModification}).WithCause(err)
	case errors.Is(err, reserrors.ErrOverlap):
		return apperrors.DateConflict("Requested dates overlap an active booking", nil).WithCause(err)
	case errors.Is(err, reserrors.ErrVoucherExists):
		return apperrors.Conflict("Voucher already issued for booking").WithCause(err)
	case errors.Is(err, reserrors.ErrCommitUnknown),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return apperrors.Unavailable("booking store").WithCause(err)
	case errors.Is(err, reserrors.ErrAccommodationNotFound):
		return apperrors.AccommodationNotFound("").WithCause(err)
	case errors.Is(err, reserrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking", "").WithCause(err)
	default:
		return apperrors.Internal("Failed to "+op, err)
	}
}

// settleLostRace decides what a calendar transaction that lost twice to
// concurrent writers means for rng. If committed bookings now overlap rng the
// caller gets a date conflict naming them; otherwise the loss was contention
// on other dates and the caller gets a retryable unavailable error.
func (s *reservationService) settleLostRace(ctx context.Context, err error, accommodationID string, rng model.DateRange, excludeID string) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != apperrors.CodeDateConflict ||
		appErr.Details["reason"] != reasonConcurrentModification {
		return err
	}

	var conflicts []*model.Booking
	lookupErr := s.read(ctx, "recheck calendar", func(ctx context.Context) error {
		var err error
		conflicts, err = calendar.Conflicts(ctx, s.store.Bookings(), accommodationID, rng, excludeID)
		return err
	})
	if lookupErr != nil {
		s.log.Warn("Calendar recheck after lost race failed", "accommodation_id", accommodationID, "error", lookupErr)
		return err
	}

	if len(conflicts) > 0 {
		conflict := apperrors.AsAppError(dateConflict(conflicts))
		conflict.Details["reason"] = reasonConcurrentModification
		return conflict.WithCause(appErr.Err)
	}
	return apperrors.Unavailable("booking calendar").
		WithDetails(map[string]any{"reason": reasonConcurrentModification}).
		WithCause(appErr.Err)
}

// read runs a lookup bounded by the read timeout, retrying once with backoff
// on infrastructure errors.
func (s *reservationService) read(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.readOnce(ctx, fn)
		if err == nil || isLookupMiss(err) || ctx.Err() != nil {
			return err
		}
		if attempt < maxAttempts {
			s.log.Debug("Read failed, retrying", "operation", op, "error", err)
			if werr := s.backoff(ctx); werr != nil {
				return err
			}
		}
	}
	return err
}

func (s *reservationService) readOnce(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	return fn(ctx)
}

func isLookupMiss(err error) bool {
	return errors.Is(err, reserrors.ErrNotFound) ||
		errors.Is(err, reserrors.ErrAccommodationNotFound) ||
		errors.Is(err, reserrors.ErrServiceNotFound) ||
		errors.Is(err, reserrors.ErrVoucherNotFound)
}

func (s *reservationService) readError(message string, err error) error {
	s.log.Error(message, "error", err)
	return apperrors.Unavailable("booking store").WithCause(err)
}

func bookingLookupError(id string, err error) error {
	if errors.Is(err, reserrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Booking", id)
	}
	return err
}

func dateConflict(conflicts []*model.Booking) error {
	ids := make([]string, 0, len(conflicts))
	for _, b := range conflicts {
		ids = append(ids, b.ID)
	}
	return apperrors.DateConflict("Requested dates overlap an active booking",
		map[string]any{"conflicting_booking_ids": ids})
}

func pricingError(err error) error {
	switch {
	case errors.Is(err, pricing.ErrInvalidRange):
		return apperrors.InvalidRange(err.Error())
	case errors.Is(err, pricing.ErrInvalidAmount):
		return apperrors.InvalidAmount(err.Error())
	default:
		return apperrors.Internal("Failed to price booking", err)
	}
}

func transitionError(actorID, action string, err error) error {
	var te *reserrors.TransitionError
	if errors.As(err, &te) {
		return apperrors.IllegalTransition(string(te.From), string(te.To), te.Reason).WithCause(err)
	}
	if errors.Is(err, reserrors.ErrNotOwner) {
		return apperrors.NotOwner(actorID, action).WithCause(err)
	}
	return apperrors.Internal("Failed to "+action+" booking", err)
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *reservationService) event(b *model.Booking, hostID string, previous model.BookingState, actorID string, at time.Time) model.BookingEvent {
	return model.BookingEvent{
		EventID:         newID(),
		Type:            model.EventTypeFor(b.State),
		BookingID:       b.ID,
		AccommodationID: b.AccommodationID,
		GuestID:         b.GuestID,
		HostID:          hostID,
		PreviousState:   previous,
		NewState:        b.State,
		CheckIn:         b.CheckIn,
		CheckOut:        b.CheckOut,
		TotalPrice:      b.TotalPrice,
		Currency:        b.Currency,
		RefundEligible:  b.RefundEligible,
		ActorID:         actorID,
		OccurredAt:      at,
	}
}

func (s *reservationService) changeEvent(b *model.Booking, hostID string, change lifecycle.Change) model.BookingEvent {
	e := s.event(b, hostID, change.Previous, change.ActorID, change.At)
	e.Type = model.EventTypeFor(change.Next)
	e.NewState = change.Next
	e.RefundEligible = change.RefundEligible
	return e
}

func (s *reservationService) modifiedEvent(b *model.Booking, hostID, actorID string, at time.Time) model.BookingEvent {
	e := s.event(b, hostID, b.State, actorID, at)
	e.Type = model.EventBookingModified
	return e
}

// publish hands committed changes to the notifier. Delivery failures never
// reach the caller.
func (s *reservationService) publish(ctx context.Context, events ...model.BookingEvent) {
	if s.notifier == nil {
		return
	}
	for _, e := range events {
		s.notifier.OnBookingStateChanged(context.WithoutCancel(ctx), e)
	}
}
