package service

import (
	"context"
	"errors"
	"staybook/internal/reservations/calendar"
	reserrors "staybook/internal/reservations/errors"
	"staybook/internal/reservations/lifecycle"
	"staybook/internal/reservations/payment"
	"staybook/internal/reservations/pricing"
	"staybook/internal/reservations/repository"
	"staybook/internal/reservations/validator"
	"staybook/pkg/config"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/logger"
	"staybook/pkg/model"
	"time"
)

// Notifier receives every committed state change. It must not block.
type Notifier interface {
	OnBookingStateChanged(ctx context.Context, event model.BookingEvent)
}

type ReservationService interface {
	CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error)
	UpdateBookingDates(ctx context.Context, bookingID, actorID string, rng model.DateRange) (*model.Booking, error)
	UpdateGuestCount(ctx context.Context, bookingID, actorID string, guestCount int) (*model.Booking, error)
	CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*model.Booking, error)
	ConfirmBooking(ctx context.Context, bookingID, hostID string) (*model.Booking, error)
	RejectBooking(ctx context.Context, bookingID, hostID, reason string) (*model.Booking, error)
	ConfirmPayment(ctx context.Context, bookingID, actorID string) (*BookingView, error)
	AdvanceStays(ctx context.Context, now time.Time) (AdvanceResult, error)

	GetBooking(ctx context.Context, bookingID string) (*BookingView, error)
	ListActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error)
	Quote(ctx context.Context, req *model.QuoteRequest) (*pricing.Quote, error)
}

// BookingView is a booking together with its voucher, if one was issued.
type BookingView struct {
	*model.Booking
	Voucher *model.Voucher `json:"voucher,omitempty"`
}

type reservationService struct {
	store     repository.Store
	validator *validator.BookingValidator
	machine   *lifecycle.Machine
	notifier  Notifier
	payments  payment.Gateway
	cfg       *config.Config
	log       *logger.Logger
	now       func() time.Time
}

func NewReservationService(
	store repository.Store,
	validator *validator.BookingValidator,
	notifier Notifier,
	payments payment.Gateway,
	cfg *config.Config,
) ReservationService {
	return &reservationService{
		store:     store,
		validator: validator,
		machine:   lifecycle.NewMachine(lifecycle.Policy{CancellationCutoff: cfg.CancellationCutoff}),
		notifier:  notifier,
		payments:  payments,
		cfg:       cfg,
		log:       cfg.Log.Component("reservation_service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *reservationService) CreateBooking(ctx context.Context, req *model.CreateBookingRequest) (*model.Booking, error) {
	if err := s.validator.ValidateCreate(req); err != nil {
		s.log.Warn("Booking request validation failed", "error", err)
		return nil, apperrors.Validation("Invalid booking request", map[string]any{"error": err.Error()})
	}

	rng := req.Range.Normalize()
	if err := s.validateNewRange(rng); err != nil {
		return nil, err
	}

	acc, err := s.bookableAccommodation(ctx, req.AccommodationID)
	if err != nil {
		return nil, err
	}
	if req.GuestCount > acc.MaxGuests {
		return nil, apperrors.CapacityExceeded(req.GuestCount, acc.MaxGuests)
	}

	addOns, err := s.addOns(ctx, acc.ID, req.ServiceIDs)
	if err != nil {
		return nil, err
	}

	var (
		created *model.Booking
		events  []model.BookingEvent
	)
	err = s.inCalendar(ctx, "create booking", acc.ID, func(ctx context.Context, tx repository.CalendarTx) error {
		conflicts, err := calendar.Conflicts(ctx, tx, acc.ID, rng, "")
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return dateConflict(conflicts)
		}

		quote, err := pricing.Calculate(pricingInput(acc, rng, req.GuestCount, addOns))
		if err != nil {
			return pricingError(err)
		}

		now := s.now()
		id := newID()
		b := &model.Booking{
			ID:              id,
			AccommodationID: acc.ID,
			GuestID:         req.GuestID,
			DateRange:       rng,
			State:           model.StatePending,
			TotalPrice:      quote.Total,
			Currency:        acc.Currency,
			Detail:          quote.Detail(id, req.GuestCount, req.ServiceIDs),
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		evs := []model.BookingEvent{s.event(b, acc.HostID, "", req.GuestID, now)}

		if acc.InstantBook {
			change, err := s.machine.Apply(b, model.StateConfirmed, lifecycle.Trigger{
				ActorID: acc.HostID,
				Role:    lifecycle.RoleSystem,
				At:      now,
			})
			if err != nil {
				return transitionError(req.GuestID, "confirm", err)
			}
			evs = append(evs, s.changeEvent(b, acc.HostID, change))
		}

		if err := s.validator.ValidateBooking(b); err != nil {
			return apperrors.Internal("Built an invalid booking", err)
		}
		if err := tx.InsertBooking(ctx, b); err != nil {
			return err
		}

		created, events = b, evs
		return nil
	})
	if err != nil {
		err = s.settleLostRace(ctx, err, acc.ID, rng, "")
		s.log.Warn("Failed to create booking",
			"accommodation_id", acc.ID,
			"guest_id", req.GuestID,
			"check_in", rng.CheckIn,
			"check_out", rng.CheckOut,
			"error", err,
		)
		return nil, err
	}

	s.publish(ctx, events...)
	s.log.Info("Booking created successfully",
		"id", created.ID,
		"accommodation_id", created.AccommodationID,
		"guest_id", created.GuestID,
		"state", created.State,
		"total_price", created.TotalPrice,
	)
	return created, nil
}

func (s *reservationService) UpdateBookingDates(ctx context.Context, bookingID, actorID string, rng model.DateRange) (*model.Booking, error) {
	if bookingID == "" || actorID == "" {
		return nil, apperrors.InvalidInput("Booking ID and actor are required")
	}
	rng = rng.Normalize()
	if err := s.validateNewRange(rng); err != nil {
		return nil, err
	}

	acc, err := s.accommodationOf(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var event model.BookingEvent
	updated, err := s.mutate(ctx, "update booking dates", acc, bookingID, func(ctx context.Context, tx repository.CalendarTx, b *model.Booking) error {
		if actorID != b.GuestID {
			return apperrors.NotOwner(actorID, "change dates of")
		}
		if err := s.checkEditable(b, "dates"); err != nil {
			return err
		}

		conflicts, err := calendar.Conflicts(ctx, tx, b.AccommodationID, rng, b.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return dateConflict(conflicts)
		}

		quote, err := pricing.Calculate(pricingInput(acc, rng, b.Detail.GuestCount, linesToServices(b)))
		if err != nil {
			return pricingError(err)
		}

		now := s.now()
		b.DateRange = rng
		b.TotalPrice = quote.Total
		b.Detail = quote.Detail(b.ID, b.Detail.GuestCount, b.Detail.ServiceIDs)
		b.UpdatedAt = now
		event = s.modifiedEvent(b, acc.HostID, actorID, now)
		return nil
	})
	if err != nil {
		err = s.settleLostRace(ctx, err, acc.ID, rng, bookingID)
		s.log.Warn("Failed to update booking dates", "id", bookingID, "actor_id", actorID, "error", err)
		return nil, err
	}

	s.publish(ctx, event)
	s.log.Info("Booking dates updated successfully",
		"id", updated.ID,
		"check_in", updated.CheckIn,
		"check_out", updated.CheckOut,
		"total_price", updated.TotalPrice,
	)
	return updated, nil
}

func (s *reservationService) UpdateGuestCount(ctx context.Context, bookingID, actorID string, guestCount int) (*model.Booking, error) {
	if bookingID == "" || actorID == "" {
		return nil, apperrors.InvalidInput("Booking ID and actor are required")
	}
	if err := s.validator.ValidateGuestCount(guestCount); err != nil {
		return nil, apperrors.Validation("Invalid guest count", map[string]any{"error": err.Error()})
	}

	acc, err := s.accommodationOf(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if guestCount > acc.MaxGuests {
		return nil, apperrors.CapacityExceeded(guestCount, acc.MaxGuests)
	}

	var event model.BookingEvent
	updated, err := s.mutate(ctx, "update guest count", acc, bookingID, func(ctx context.Context, tx repository.CalendarTx, b *model.Booking) error {
		if actorID != b.GuestID {
			return apperrors.NotOwner(actorID, "change guests of")
		}
		if b.State != model.StatePending {
			return apperrors.IllegalTransition(string(b.State), string(b.State), "guest count can only change while PENDING")
		}

		quote, err := pricing.Calculate(pricingInput(acc, b.DateRange, guestCount, linesToServices(b)))
		if err != nil {
			return pricingError(err)
		}

		now := s.now()
		b.TotalPrice = quote.Total
		b.Detail = quote.Detail(b.ID, guestCount, b.Detail.ServiceIDs)
		b.UpdatedAt = now
		event = s.modifiedEvent(b, acc.HostID, actorID, now)
		return nil
	})
	if err != nil {
		s.log.Warn("Failed to update guest count", "id", bookingID, "actor_id", actorID, "error", err)
		return nil, err
	}

	s.publish(ctx, event)
	s.log.Info("Booking guest count updated successfully", "id", updated.ID, "guest_count", guestCount)
	return updated, nil
}

func (s *reservationService) CancelBooking(ctx context.Context, bookingID, actorID, reason string) (*model.Booking, error) {
	if bookingID == "" || actorID == "" {
		return nil, apperrors.InvalidInput("Booking ID and actor are required")
	}
	if err := s.validator.ValidateReason(reason); err != nil {
		return nil, apperrors.Validation("Invalid cancellation reason", map[string]any{"error": err.Error()})
	}

	acc, err := s.accommodationOf(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var event model.BookingEvent
	cancelled, err := s.mutate(ctx, "cancel booking", acc, bookingID, func(ctx context.Context, tx repository.CalendarTx, b *model.Booking) error {
		role := s.roleOf(actorID, b, acc)
		if role == lifecycle.RoleNone {
			return apperrors.NotOwner(actorID, "cancel")
		}
		change, err := s.machine.Apply(b, model.StateCancelled, lifecycle.Trigger{
			ActorID: actorID,
			Role:    role,
			At:      s.now(),
			Reason:  reason,
		})
		if err != nil {
			return transitionError(actorID, "cancel", err)
		}
		event = s.changeEvent(b, acc.HostID, change)
		return nil
	})
	if err != nil {
		s.log.Warn("Failed to cancel booking", "id", bookingID, "actor_id", actorID, "error", err)
		return nil, err
	}

	s.publish(ctx, event)
	s.log.Info("Booking cancelled successfully",
		"id", cancelled.ID,
		"cancelled_by", actorID,
		"refund_eligible", *cancelled.RefundEligible,
	)
	return cancelled, nil
}

func (s *reservationService) ConfirmBooking(ctx context.Context, bookingID, hostID string) (*model.Booking, error) {
	if bookingID == "" || hostID == "" {
		return nil, apperrors.InvalidInput("Booking ID and host are required")
	}

	acc, err := s.accommodationOf(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var event model.BookingEvent
	confirmed, err := s.mutate(ctx, "confirm booking", acc, bookingID, func(ctx context.Context, tx repository.CalendarTx, b *model.Booking) error {
		if hostID != acc.HostID {
			return apperrors.NotOwner(hostID, "confirm")
		}

		conflicts, err := calendar.Conflicts(ctx, tx, b.AccommodationID, b.DateRange, b.ID)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			return dateConflict(conflicts)
		}

		change, err := s.machine.Apply(b, model.StateConfirmed, lifecycle.Trigger{
			ActorID: hostID,
			Role:    lifecycle.RoleHost,
			At:      s.now(),
		})
		if err != nil {
			return transitionError(hostID, "confirm", err)
		}
		event = s.changeEvent(b, acc.HostID, change)
		return nil
	})
	if err != nil {
		s.log.Warn("Failed to confirm booking", "id", bookingID, "host_id", hostID, "error", err)
		return nil, err
	}

	s.publish(ctx, event)
	s.log.Info("Booking confirmed successfully", "id", confirmed.ID, "host_id", hostID)
	return confirmed, nil
}

func (s *reservationService) RejectBooking(ctx context.Context, bookingID, hostID, reason string) (*model.Booking, error) {
	if bookingID == "" || hostID == "" {
		return nil, apperrors.InvalidInput("Booking ID and host are required")
	}
	if err := s.validator.ValidateReason(reason); err != nil {
		return nil, apperrors.Validation("Invalid rejection reason", map[string]any{"error": err.Error()})
	}

	acc, err := s.accommodationOf(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	var event model.BookingEvent
	rejected, err := s.mutate(ctx, "reject booking", acc, bookingID, func(ctx context.Context, tx repository.CalendarTx, b *model.Booking) error {
		if hostID != acc.HostID {
			return apperrors.NotOwner(hostID, "reject")
		}
		if b.State != model.StatePending {
			return apperrors.IllegalTransition(string(b.State), string(model.StateCancelled), "only PENDING bookings can be rejected")
		}

		change, err := s.machine.Apply(b, model.StateCancelled, lifecycle.Trigger{
			ActorID: hostID,
			Role:    lifecycle.RoleHost,
			At:      s.now(),
			Reason:  reason,
		})
		if err != nil {
			return transitionError(hostID, "reject", err)
		}
		event = s.changeEvent(b, acc.HostID, change)
		return nil
	})
	if err != nil {
		s.log.Warn("Failed to reject booking", "id", bookingID, "host_id", hostID, "error", err)
		return nil, err
	}

	s.publish(ctx, event)
	s.log.Info("Booking rejected successfully", "id", rejected.ID, "host_id", hostID)
	return rejected, nil
}

// mutate loads the booking inside a calendar transaction, lets fn change it
// and writes it back. fn runs again from scratch if the transaction is retried.
func (s *reservationService) mutate(
	ctx context.Context,
	op string,
	acc *model.Accommodation,
	bookingID string,
	fn func(ctx context.Context, tx repository.CalendarTx, b *model.Booking) error,
) (*model.Booking, error) {
	var result *model.Booking
	err := s.inCalendar(ctx, op, acc.ID, func(ctx context.Context, tx repository.CalendarTx) error {
		b, err := tx.FindBooking(ctx, bookingID)
		if err != nil {
			return bookingLookupError(bookingID, err)
		}
		if b.AccommodationID != acc.ID {
			return apperrors.Conflict("Booking moved to another accommodation")
		}
		if err := fn(ctx, tx, b); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		result = b
		return nil
	})
	return result, err
}

// checkEditable enforces the state and cutoff rules shared by every edit.
func (s *reservationService) checkEditable(b *model.Booking, what string) error {
	if !lifecycle.IsEditable(b.State) {
		return apperrors.IllegalTransition(string(b.State), string(b.State), what+" can only change while PENDING or CONFIRMED")
	}
	if b.PaymentConfirmed {
		return apperrors.IllegalTransition(string(b.State), string(b.State), "booking is already paid")
	}
	if !s.machine.BeforeCutoff(b.DateRange, s.now()) {
		return apperrors.IllegalTransition(string(b.State), string(b.State), "change cutoff has passed")
	}
	return nil
}

func (s *reservationService) validateNewRange(rng model.DateRange) error {
	if !rng.Valid() {
		return apperrors.InvalidRange("check_out must be at least one night after check_in")
	}
	if rng.CheckIn.Before(model.TruncateDay(s.now())) {
		return apperrors.InvalidRange("check_in cannot be in the past")
	}
	return nil
}

func (s *reservationService) roleOf(actorID string, b *model.Booking, acc *model.Accommodation) lifecycle.Role {
	switch {
	case actorID == "":
		return lifecycle.RoleNone
	case actorID == b.GuestID:
		return lifecycle.RoleGuest
	case acc != nil && actorID == acc.HostID:
		return lifecycle.RoleHost
	case s.cfg.IsAdmin(actorID):
		return lifecycle.RoleAdmin
	default:
		return lifecycle.RoleNone
	}
}

func (s *reservationService) bookableAccommodation(ctx context.Context, id string) (*model.Accommodation, error) {
	acc, err := s.accommodation(ctx, id)
	if err != nil {
		return nil, err
	}
	if acc.ApprovalStatus != model.ApprovalApproved {
		return nil, apperrors.AccommodationUnavailable(acc.ID, string(acc.ApprovalStatus))
	}
	if acc.OperationalStatus != model.Operational {
		return nil, apperrors.AccommodationUnavailable(acc.ID, string(acc.OperationalStatus))
	}
	return acc, nil
}

func (s *reservationService) accommodation(ctx context.Context, id string) (*model.Accommodation, error) {
	var acc *model.Accommodation
	err := s.read(ctx, "find accommodation", func(ctx context.Context) error {
		var err error
		acc, err = s.store.Accommodations().FindByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, reserrors.ErrAccommodationNotFound) {
			return nil, apperrors.AccommodationNotFound(id)
		}
		return nil, s.readError("Failed to retrieve accommodation", err)
	}
	return acc, nil
}

// accommodationOf resolves the accommodation a booking belongs to. The
// booking itself is re-read inside the calendar transaction.
func (s *reservationService) accommodationOf(ctx context.Context, bookingID string) (*model.Accommodation, error) {
	b, err := s.booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.accommodation(ctx, b.AccommodationID)
}

func (s *reservationService) booking(ctx context.Context, id string) (*model.Booking, error) {
	var b *model.Booking
	err := s.read(ctx, "find booking", func(ctx context.Context) error {
		var err error
		b, err = s.store.Bookings().FindByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, reserrors.ErrNotFound) {
			return nil, apperrors.NotFoundWithID("Booking", id)
		}
		return nil, s.readError("Failed to retrieve booking", err)
	}
	return b, nil
}

func (s *reservationService) addOns(ctx context.Context, accommodationID string, serviceIDs []string) ([]model.AddOnService, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}
	var services []model.AddOnService
	err := s.read(ctx, "price add-ons", func(ctx context.Context) error {
		var err error
		services, err = s.store.Services().PriceOf(ctx, accommodationID, serviceIDs)
		return err
	})
	if err != nil {
		if errors.Is(err, reserrors.ErrServiceNotFound) {
			return nil, apperrors.Validation("Unknown add-on service", map[string]any{"error": err.Error()})
		}
		return nil, s.readError("Failed to price add-on services", err)
	}
	return services, nil
}

func pricingInput(acc *model.Accommodation, rng model.DateRange, guests int, addOns []model.AddOnService) pricing.Input {
	return pricing.Input{
		NightlyRate:    acc.NightlyRate,
		Range:          rng,
		GuestCount:     guests,
		AddOns:         addOns,
		FeePolicy:      acc.FeePolicy,
		DiscountPolicy: acc.DiscountPolicy,
	}
}

// linesToServices reprices with the add-on prices locked in at booking time.
func linesToServices(b *model.Booking) []model.AddOnService {
	services := make([]model.AddOnService, 0, len(b.Detail.AddOns))
	for _, line := range b.Detail.AddOns {
		services = append(services, model.AddOnService{
			ID:              line.ServiceID,
			AccommodationID: b.AccommodationID,
			Name:            line.Name,
			Price:           line.Price,
		})
	}
	return services
}
