package service

import (
	"context"
	"staybook/internal/reservations/calendar"
	"staybook/internal/reservations/pricing"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/model"
)

func (s *reservationService) GetBooking(ctx context.Context, bookingID string) (*BookingView, error) {
	if bookingID == "" {
		return nil, apperrors.InvalidInput("Booking ID is required")
	}
	b, err := s.booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, b)
}

func (s *reservationService) ListActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	if accommodationID == "" {
		return nil, apperrors.InvalidInput("Accommodation ID is required")
	}
	rng = rng.Normalize()
	if !rng.Valid() {
		return nil, apperrors.InvalidRange("check_out must be after check_in")
	}
	if _, err := s.accommodation(ctx, accommodationID); err != nil {
		return nil, err
	}

	var bookings []*model.Booking
	err := s.read(ctx, "list active bookings", func(ctx context.Context) error {
		var err error
		bookings, err = calendar.ListActive(ctx, s.store.Bookings(), accommodationID, rng)
		return err
	})
	if err != nil {
		return nil, s.readError("Failed to list active bookings", err)
	}
	if bookings == nil {
		bookings = []*model.Booking{}
	}
	return bookings, nil
}

// Quote prices a stay without reserving anything.
func (s *reservationService) Quote(ctx context.Context, req *model.QuoteRequest) (*pricing.Quote, error) {
	if err := s.validator.ValidateQuote(req); err != nil {
		return nil, apperrors.Validation("Invalid quote request", map[string]any{"error": err.Error()})
	}
	rng := req.Range.Normalize()
	if !rng.Valid() {
		return nil, apperrors.InvalidRange("check_out must be at least one night after check_in")
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

	quote, err := pricing.Calculate(pricingInput(acc, rng, req.GuestCount, addOns))
	if err != nil {
		return nil, pricingError(err)
	}
	return &quote, nil
}
