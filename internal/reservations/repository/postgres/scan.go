package postgres

import (
	"fmt"
	"staybook/pkg/model"
	"time"
)

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*model.Booking, error) {
	var (
		b                  model.Booking
		state              string
		addOns, serviceIDs []byte
	)
	err := row.Scan(
		&b.ID, &b.AccommodationID, &b.GuestID,
		&b.CheckIn, &b.CheckOut, &state,
		&b.TotalPrice, &b.Currency, &b.PaymentConfirmed,
		&b.RefundEligible, &b.CancelledBy, &b.CancellationReason,
		&b.CancelledAt, &b.Version, &b.CreatedAt, &b.UpdatedAt,
		&b.Detail.NightlyRate, &b.Detail.Nights, &b.Detail.GuestCount,
		&b.Detail.Subtotal, &b.Detail.Discount, &b.Detail.PolicyFee,
		&b.Detail.ServiceFee, &b.Detail.Total, &addOns, &serviceIDs,
	)
	if err != nil {
		return nil, err
	}

	b.State = model.BookingState(state)
	b.CheckIn = dateOnly(b.CheckIn)
	b.CheckOut = dateOnly(b.CheckOut)
	b.Detail.BookingID = b.ID
	if err := decodeDetailLists(&b.Detail, addOns, serviceIDs); err != nil {
		return nil, err
	}
	return &b, nil
}

// dateOnly keeps the calendar day of a DATE column as UTC midnight.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func decodeDetailLists(d *model.DetailBooking, addOns, serviceIDs []byte) error {
	if len(addOns) > 0 {
		if err := json.Unmarshal(addOns, &d.AddOns); err != nil {
			return fmt.Errorf("invalid add_ons: %w", err)
		}
	}
	if len(serviceIDs) > 0 {
		if err := json.Unmarshal(serviceIDs, &d.ServiceIDs); err != nil {
			return fmt.Errorf("invalid service_ids: %w", err)
		}
	}
	return nil
}

func scanAccommodation(row rowScanner) (*model.Accommodation, error) {
	var (
		a                          model.Accommodation
		approval, operational, fee string
		tiers                      []byte
	)
	err := row.Scan(
		&a.ID, &a.HostID, &a.Name, &a.NightlyRate, &a.Currency, &a.MaxGuests,
		&approval, &operational, &fee, &a.FeePolicy.Amount,
		&a.FeePolicy.BasisPoints, &tiers, &a.InstantBook, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.ApprovalStatus = model.ApprovalStatus(approval)
	a.OperationalStatus = model.OperationalStatus(operational)
	a.FeePolicy.Type = model.FeeType(fee)
	if len(tiers) > 0 {
		if err := json.Unmarshal(tiers, &a.DiscountPolicy.LongStay); err != nil {
			return nil, fmt.Errorf("invalid discount_tiers: %w", err)
		}
	}
	return &a, nil
}
