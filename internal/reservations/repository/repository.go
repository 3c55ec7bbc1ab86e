package repository

import (
	"context"
	"fmt"
	"io"
	"staybook/internal/reservations/calendar"
	"staybook/pkg/model"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// CalendarTx is the view of the store inside one calendar transaction. Reads
// observe the transaction snapshot plus its own writes. Writes become visible
// to others only if the transaction commits.
type CalendarTx interface {
	calendar.Source
	FindBooking(ctx context.Context, id string) (*model.Booking, error)
	InsertBooking(ctx context.Context, booking *model.Booking) error
	// UpdateBooking writes booking if its stored version still equals
	// booking.Version, then increments booking.Version.
	UpdateBooking(ctx context.Context, booking *model.Booking) error
	FindVoucher(ctx context.Context, bookingID string) (*model.Voucher, error)
	InsertVoucher(ctx context.Context, voucher *model.Voucher) error
}

type CalendarTxFunc func(ctx context.Context, tx CalendarTx) error

type BookingReader interface {
	calendar.Source
	FindByID(ctx context.Context, id string) (*model.Booking, error)
	// FindDueForCheckIn lists CONFIRMED bookings whose check-in is on or before asOf.
	FindDueForCheckIn(ctx context.Context, asOf time.Time, limit int) ([]*model.Booking, error)
	// FindDueForCheckOut lists CHECK_IN bookings whose check-out is on or before asOf.
	FindDueForCheckOut(ctx context.Context, asOf time.Time, limit int) ([]*model.Booking, error)
}

type AccommodationRepository interface {
	FindByID(ctx context.Context, id string) (*model.Accommodation, error)
	Save(ctx context.Context, accommodation *model.Accommodation) error
}

type ServiceCatalog interface {
	// PriceOf returns the add-ons in the order requested. Every id must belong
	// to the accommodation.
	PriceOf(ctx context.Context, accommodationID string, serviceIDs []string) ([]model.AddOnService, error)
	Save(ctx context.Context, service *model.AddOnService) error
}

type VoucherReader interface {
	FindByBookingID(ctx context.Context, bookingID string) (*model.Voucher, error)
}

// Store is the persistence boundary of the reservation engine.
type Store interface {
	Accommodations() AccommodationRepository
	Services() ServiceCatalog
	Bookings() BookingReader
	Vouchers() VoucherReader

	// ExecuteCalendarTransaction runs fn atomically with respect to every other
	// calendar transaction on the same accommodation. It returns
	// errors.ErrSerializationFailure when a concurrent writer won (nothing was
	// written) and errors.ErrCommitUnknown when the outcome is unknown.
	ExecuteCalendarTransaction(ctx context.Context, accommodationID string, fn CalendarTxFunc) error

	Ping(ctx context.Context) error
}

// SeedData is a bulk fixture of accommodations and their add-on services.
type SeedData struct {
	Accommodations []*model.Accommodation `json:"accommodations"`
	Services       []*model.AddOnService  `json:"services"`
}

// ReadSeed decodes a JSON seed document.
func ReadSeed(r io.Reader) (SeedData, error) {
	var data SeedData
	dec := jsoniter.ConfigCompatibleWithStandardLibrary.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&data); err != nil {
		return SeedData{}, fmt.Errorf("invalid seed document: %w", err)
	}
	return data, nil
}

// Seed upserts every accommodation and service of data into store.
func Seed(ctx context.Context, store Store, data SeedData) error {
	for _, a := range data.Accommodations {
		if err := store.Accommodations().Save(ctx, a); err != nil {
			return err
		}
	}
	for _, s := range data.Services {
		if err := store.Services().Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}
