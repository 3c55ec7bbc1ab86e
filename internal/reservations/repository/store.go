package repository

import (
	"context"
	"errors"
	"fmt"
	reserrors "staybook/internal/reservations/errors"
	"staybook/pkg/config"
	mongotx "staybook/pkg/db/mongo"
	"staybook/pkg/logger"
	"staybook/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type mongoStore struct {
	cfg            *config.Config
	log            *logger.Logger
	client         *mongo.Client
	txManager      mongotx.TransactionManager
	bookings       *mongoBookingRepository
	guards         *mongoCalendarGuardRepository
	accommodations *mongoAccommodationRepository
	services       *mongoServiceCatalog
	vouchers       *mongoVoucherRepository
}

// NewMongoStore builds the MongoDB store. Calendar transactions need a replica
// set or sharded cluster.
func NewMongoStore(cfg *config.Config) Store {
	client := cfg.Client.Mongo
	db := client.Database(cfg.MongoDatabaseName)
	return &mongoStore{
		cfg:            cfg,
		log:            cfg.Log.Component("mongo_store"),
		client:         client,
		txManager:      mongotx.NewTransactionManager(client),
		bookings:       newMongoBookingRepository(cfg, db),
		guards:         newMongoCalendarGuardRepository(db),
		accommodations: newMongoAccommodationRepository(cfg, db),
		services:       newMongoServiceCatalog(cfg, db),
		vouchers:       newMongoVoucherRepository(cfg, db),
	}
}

func (s *mongoStore) Accommodations() AccommodationRepository { return s.accommodations }
func (s *mongoStore) Services() ServiceCatalog                { return s.services }
func (s *mongoStore) Bookings() BookingReader                 { return s.bookings }
func (s *mongoStore) Vouchers() VoucherReader                 { return s.vouchers }

func (s *mongoStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *mongoStore) ExecuteCalendarTransaction(ctx context.Context, accommodationID string, fn CalendarTxFunc) error {
	ctx, cancel := withTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	err := s.txManager.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		guard, err := s.guards.Touch(sessCtx, accommodationID)
		if err != nil {
			return err
		}
		s.log.Debug("Calendar guard acquired",
			"accommodation_id", accommodationID,
			"guard_version", guard.Version,
		)
		return fn(sessCtx, &mongoCalendarTx{store: s})
	})
	return mapTransactionError(err)
}

func mapTransactionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongotx.ErrTransientTransaction):
		return fmt.Errorf("%w: %v", reserrors.ErrSerializationFailure, err)
	case errors.Is(err, mongotx.ErrUnknownCommitResult):
		return fmt.Errorf("%w: %v", reserrors.ErrCommitUnknown, err)
	default:
		return err
	}
}

// mongoCalendarTx routes every call through the session context it is given,
// so all reads and writes share the transaction snapshot.
type mongoCalendarTx struct {
	store *mongoStore
}

func (t *mongoCalendarTx) FindActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	return t.store.bookings.FindActiveBookings(ctx, accommodationID, rng)
}

func (t *mongoCalendarTx) FindBooking(ctx context.Context, id string) (*model.Booking, error) {
	return t.store.bookings.FindByID(ctx, id)
}

func (t *mongoCalendarTx) InsertBooking(ctx context.Context, booking *model.Booking) error {
	return t.store.bookings.Insert(ctx, booking)
}

func (t *mongoCalendarTx) UpdateBooking(ctx context.Context, booking *model.Booking) error {
	return t.store.bookings.Update(ctx, booking)
}

func (t *mongoCalendarTx) FindVoucher(ctx context.Context, bookingID string) (*model.Voucher, error) {
	return t.store.vouchers.FindByBookingID(ctx, bookingID)
}

func (t *mongoCalendarTx) InsertVoucher(ctx context.Context, voucher *model.Voucher) error {
	return t.store.vouchers.Insert(ctx, voucher)
}
