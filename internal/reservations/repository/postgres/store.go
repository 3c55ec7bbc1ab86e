// Package postgres is the PostgreSQL Store. Calendar transactions run at
// SERIALIZABLE isolation behind a row lock on the accommodation, and the
// bookings table carries an exclusion constraint on active date ranges.
package postgres

import (
	"context"
	"errors"
	"fmt"
	reserrors "staybook/internal/reservations/errors"
	"staybook/internal/reservations/repository"
	"staybook/pkg/config"
	pgdb "staybook/pkg/db/postgres"
	"staybook/pkg/logger"
	"staybook/pkg/model"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dueColumnCheckIn, dueColumnCheckOut = "check_in", "check_out"

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool         *pgxpool.Pool
	txManager    pgdb.TransactionManager
	log          *logger.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
}

var _ repository.Store = (*Store)(nil)

func NewStore(cfg *config.Config) *Store {
	pool := cfg.Client.Postgres
	return &Store{
		pool:         pool,
		txManager:    pgdb.NewTransactionManager(pool),
		log:          cfg.Log.Component("postgres_store"),
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (s *Store) Accommodations() repository.AccommodationRepository { return accommodationRepo{s} }
func (s *Store) Services() repository.ServiceCatalog                { return serviceCatalog{s} }
func (s *Store) Bookings() repository.BookingReader                 { return bookingReader{s} }
func (s *Store) Vouchers() repository.VoucherReader                 { return voucherReader{s} }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.readTimeout)
	defer cancel()
	return s.pool.Ping(ctx)
}

func (s *Store) ExecuteCalendarTransaction(ctx context.Context, accommodationID string, fn repository.CalendarTxFunc) error {
	ctx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	defer cancel()

	err := s.txManager.ExecuteSerializable(ctx, func(ctx context.Context, tx pgx.Tx) error {
		q, err := buildLockAccommodationQuery(accommodationID)
		if err != nil {
			return err
		}
		var id string
		if err := tx.QueryRow(ctx, q.sql, q.args...).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return reserrors.ErrAccommodationNotFound
			}
			return fmt.Errorf("failed to lock accommodation %s: %w", accommodationID, err)
		}
		s.log.Debug("Accommodation row locked", "accommodation_id", accommodationID)
		return fn(ctx, &calendarTx{db: tx})
	})
	return mapTransactionError(err)
}

func mapTransactionError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgdb.ErrSerializationFailure):
		return fmt.Errorf("%w: %v", reserrors.ErrSerializationFailure, err)
	case errors.Is(err, pgdb.ErrExclusionViolation):
		return fmt.Errorf("%w: %v", reserrors.ErrOverlap, err)
	case errors.Is(err, pgdb.ErrCommitUnknown):
		return fmt.Errorf("%w: %v", reserrors.ErrCommitUnknown, err)
	default:
		return err
	}
}

type calendarTx struct {
	db querier
}

func (t *calendarTx) FindActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	return findActiveBookings(ctx, t.db, accommodationID, rng)
}

func (t *calendarTx) FindBooking(ctx context.Context, id string) (*model.Booking, error) {
	return findBooking(ctx, t.db, id)
}

func (t *calendarTx) InsertBooking(ctx context.Context, booking *model.Booking) error {
	queries, err := buildInsertBookingQueries(booking)
	if err != nil {
		return err
	}
	for _, q := range queries {
		if _, err := t.db.Exec(ctx, q.sql, q.args...); err != nil {
			err = pgdb.Classify(err)
			switch {
			case errors.Is(err, pgdb.ErrExclusionViolation):
				return fmt.Errorf("%w: %v", reserrors.ErrOverlap, err)
			case errors.Is(err, pgdb.ErrUniqueViolation):
				return fmt.Errorf("%w: booking %s already exists", reserrors.ErrStaleBooking, booking.ID)
			}
			return fmt.Errorf("failed to create booking: %w", err)
		}
	}
	return nil
}

func (t *calendarTx) UpdateBooking(ctx context.Context, booking *model.Booking) error {
	expected := booking.Version
	queries, err := buildUpdateBookingQueries(booking, expected)
	if err != nil {
		return err
	}
	for i, q := range queries {
		tag, err := t.db.Exec(ctx, q.sql, q.args...)
		if err != nil {
			err = pgdb.Classify(err)
			if errors.Is(err, pgdb.ErrExclusionViolation) {
				return fmt.Errorf("%w: %v", reserrors.ErrOverlap, err)
			}
			return fmt.Errorf("failed to update booking: %w", err)
		}
		if i == 0 && tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: booking %s version %d", reserrors.ErrStaleBooking, booking.ID, expected)
		}
	}
	booking.Version = expected + 1
	return nil
}

func (t *calendarTx) FindVoucher(ctx context.Context, bookingID string) (*model.Voucher, error) {
	return findVoucher(ctx, t.db, bookingID)
}

func (t *calendarTx) InsertVoucher(ctx context.Context, voucher *model.Voucher) error {
	q, err := buildInsertVoucherQuery(voucher)
	if err != nil {
		return err
	}
	if _, err := t.db.Exec(ctx, q.sql, q.args...); err != nil {
		if errors.Is(pgdb.Classify(err), pgdb.ErrUniqueViolation) {
			return fmt.Errorf("%w: %s", reserrors.ErrVoucherExists, voucher.BookingID)
		}
		return fmt.Errorf("failed to issue voucher: %w", err)
	}
	return nil
}

type bookingReader struct{ s *Store }

func (r bookingReader) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.readTimeout)
	defer cancel()
	return findBooking(ctx, r.s.pool, id)
}

func (r bookingReader) FindActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.readTimeout)
	defer cancel()
	return findActiveBookings(ctx, r.s.pool, accommodationID, rng)
}

func (r bookingReader) FindDueForCheckIn(ctx context.Context, asOf time.Time, limit int) ([]*model.Booking, error) {
	return r.due(ctx, model.StateConfirmed, dueColumnCheckIn, asOf, limit)
}

func (r bookingReader) FindDueForCheckOut(ctx context.Context, asOf time.Time, limit int) ([]*model.Booking, error) {
	return r.due(ctx, model.StateCheckIn, dueColumnCheckOut, asOf, limit)
}

func (r bookingReader) due(ctx context.Context, state model.BookingState, column string, asOf time.Time, limit int) ([]*model.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.readTimeout)
	defer cancel()

	q, err := buildDueQuery(state, column, asOf, limit)
	if err != nil {
		return nil, err
	}
	return queryBookings(ctx, r.s.pool, q)
}

func findBooking(ctx context.Context, db querier, id string) (*model.Booking, error) {
	q, err := buildFindBookingQuery(id)
	if err != nil {
		return nil, err
	}
	booking, err := scanBooking(db.QueryRow(ctx, q.sql, q.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reserrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find booking: %w", err)
	}
	return booking, nil
}

func findActiveBookings(ctx context.Context, db querier, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	q, err := buildActiveBookingsQuery(accommodationID, rng)
	if err != nil {
		return nil, err
	}
	return queryBookings(ctx, db, q)
}

func queryBookings(ctx context.Context, db querier, q sqlQuery) ([]*model.Booking, error) {
	rows, err := db.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to decode booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find bookings: %w", err)
	}
	return bookings, nil
}

func findVoucher(ctx context.Context, db querier, bookingID string) (*model.Voucher, error) {
	q, err := buildFindVoucherQuery(bookingID)
	if err != nil {
		return nil, err
	}
	var v model.Voucher
	err = db.QueryRow(ctx, q.sql, q.args...).Scan(&v.ID, &v.BookingID, &v.Total, &v.Currency, &v.PaymentReference, &v.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reserrors.ErrVoucherNotFound
		}
		return nil, fmt.Errorf("failed to find voucher: %w", err)
	}
	return &v, nil
}

type voucherReader struct{ s *Store }

func (r voucherReader) FindByBookingID(ctx context.Context, bookingID string) (*model.Voucher, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.readTimeout)
	defer cancel()
	return findVoucher(ctx, r.s.pool, bookingID)
}

type accommodationRepo struct{ s *Store }

func (r accommodationRepo) FindByID(ctx context.Context, id string) (*model.Accommodation, error) {
	ctx, cancel := context.WithTimeout(ctx, r.s.readTimeout)
	defer cancel()

	q, err := buildFindAccommodationQuery(id)
	if err != nil {
		return nil, err
	}
	a, err := scanAccommodation(r.s.pool.QueryRow(ctx, q.sql, q.args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reserrors.ErrAccommodationNotFound
		}
		return nil, fmt.Errorf("failed to find accommodation: %w", err)
	}
	return a, nil
}

func (r accommodationRepo) Save(ctx context.Context, accommodation *model.Accommodation) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.writeTimeout)
	defer cancel()

	now := time.Now().UTC()
	if accommodation.CreatedAt.IsZero() {
		accommodation.CreatedAt = now
	}
	accommodation.UpdatedAt = now

	q, err := buildUpsertAccommodationQuery(accommodation)
	if err != nil {
		return err
	}
	if _, err := r.s.pool.Exec(ctx, q.sql, q.args...); err != nil {
		return fmt.Errorf("failed to save accommodation: %w", err)
	}
	return nil
}

type serviceCatalog struct{ s *Store }

func (r serviceCatalog) PriceOf(ctx context.Context, accommodationID string, serviceIDs []string) ([]model.AddOnService, error) {
	if len(serviceIDs) == 0 {
		return []model.AddOnService{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.s.readTimeout)
	defer cancel()

	q, err := buildPriceOfQuery(accommodationID, serviceIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.s.pool.Query(ctx, q.sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find services: %w", err)
	}
	defer rows.Close()

	found := make(map[string]model.AddOnService, len(serviceIDs))
	for rows.Next() {
		var svc model.AddOnService
		if err := rows.Scan(&svc.ID, &svc.AccommodationID, &svc.Name, &svc.Price); err != nil {
			return nil, fmt.Errorf("failed to decode service: %w", err)
		}
		found[svc.ID] = svc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to find services: %w", err)
	}

	result := make([]model.AddOnService, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		svc, ok := found[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", reserrors.ErrServiceNotFound, id)
		}
		result = append(result, svc)
	}
	return result, nil
}

func (r serviceCatalog) Save(ctx context.Context, service *model.AddOnService) error {
	ctx, cancel := context.WithTimeout(ctx, r.s.writeTimeout)
	defer cancel()

	q, err := buildUpsertServiceQuery(service)
	if err != nil {
		return err
	}
	if _, err := r.s.pool.Exec(ctx, q.sql, q.args...); err != nil {
		return fmt.Errorf("failed to save service: %w", err)
	}
	return nil
}
