// Package memory is an in-process Store for development and tests.
//
// Calendar transactions on one accommodation are serialized by a per
// accommodation lock. Writes are staged and applied only when the
// transaction function returns nil.
package memory

import (
	"context"
	"fmt"
	"sort"
	"staybook/internal/reservations/calendar"
	reserrors "staybook/internal/reservations/errors"
	"staybook/internal/reservations/repository"
	"staybook/pkg/model"
	"sync"
	"time"
)

type Store struct {
	mu             sync.RWMutex
	accommodations map[string]*model.Accommodation
	services       map[string]*model.AddOnService
	bookings       map[string]*model.Booking
	vouchers       map[string]*model.Voucher

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

func NewStore() *Store {
	return &Store{
		accommodations: make(map[string]*model.Accommodation),
		services:       make(map[string]*model.AddOnService),
		bookings:       make(map[string]*model.Booking),
		vouchers:       make(map[string]*model.Voucher),
		locks:          make(map[string]chan struct{}),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Accommodations() repository.AccommodationRepository { return accommodationRepo{s} }
func (s *Store) Services() repository.ServiceCatalog                { return serviceCatalog{s} }
func (s *Store) Bookings() repository.BookingReader                 { return bookingReader{s} }
func (s *Store) Vouchers() repository.VoucherReader                 { return voucherReader{s} }

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) ExecuteCalendarTransaction(ctx context.Context, accommodationID string, fn repository.CalendarTxFunc) error {
	unlock, err := s.lock(ctx, accommodationID)
	if err != nil {
		return fmt.Errorf("failed to acquire calendar lock for %s: %w", accommodationID, err)
	}
	defer unlock()

	tx := &calendarTx{
		store:           s,
		accommodationID: accommodationID,
		bookings:        make(map[string]*model.Booking),
		vouchers:        make(map[string]*model.Voucher),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.apply(tx)
	return nil
}

// lock acquires the accommodation's lock, giving up when ctx is done.
func (s *Store) lock(ctx context.Context, accommodationID string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.locks[accommodationID]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[accommodationID] = ch
	}
	s.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) apply(tx *calendarTx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, b := range tx.bookings {
		s.bookings[id] = b
	}
	for bookingID, v := range tx.vouchers {
		s.vouchers[bookingID] = v
	}
}

func (s *Store) activeBookings(accommodationID string, rng model.DateRange, overlay map[string]*model.Booking) []*model.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Booking
	consider := func(b *model.Booking) {
		if b.AccommodationID == accommodationID && calendar.IsActive(b.State) && b.Overlaps(rng) {
			result = append(result, b.Clone())
		}
	}
	for id, b := range s.bookings {
		if _, staged := overlay[id]; staged {
			continue
		}
		consider(b)
	}
	for _, b := range overlay {
		consider(b)
	}
	sortBookings(result)
	return result
}

func (s *Store) due(state model.BookingState, asOf time.Time, limit int, dueDate func(*model.Booking) time.Time) []*model.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.Booking
	for _, b := range s.bookings {
		if b.State == state && !dueDate(b).After(asOf) {
			result = append(result, b.Clone())
		}
	}
	sortBookings(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func sortBookings(bookings []*model.Booking) {
	sort.Slice(bookings, func(i, j int) bool {
		if bookings[i].CheckIn.Equal(bookings[j].CheckIn) {
			return bookings[i].ID < bookings[j].ID
		}
		return bookings[i].CheckIn.Before(bookings[j].CheckIn)
	})
}

type calendarTx struct {
	store           *Store
	accommodationID string
	bookings        map[string]*model.Booking
	vouchers        map[string]*model.Voucher
}

func (t *calendarTx) FindActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	return t.store.activeBookings(accommodationID, rng, t.bookings), nil
}

func (t *calendarTx) FindBooking(ctx context.Context, id string) (*model.Booking, error) {
	if b, ok := t.bookings[id]; ok {
		return b.Clone(), nil
	}
	return bookingReader{t.store}.FindByID(ctx, id)
}

func (t *calendarTx) InsertBooking(ctx context.Context, booking *model.Booking) error {
	if err := t.checkScope(booking); err != nil {
		return err
	}
	if _, err := t.FindBooking(ctx, booking.ID); err == nil {
		return fmt.Errorf("%w: booking %s already exists", reserrors.ErrStaleBooking, booking.ID)
	}
	t.bookings[booking.ID] = booking.Clone()
	return nil
}

func (t *calendarTx) UpdateBooking(ctx context.Context, booking *model.Booking) error {
	if err := t.checkScope(booking); err != nil {
		return err
	}
	current, err := t.FindBooking(ctx, booking.ID)
	if err != nil {
		return err
	}
	if current.Version != booking.Version {
		return fmt.Errorf("%w: booking %s version %d, stored %d", reserrors.ErrStaleBooking, booking.ID, booking.Version, current.Version)
	}

	booking.Version++
	t.bookings[booking.ID] = booking.Clone()
	return nil
}

func (t *calendarTx) FindVoucher(ctx context.Context, bookingID string) (*model.Voucher, error) {
	if v, ok := t.vouchers[bookingID]; ok {
		c := *v
		return &c, nil
	}
	return voucherReader{t.store}.FindByBookingID(ctx, bookingID)
}

func (t *calendarTx) InsertVoucher(ctx context.Context, voucher *model.Voucher) error {
	if _, err := t.FindVoucher(ctx, voucher.BookingID); err == nil {
		return fmt.Errorf("%w: %s", reserrors.ErrVoucherExists, voucher.BookingID)
	}
	c := *voucher
	t.vouchers[voucher.BookingID] = &c
	return nil
}

func (t *calendarTx) checkScope(booking *model.Booking) error {
	if booking.AccommodationID != t.accommodationID {
		return fmt.Errorf("booking %s belongs to accommodation %s, transaction holds %s",
			booking.ID, booking.AccommodationID, t.accommodationID)
	}
	return nil
}

type bookingReader struct{ s *Store }

func (r bookingReader) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, reserrors.ErrNotFound
	}
	return b.Clone(), nil
}

func (r bookingReader) FindActiveBookings(ctx context.Context, accommodationID string, rng model.DateRange) ([]*model.Booking, error) {
	return r.s.activeBookings(accommodationID, rng, nil), nil
}

func (r bookingReader) FindDueForCheckIn(ctx context.Context, asOf time.Time, limit int) ([]*model.Booking, error) {
	return r.s.due(model.StateConfirmed, asOf, limit, func(b *model.Booking) time.Time { return b.CheckIn }), nil
}

func (r bookingReader) FindDueForCheckOut(ctx context.Context, asOf time.Time, limit int) ([]*model.Booking, error) {
	return r.s.due(model.StateCheckIn, asOf, limit, func(b *model.Booking) time.Time { return b.CheckOut }), nil
}

type accommodationRepo struct{ s *Store }

func (r accommodationRepo) FindByID(ctx context.Context, id string) (*model.Accommodation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	a, ok := r.s.accommodations[id]
	if !ok {
		return nil, reserrors.ErrAccommodationNotFound
	}
	c := *a
	c.DiscountPolicy.LongStay = append([]model.LongStayTier(nil), a.DiscountPolicy.LongStay...)
	return &c, nil
}

func (r accommodationRepo) Save(ctx context.Context, accommodation *model.Accommodation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	now := time.Now().UTC()
	if accommodation.CreatedAt.IsZero() {
		accommodation.CreatedAt = now
	}
	accommodation.UpdatedAt = now

	c := *accommodation
	c.DiscountPolicy.LongStay = append([]model.LongStayTier(nil), accommodation.DiscountPolicy.LongStay...)
	r.s.accommodations[accommodation.ID] = &c
	return nil
}

type serviceCatalog struct{ s *Store }

func (r serviceCatalog) PriceOf(ctx context.Context, accommodationID string, serviceIDs []string) ([]model.AddOnService, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]model.AddOnService, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		svc, ok := r.s.services[id]
		if !ok || svc.AccommodationID != accommodationID {
			return nil, fmt.Errorf("%w: %s", reserrors.ErrServiceNotFound, id)
		}
		result = append(result, *svc)
	}
	return result, nil
}

func (r serviceCatalog) Save(ctx context.Context, service *model.AddOnService) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c := *service
	r.s.services[service.ID] = &c
	return nil
}

type voucherReader struct{ s *Store }

func (r voucherReader) FindByBookingID(ctx context.Context, bookingID string) (*model.Voucher, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.vouchers[bookingID]
	if !ok {
		return nil, reserrors.ErrVoucherNotFound
	}
	c := *v
	return &c, nil
}
