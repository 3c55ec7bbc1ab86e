package service

import (
	"context"
	"errors"
	reserrors "staybook/internal/reservations/errors"
	"staybook/internal/reservations/lifecycle"
	"staybook/internal/reservations/payment"
	"staybook/internal/reservations/repository"
	"staybook/internal/reservations/repository/memory"
	"staybook/internal/reservations/validator"
	"staybook/pkg/config"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/logger"
	"staybook/pkg/model"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	accID   = "acc-1"
	hostID  = "host-1"
	guestID = "guest-1"
	adminID = "admin-1"
)

// Fixed clock: 2030-06-01 10:00 UTC.
var testNow = time.Date(2030, 6, 1, 10, 0, 0, 0, time.UTC)

func day(d int) time.Time {
	return time.Date(2030, 6, d, 0, 0, 0, 0, time.UTC)
}

func stay(in, out int) model.DateRange {
	return model.NewDateRange(day(in), day(out))
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.BookingEvent
}

func (n *recordingNotifier) OnBookingStateChanged(_ context.Context, e model.BookingEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []model.BookingEventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	types := make([]model.BookingEventType, 0, len(n.events))
	for _, e := range n.events {
		types = append(types, e.Type)
	}
	return types
}

// flakyStore loses the first failures calendar transactions to a
// simulated concurrent writer.
type flakyStore struct {
	*memory.Store
	failures atomic.Int32
	calls    atomic.Int32
}

func (s *flakyStore) ExecuteCalendarTransaction(ctx context.Context, accommodationID string, fn repository.CalendarTxFunc) error {
	s.calls.Add(1)
	if s.failures.Add(-1) >= 0 {
		return reserrors.ErrSerializationFailure
	}
	return s.Store.ExecuteCalendarTransaction(ctx, accommodationID, fn)
}

type fixture struct {
	svc      *reservationService
	store    *memory.Store
	notifier *recordingNotifier
	gateway  *payment.StaticGateway
}

func testConfig() *config.Config {
	return &config.Config{
		Log:                logger.Discard(),
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		CancellationCutoff: 48 * time.Hour,
		AdminIDs:           []string{adminID},
	}
}

func newFixture(t *testing.T, store repository.Store, mem *memory.Store) *fixture {
	t.Helper()
	cfg := testConfig()
	n := &recordingNotifier{}
	gw := payment.NewStaticGateway()

	svc := NewReservationService(store, validator.NewBookingValidator(cfg.Log), n, gw, cfg).(*reservationService)
	svc.now = func() time.Time { return testNow }

	ctx := context.Background()
	require.NoError(t, mem.Accommodations().Save(ctx, testAccommodation(accID, false)))
	require.NoError(t, mem.Services().Save(ctx, &model.AddOnService{
		ID:              "breakfast",
		AccommodationID: accID,
		Name:            "Breakfast",
		Price:           1500,
	}))

	return &fixture{svc: svc, store: mem, notifier: n, gateway: gw}
}

func setup(t *testing.T) *fixture {
	mem := memory.NewStore()
	return newFixture(t, mem, mem)
}

func testAccommodation(id string, instant bool) *model.Accommodation {
	return &model.Accommodation{
		ID:                id,
		HostID:            hostID,
		Name:              "Sea View Loft",
		NightlyRate:       10000,
		Currency:          "USD",
		MaxGuests:         4,
		ApprovalStatus:    model.ApprovalApproved,
		OperationalStatus: model.Operational,
		InstantBook:       instant,
	}
}

func (f *fixture) book(t *testing.T, rng model.DateRange, services ...string) *model.Booking {
	t.Helper()
	b, err := f.svc.CreateBooking(context.Background(), &model.CreateBookingRequest{
		GuestID:         guestID,
		AccommodationID: accID,
		Range:           rng,
		GuestCount:      2,
		ServiceIDs:      services,
	})
	require.NoError(t, err)
	return b
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func TestCreateBooking_Pending(t *testing.T) {
	f := setup(t)

	b := f.book(t, stay(10, 13), "breakfast")

	assert.Equal(t, model.StatePending, b.State)
	assert.Equal(t, int64(3*10000+1500), b.TotalPrice)
	assert.Equal(t, "USD", b.Currency)
	assert.Equal(t, 3, b.Detail.Nights)
	assert.Equal(t, 2, b.Detail.GuestCount)
	assert.Equal(t, int64(1500), b.Detail.ServiceFee)
	require.Len(t, b.Detail.AddOns, 1)
	assert.Equal(t, "Breakfast", b.Detail.AddOns[0].Name)
	assert.Equal(t, []model.BookingEventType{model.EventBookingCreated}, f.notifier.types())

	stored, err := f.svc.GetBooking(context.Background(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.TotalPrice, stored.TotalPrice)
	assert.Nil(t, stored.Voucher)
}

func TestCreateBooking_Overlap(t *testing.T) {
	f := setup(t)
	first := f.book(t, stay(10, 13))

	_, err := f.svc.CreateBooking(context.Background(), &model.CreateBookingRequest{
		GuestID:         "guest-2",
		AccommodationID: accID,
		Range:           stay(12, 15),
		GuestCount:      1,
	})
	requireCode(t, err, apperrors.CodeDateConflict)
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, []string{first.ID}, appErr.Details["conflicting_booking_ids"])

	// Checking in on the day the previous guest leaves is fine.
	f.book(t, stay(13, 15))
}

func TestCreateBooking_CancelledBookingFreesDates(t *testing.T) {
	f := setup(t)
	first := f.book(t, stay(10, 13))

	_, err := f.svc.CancelBooking(context.Background(), first.ID, guestID, "plans changed")
	require.NoError(t, err)

	f.book(t, stay(10, 13))
}

func TestCreateBooking_InstantBook(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.store.Accommodations().Save(context.Background(), testAccommodation("acc-instant", true)))

	b, err := f.svc.CreateBooking(context.Background(), &model.CreateBookingRequest{
		GuestID:         guestID,
		AccommodationID: "acc-instant",
		Range:           stay(10, 12),
		GuestCount:      1,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StateConfirmed, b.State)
	assert.Equal(t, []model.BookingEventType{model.EventBookingCreated, model.EventBookingConfirmed}, f.notifier.types())
}

func TestCreateBooking_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	suspended := testAccommodation("acc-suspended", false)
	suspended.OperationalStatus = model.Suspended
	require.NoError(t, f.store.Accommodations().Save(ctx, suspended))

	deleted := testAccommodation("acc-deleted", false)
	deleted.OperationalStatus = model.Deleted
	require.NoError(t, f.store.Accommodations().Save(ctx, deleted))

	unapproved := testAccommodation("acc-unapproved", false)
	unapproved.ApprovalStatus = model.ApprovalPending
	require.NoError(t, f.store.Accommodations().Save(ctx, unapproved))

	tests := []struct {
		name string
		req  *model.CreateBookingRequest
		code string
	}{
		{
			name: "zero nights",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: accID, Range: stay(10, 10), GuestCount: 1},
			code: apperrors.CodeInvalidRange,
		},
		{
			name: "check-in in the past",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: accID, Range: model.NewDateRange(day(1).AddDate(0, 0, -1), day(3)), GuestCount: 1},
			code: apperrors.CodeInvalidRange,
		},
		{
			name: "too many guests",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: accID, Range: stay(10, 12), GuestCount: 5},
			code: apperrors.CodeCapacityExceeded,
		},
		{
			name: "guest count far above capacity",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: accID, Range: stay(10, 12), GuestCount: 150},
			code: apperrors.CodeCapacityExceeded,
		},
		{
			name: "unknown accommodation",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: "acc-missing", Range: stay(10, 12), GuestCount: 1},
			code: apperrors.CodeAccommodationNotFound,
		},
		{
			name: "suspended accommodation",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: "acc-suspended", Range: stay(10, 12), GuestCount: 1},
			code: apperrors.CodeAccommodationUnavailable,
		},
		{
			name: "deleted accommodation",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: "acc-deleted", Range: stay(10, 12), GuestCount: 1},
			code: apperrors.CodeAccommodationUnavailable,
		},
		{
			name: "accommodation pending approval",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: "acc-unapproved", Range: stay(10, 12), GuestCount: 1},
			code: apperrors.CodeAccommodationUnavailable,
		},
		{
			name: "unknown add-on",
			req:  &model.CreateBookingRequest{GuestID: guestID, AccommodationID: accID, Range: stay(10, 12), GuestCount: 1, ServiceIDs: []string{"spa"}},
			code: apperrors.CodeValidation,
		},
		{
			name: "missing guest",
			req:  &model.CreateBookingRequest{AccommodationID: accID, Range: stay(10, 12), GuestCount: 1},
			code: apperrors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBooking(ctx, tt.req)
			requireCode(t, err, tt.code)
		})
	}

	active, err := f.svc.ListActiveBookings(ctx, accID, stay(1, 30))
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, f.notifier.types())
}

func TestCreateBooking_ConcurrentRequestsForSameDates(t *testing.T) {
	f := setup(t)
	const workers = 10

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateBooking(context.Background(), &model.CreateBookingRequest{
				GuestID:         guestID,
				AccommodationID: accID,
				Range:           stay(20, 23),
				GuestCount:      1,
			})
			switch {
			case err == nil:
				succeeded.Add(1)
			case apperrors.HasCode(err, apperrors.CodeDateConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(workers-1), conflicts.Load())

	active, err := f.svc.ListActiveBookings(context.Background(), accID, stay(20, 23))
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestCreateBooking_RetriesOnceAfterLosingToConcurrentWriter(t *testing.T) {
	mem := memory.NewStore()
	store := &flakyStore{Store: mem}
	f := newFixture(t, store, mem)
	store.failures.Store(1)

	b := f.book(t, stay(10, 12))

	assert.Equal(t, model.StatePending, b.State)
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestCreateBooking_SecondLossAgainstOverlapIsDateConflict(t *testing.T) {
	mem := memory.NewStore()
	store := &flakyStore{Store: mem}
	f := newFixture(t, store, mem)
	winner := f.book(t, stay(11, 13))
	store.calls.Store(0)
	store.failures.Store(2)

	_, err := f.svc.CreateBooking(context.Background(), &model.CreateBookingRequest{
		GuestID:         "guest-2",
		AccommodationID: accID,
		Range:           stay(10, 12),
		GuestCount:      1,
	})

	requireCode(t, err, apperrors.CodeDateConflict)
	details := apperrors.AsAppError(err).Details
	assert.Equal(t, "concurrent_modification", details["reason"])
	assert.Equal(t, []string{winner.ID}, details["conflicting_booking_ids"])
	assert.Equal(t, int32(2), store.calls.Load())
}

func TestCreateBooking_SecondLossWithoutOverlapIsUnavailable(t *testing.T) {
	mem := memory.NewStore()
	store := &flakyStore{Store: mem}
	f := newFixture(t, store, mem)
	f.book(t, stay(20, 22))
	store.calls.Store(0)
	store.failures.Store(2)

	_, err := f.svc.CreateBooking(context.Background(), &model.CreateBookingRequest{
		GuestID:         "guest-2",
		AccommodationID: accID,
		Range:           stay(10, 12),
		GuestCount:      1,
	})

	requireCode(t, err, apperrors.CodeUnavailable)
	appErr := apperrors.AsAppError(err)
	assert.True(t, appErr.Retryable())
	assert.Equal(t, "concurrent_modification", appErr.Details["reason"])
	assert.Equal(t, int32(2), store.calls.Load())
	assert.Equal(t, []model.BookingEventType{model.EventBookingCreated}, f.notifier.types())
}

func TestCancelBooking_RefundCutoff(t *testing.T) {
	tests := []struct {
		name       string
		rng        model.DateRange
		actor      string
		wantRefund bool
	}{
		{name: "guest well before check-in", rng: stay(4, 6), actor: guestID, wantRefund: true},
		{name: "guest inside cutoff", rng: stay(2, 4), actor: guestID, wantRefund: false},
		{name: "host inside cutoff", rng: stay(2, 4), actor: hostID, wantRefund: true},
		{name: "admin well before check-in", rng: stay(4, 6), actor: adminID, wantRefund: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			b := f.book(t, tt.rng)

			cancelled, err := f.svc.CancelBooking(context.Background(), b.ID, tt.actor, "")
			require.NoError(t, err)

			assert.Equal(t, model.StateCancelled, cancelled.State)
			require.NotNil(t, cancelled.RefundEligible)
			assert.Equal(t, tt.wantRefund, *cancelled.RefundEligible)
			assert.Equal(t, tt.actor, cancelled.CancelledBy)

			types := f.notifier.types()
			assert.Equal(t, model.EventBookingCancelled, types[len(types)-1])
		})
	}
}

func TestCancelBooking_Rejections(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))

	_, err := f.svc.CancelBooking(ctx, b.ID, "stranger", "")
	requireCode(t, err, apperrors.CodeNotOwner)

	_, err = f.svc.CancelBooking(ctx, "missing", guestID, "")
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.svc.CancelBooking(ctx, b.ID, guestID, "")
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, b.ID, guestID, "")
	requireCode(t, err, apperrors.CodeIllegalTransition)
}

func TestConfirmBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))

	_, err := f.svc.ConfirmBooking(ctx, b.ID, guestID)
	requireCode(t, err, apperrors.CodeNotOwner)

	confirmed, err := f.svc.ConfirmBooking(ctx, b.ID, hostID)
	require.NoError(t, err)
	assert.Equal(t, model.StateConfirmed, confirmed.State)
	assert.Equal(t, b.Version+1, confirmed.Version)

	_, err = f.svc.ConfirmBooking(ctx, b.ID, hostID)
	requireCode(t, err, apperrors.CodeIllegalTransition)

	assert.Equal(t, []model.BookingEventType{model.EventBookingCreated, model.EventBookingConfirmed}, f.notifier.types())
}

func TestRejectBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))

	_, err := f.svc.RejectBooking(ctx, b.ID, guestID, "")
	requireCode(t, err, apperrors.CodeNotOwner)

	rejected, err := f.svc.RejectBooking(ctx, b.ID, hostID, "maintenance")
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, rejected.State)
	assert.True(t, *rejected.RefundEligible)
	assert.Equal(t, "maintenance", rejected.CancellationReason)

	confirmedBooking := f.book(t, stay(20, 22))
	_, err = f.svc.ConfirmBooking(ctx, confirmedBooking.ID, hostID)
	require.NoError(t, err)
	_, err = f.svc.RejectBooking(ctx, confirmedBooking.ID, hostID, "")
	requireCode(t, err, apperrors.CodeIllegalTransition)
}

func TestUpdateBookingDates(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12), "breakfast")
	other := f.book(t, stay(20, 22))

	moved, err := f.svc.UpdateBookingDates(ctx, b.ID, guestID, stay(11, 15))
	require.NoError(t, err)
	assert.Equal(t, day(11), moved.CheckIn)
	assert.Equal(t, day(15), moved.CheckOut)
	assert.Equal(t, int64(4*10000+1500), moved.TotalPrice)
	assert.Equal(t, 4, moved.Detail.Nights)

	_, err = f.svc.UpdateBookingDates(ctx, b.ID, guestID, stay(19, 21))
	requireCode(t, err, apperrors.CodeDateConflict)

	_, err = f.svc.UpdateBookingDates(ctx, b.ID, hostID, stay(11, 13))
	requireCode(t, err, apperrors.CodeNotOwner)

	_, err = f.svc.UpdateBookingDates(ctx, other.ID, guestID, stay(21, 21))
	requireCode(t, err, apperrors.CodeInvalidRange)

	stored, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, day(11), stored.CheckIn)

	assert.Contains(t, f.notifier.types(), model.EventBookingModified)
}

func TestUpdateBookingDates_AfterCutoff(t *testing.T) {
	f := setup(t)
	b := f.book(t, stay(2, 4))

	_, err := f.svc.UpdateBookingDates(context.Background(), b.ID, guestID, stay(5, 7))
	requireCode(t, err, apperrors.CodeIllegalTransition)
}

func TestUpdateGuestCount(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))

	updated, err := f.svc.UpdateGuestCount(ctx, b.ID, guestID, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, updated.Detail.GuestCount)
	assert.Equal(t, b.TotalPrice, updated.TotalPrice)

	_, err = f.svc.UpdateGuestCount(ctx, b.ID, guestID, 5)
	requireCode(t, err, apperrors.CodeCapacityExceeded)

	_, err = f.svc.ConfirmBooking(ctx, b.ID, hostID)
	require.NoError(t, err)
	_, err = f.svc.UpdateGuestCount(ctx, b.ID, guestID, 3)
	requireCode(t, err, apperrors.CodeIllegalTransition)
}

func TestConfirmPayment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))

	_, err := f.svc.ConfirmPayment(ctx, b.ID, hostID)
	requireCode(t, err, apperrors.CodeNotOwner)

	paid, err := f.svc.ConfirmPayment(ctx, b.ID, guestID)
	require.NoError(t, err)
	assert.True(t, paid.PaymentConfirmed)
	require.NotNil(t, paid.Voucher)
	assert.Equal(t, b.TotalPrice, paid.Voucher.Total)
	assert.Equal(t, "static-"+b.ID+"-1", paid.Voucher.PaymentReference)

	again, err := f.svc.ConfirmPayment(ctx, b.ID, guestID)
	require.NoError(t, err)
	assert.Equal(t, paid.Voucher.ID, again.Voucher.ID)
	assert.Equal(t, 1, f.gateway.Charges())

	view, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Voucher)
	assert.Equal(t, paid.Voucher.ID, view.Voucher.ID)

	_, err = f.svc.UpdateBookingDates(ctx, b.ID, guestID, stay(14, 16))
	requireCode(t, err, apperrors.CodeIllegalTransition)

	paidEvents := 0
	for _, typ := range f.notifier.types() {
		if typ == model.EventBookingPaid {
			paidEvents++
		}
	}
	assert.Equal(t, 1, paidEvents)
}

func TestConfirmPayment_Declined(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))
	f.gateway.Decline(b.ID)

	_, err := f.svc.ConfirmPayment(ctx, b.ID, guestID)
	requireCode(t, err, apperrors.CodePaymentDeclined)

	view, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.False(t, view.PaymentConfirmed)
	assert.Nil(t, view.Voucher)
}

// racingGateway runs during after a successful charge, before the payment is
// recorded.
type racingGateway struct {
	*payment.StaticGateway
	during func()
}

func (g *racingGateway) Charge(ctx context.Context, req payment.ChargeRequest) (*payment.Receipt, error) {
	receipt, err := g.StaticGateway.Charge(ctx, req)
	if err == nil && g.during != nil {
		g.during()
		g.during = nil
	}
	return receipt, err
}

func TestConfirmPayment_RefundsWhenBookingRejectedDuringCharge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))
	f.svc.payments = &racingGateway{StaticGateway: f.gateway, during: func() {
		_, err := f.svc.RejectBooking(ctx, b.ID, hostID, "dates blocked")
		require.NoError(t, err)
	}}

	_, err := f.svc.ConfirmPayment(ctx, b.ID, guestID)

	requireCode(t, err, apperrors.CodeConflict)
	appErr := apperrors.AsAppError(err)
	assert.Contains(t, appErr.Message, string(model.StateCancelled))
	assert.Equal(t, true, appErr.Details["refunded"])
	assert.Equal(t, 1, f.gateway.Charges())
	assert.Equal(t, 1, f.gateway.Refunds())

	view, err := f.svc.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCancelled, view.State)
	assert.False(t, view.PaymentConfirmed)
	assert.Nil(t, view.Voucher)
	assert.NotContains(t, f.notifier.types(), model.EventBookingPaid)
}

func TestConfirmPayment_RefundsWhenTotalChangesDuringCharge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))
	f.svc.payments = &racingGateway{StaticGateway: f.gateway, during: func() {
		_, err := f.svc.UpdateBookingDates(ctx, b.ID, guestID, stay(10, 13))
		require.NoError(t, err)
	}}

	_, err := f.svc.ConfirmPayment(ctx, b.ID, guestID)
	requireCode(t, err, apperrors.CodeConflict)
	assert.Equal(t, true, apperrors.AsAppError(err).Details["refunded"])
	assert.Equal(t, 1, f.gateway.Refunds())

	paid, err := f.svc.ConfirmPayment(ctx, b.ID, guestID)
	require.NoError(t, err)
	require.NotNil(t, paid.Voucher)
	assert.Equal(t, paid.TotalPrice, paid.Voucher.Total)
	assert.Equal(t, 2, f.gateway.Charges())
}

func TestConfirmPayment_CancelledBooking(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	b := f.book(t, stay(10, 12))
	_, err := f.svc.CancelBooking(ctx, b.ID, guestID, "")
	require.NoError(t, err)

	_, err = f.svc.ConfirmPayment(ctx, b.ID, guestID)
	requireCode(t, err, apperrors.CodeIllegalTransition)
	assert.Equal(t, 0, f.gateway.Charges())
}

func TestAdvanceStays(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	confirmed := f.book(t, stay(10, 12))
	_, err := f.svc.ConfirmBooking(ctx, confirmed.ID, hostID)
	require.NoError(t, err)
	pending := f.book(t, stay(12, 14))

	result, err := f.svc.AdvanceStays(ctx, day(9))
	require.NoError(t, err)
	assert.Equal(t, AdvanceResult{}, result)

	result, err = f.svc.AdvanceStays(ctx, day(10).Add(8*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, AdvanceResult{CheckedIn: 1}, result)

	view, err := f.svc.GetBooking(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCheckIn, view.State)

	_, err = f.svc.CancelBooking(ctx, confirmed.ID, guestID, "")
	requireCode(t, err, apperrors.CodeIllegalTransition)

	result, err = f.svc.AdvanceStays(ctx, day(12))
	require.NoError(t, err)
	assert.Equal(t, AdvanceResult{CheckedOut: 1}, result)

	view, err = f.svc.GetBooking(ctx, confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StateCheckOut, view.State)

	view, err = f.svc.GetBooking(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatePending, view.State)

	types := f.notifier.types()
	assert.Contains(t, types, model.EventBookingCheckedIn)
	assert.Contains(t, types, model.EventBookingCheckedOut)
}

func TestQuote_HasNoSideEffects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	quote, err := f.svc.Quote(ctx, &model.QuoteRequest{
		AccommodationID: accID,
		Range:           stay(10, 13),
		GuestCount:      2,
		ServiceIDs:      []string{"breakfast"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(31500), quote.Total)
	assert.Equal(t, 3, quote.Nights)

	active, err := f.svc.ListActiveBookings(ctx, accID, stay(10, 13))
	require.NoError(t, err)
	assert.Empty(t, active)
	assert.Empty(t, f.notifier.types())
}

func TestGetBooking_NotFound(t *testing.T) {
	f := setup(t)

	_, err := f.svc.GetBooking(context.Background(), "missing")
	requireCode(t, err, apperrors.CodeNotFound)
}

func TestRoleOf(t *testing.T) {
	f := setup(t)
	b := &model.Booking{GuestID: guestID}
	acc := testAccommodation(accID, false)

	assert.Equal(t, lifecycle.RoleGuest, f.svc.roleOf(guestID, b, acc))
	assert.Equal(t, lifecycle.RoleHost, f.svc.roleOf(hostID, b, acc))
	assert.Equal(t, lifecycle.RoleAdmin, f.svc.roleOf(adminID, b, acc))
	assert.Equal(t, lifecycle.RoleNone, f.svc.roleOf("stranger", b, acc))
	assert.Equal(t, lifecycle.RoleNone, f.svc.roleOf("", b, acc))
}

func TestUnitError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{name: "overlap constraint", err: reserrors.ErrOverlap, code: apperrors.CodeDateConflict},
		{name: "stale booking", err: reserrors.ErrStaleBooking, code: apperrors.CodeDateConflict},
		{name: "commit unknown", err: reserrors.ErrCommitUnknown, code: apperrors.CodeUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, code: apperrors.CodeUnavailable},
		{name: "unexpected", err: errors.New("boom"), code: apperrors.CodeInternal},
		{name: "app error passes through", err: apperrors.NotOwner("x", "cancel"), code: apperrors.CodeNotOwner},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requireCode(t, unitError("test", tt.err), tt.code)
		})
	}
}
