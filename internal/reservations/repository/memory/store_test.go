package memory

import (
	"context"
	"errors"
	reserrors "staybook/internal/reservations/errors"
	"staybook/internal/reservations/repository"
	"staybook/pkg/model"
	"sync"
	"testing"
	"time"
)

func day(d int) time.Time {
	return time.Date(2025, 10, d, 0, 0, 0, 0, time.UTC)
}

func newBooking(id string, in, out int) *model.Booking {
	return &model.Booking{
		ID:              id,
		AccommodationID: "acc-1",
		GuestID:         "guest-1",
		DateRange:       model.DateRange{CheckIn: day(in), CheckOut: day(out)},
		State:           model.StatePending,
	}
}

func TestExecuteCalendarTransaction_CommitsOnSuccess(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	err := store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		if err := tx.InsertBooking(ctx, newBooking("b-1", 1, 5)); err != nil {
			return err
		}
		active, err := tx.FindActiveBookings(ctx, "acc-1", model.DateRange{CheckIn: day(1), CheckOut: day(2)})
		if err != nil {
			return err
		}
		if len(active) != 1 {
			t.Errorf("transaction must see its own insert, got %d bookings", len(active))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := store.Bookings().FindByID(ctx, "b-1"); err != nil {
		t.Errorf("expected committed booking, got %v", err)
	}
}

func TestExecuteCalendarTransaction_DiscardsOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	fail := errors.New("conflict detected")

	err := store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		if err := tx.InsertBooking(ctx, newBooking("b-1", 1, 5)); err != nil {
			return err
		}
		return fail
	})
	if !errors.Is(err, fail) {
		t.Fatalf("expected transaction error, got %v", err)
	}

	if _, err := store.Bookings().FindByID(ctx, "b-1"); !errors.Is(err, reserrors.ErrNotFound) {
		t.Errorf("staged booking leaked after failed transaction: %v", err)
	}
}

func TestUpdateBooking_OptimisticVersion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		return tx.InsertBooking(ctx, newBooking("b-1", 1, 5))
	})

	stale, _ := store.Bookings().FindByID(ctx, "b-1")

	err := store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		b, err := tx.FindBooking(ctx, "b-1")
		if err != nil {
			return err
		}
		b.State = model.StateConfirmed
		return tx.UpdateBooking(ctx, b)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		stale.State = model.StateCancelled
		return tx.UpdateBooking(ctx, stale)
	})
	if !errors.Is(err, reserrors.ErrStaleBooking) {
		t.Fatalf("expected ErrStaleBooking, got %v", err)
	}

	current, _ := store.Bookings().FindByID(ctx, "b-1")
	if current.State != model.StateConfirmed || current.Version != 1 {
		t.Errorf("unexpected stored booking %+v", current)
	}
}

func TestInsertBooking_RejectsOtherAccommodation(t *testing.T) {
	store := NewStore()

	err := store.ExecuteCalendarTransaction(context.Background(), "acc-2", func(ctx context.Context, tx repository.CalendarTx) error {
		return tx.InsertBooking(ctx, newBooking("b-1", 1, 5))
	})
	if err == nil {
		t.Fatal("expected error writing a booking outside the locked accommodation")
	}
}

func TestInsertVoucher_Unique(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	voucher := &model.Voucher{ID: "v-1", BookingID: "b-1", Total: 100}

	err := store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		return tx.InsertVoucher(ctx, voucher)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		return tx.InsertVoucher(ctx, &model.Voucher{ID: "v-2", BookingID: "b-1"})
	})
	if !errors.Is(err, reserrors.ErrVoucherExists) {
		t.Errorf("expected ErrVoucherExists, got %v", err)
	}
}

func TestExecuteCalendarTransaction_SerializesPerAccommodation(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("expected at most one transaction at a time, saw %d", maxSeen)
	}
}

func TestExecuteCalendarTransaction_LockRespectsContext(t *testing.T) {
	store := NewStore()
	hold := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_ = store.ExecuteCalendarTransaction(context.Background(), "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
			close(started)
			<-hold
			return nil
		})
	}()
	<-started
	defer close(hold)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		t.Error("transaction must not run without the lock")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDueQueries(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	confirmed := newBooking("b-1", 1, 5)
	confirmed.State = model.StateConfirmed
	future := newBooking("b-2", 20, 25)
	future.State = model.StateConfirmed
	staying := newBooking("b-3", 6, 8)
	staying.State = model.StateCheckIn

	_ = store.ExecuteCalendarTransaction(ctx, "acc-1", func(ctx context.Context, tx repository.CalendarTx) error {
		for _, b := range []*model.Booking{confirmed, future, staying} {
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
		}
		return nil
	})

	dueIn, _ := store.Bookings().FindDueForCheckIn(ctx, day(10), 0)
	if len(dueIn) != 1 || dueIn[0].ID != "b-1" {
		t.Errorf("unexpected check-in due list %v", dueIn)
	}

	dueOut, _ := store.Bookings().FindDueForCheckOut(ctx, day(10), 0)
	if len(dueOut) != 1 || dueOut[0].ID != "b-3" {
		t.Errorf("unexpected check-out due list %v", dueOut)
	}
}

func TestServiceCatalog_PriceOf(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_ = repository.Seed(ctx, store, repository.SeedData{
		Services: []*model.AddOnService{
			{ID: "breakfast", AccommodationID: "acc-1", Price: 1500},
			{ID: "sauna", AccommodationID: "acc-2", Price: 3000},
		},
	})

	services, err := store.Services().PriceOf(ctx, "acc-1", []string{"breakfast"})
	if err != nil || len(services) != 1 || services[0].Price != 1500 {
		t.Fatalf("unexpected result %v, %v", services, err)
	}

	if _, err := store.Services().PriceOf(ctx, "acc-1", []string{"sauna"}); !errors.Is(err, reserrors.ErrServiceNotFound) {
		t.Errorf("expected ErrServiceNotFound for another accommodation's service, got %v", err)
	}
}
