package postgres

import (
	"staybook/pkg/model"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse(model.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildActiveBookingsQuery(t *testing.T) {
	rng := model.DateRange{CheckIn: day("2025-03-10"), CheckOut: day("2025-03-13")}

	q, err := buildActiveBookingsQuery("acc-1", rng)
	require.NoError(t, err)

	assert.Contains(t, q.sql, `FROM "bookings" AS "b"`)
	assert.Contains(t, q.sql, `INNER JOIN "booking_details" AS "d"`)
	assert.Contains(t, q.sql, `"b"."state" IN (`)
	assert.Contains(t, q.sql, `"b"."check_in" < $`)
	assert.Contains(t, q.sql, `"b"."check_out" > $`)
	assert.Contains(t, q.sql, `ORDER BY "b"."check_in" ASC, "b"."id" ASC`)

	require.NotEmpty(t, q.args)
	assert.Equal(t, "acc-1", q.args[0])
	assert.Contains(t, q.args, string(model.StatePending))
	assert.Contains(t, q.args, string(model.StateConfirmed))
	assert.Contains(t, q.args, string(model.StateCheckIn))
	assert.NotContains(t, q.args, string(model.StateCancelled))
	assert.Equal(t, rng.CheckOut, q.args[len(q.args)-2])
	assert.Equal(t, rng.CheckIn, q.args[len(q.args)-1])
}

func TestBuildDueQuery(t *testing.T) {
	asOf := day("2025-03-10")

	t.Run("with limit", func(t *testing.T) {
		q, err := buildDueQuery(model.StateConfirmed, dueColumnCheckIn, asOf, 50)
		require.NoError(t, err)

		assert.Contains(t, q.sql, `"b"."state" = $1`)
		assert.Contains(t, q.sql, `"b"."check_in" <= $2`)
		assert.Contains(t, q.sql, "LIMIT $3")
		require.Len(t, q.args, 3)
		assert.Equal(t, "CONFIRMED", q.args[0])
		assert.Equal(t, asOf, q.args[1])
	})

	t.Run("without limit", func(t *testing.T) {
		q, err := buildDueQuery(model.StateCheckIn, dueColumnCheckOut, asOf, 0)
		require.NoError(t, err)

		assert.Contains(t, q.sql, `"b"."check_out" <= $2`)
		assert.NotContains(t, q.sql, "LIMIT")
	})
}

func TestBuildInsertBookingQueries(t *testing.T) {
	b := &model.Booking{
		ID:              "bk-1",
		AccommodationID: "acc-1",
		GuestID:         "guest-1",
		DateRange:       model.DateRange{CheckIn: day("2025-03-10"), CheckOut: day("2025-03-13")},
		State:           model.StatePending,
		TotalPrice:      30000,
		Currency:        "EUR",
		Detail: model.DetailBooking{
			BookingID: "bk-1",
			Nights:    3,
			AddOns:    []model.AddOnLine{{ServiceID: "svc-1", Name: "Breakfast", Price: 1500}},
		},
	}

	queries, err := buildInsertBookingQueries(b)
	require.NoError(t, err)
	require.Len(t, queries, 2)

	assert.Contains(t, queries[0].sql, `INSERT INTO "bookings"`)
	assert.Contains(t, queries[0].args, "bk-1")
	assert.Contains(t, queries[0].args, "PENDING")

	assert.Contains(t, queries[1].sql, `INSERT INTO "booking_details"`)
	assert.Contains(t, queries[1].args, []byte(`[{"service_id":"svc-1","name":"Breakfast","price":1500}]`))
	assert.Contains(t, queries[1].args, []byte(`[]`))
}

func TestBuildUpdateBookingQueries(t *testing.T) {
	b := &model.Booking{
		ID:              "bk-1",
		AccommodationID: "acc-1",
		State:           model.StateConfirmed,
		Version:         4,
	}

	queries, err := buildUpdateBookingQueries(b, 4)
	require.NoError(t, err)
	require.Len(t, queries, 2)

	assert.Contains(t, queries[0].sql, `UPDATE "bookings" SET`)
	assert.Contains(t, queries[0].sql, `"version"=$`)
	assert.NotContains(t, queries[0].sql, `"created_at"`)
	assert.Contains(t, queries[0].args, int64(5))
	assert.Equal(t, int64(4), queries[0].args[len(queries[0].args)-1])
	assert.Equal(t, "bk-1", queries[0].args[len(queries[0].args)-2])

	assert.Contains(t, queries[1].sql, `UPDATE "booking_details" SET`)
	assert.NotContains(t, queries[1].sql, `"booking_id"=$`)
}

func TestBuildUpsertAccommodationQuery(t *testing.T) {
	a := &model.Accommodation{
		ID:                "acc-1",
		HostID:            "host-1",
		Name:              "Lake House",
		NightlyRate:       10000,
		Currency:          "EUR",
		MaxGuests:         4,
		ApprovalStatus:    model.ApprovalApproved,
		OperationalStatus: model.Operational,
		DiscountPolicy: model.DiscountPolicy{
			LongStay: []model.LongStayTier{{MinNights: 7, BasisPoints: 1000}},
		},
	}

	q, err := buildUpsertAccommodationQuery(a)
	require.NoError(t, err)

	assert.Contains(t, q.sql, `INSERT INTO "accommodations"`)
	assert.Contains(t, q.sql, "ON CONFLICT")
	assert.Contains(t, q.sql, "EXCLUDED.name")
	assert.NotContains(t, q.sql, "EXCLUDED.created_at")
	assert.Contains(t, q.args, []byte(`[{"min_nights":7,"basis_points":1000}]`))
}

func TestBuildLockAccommodationQuery(t *testing.T) {
	q, err := buildLockAccommodationQuery("acc-1")
	require.NoError(t, err)

	assert.Contains(t, q.sql, "FOR UPDATE")
	assert.Equal(t, []any{"acc-1"}, q.args)
}

func TestBuildPriceOfQuery(t *testing.T) {
	q, err := buildPriceOfQuery("acc-1", []string{"svc-2", "svc-1"})
	require.NoError(t, err)

	assert.Contains(t, q.sql, `FROM "accommodation_services"`)
	assert.Equal(t, []any{"acc-1", "svc-2", "svc-1"}, q.args)
}
