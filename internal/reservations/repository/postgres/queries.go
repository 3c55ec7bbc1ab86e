package postgres

import (
	"errors"
	"staybook/internal/reservations/calendar"
	"staybook/pkg/model"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/doug-martin/goqu/v9/exp"
	jsoniter "github.com/json-iterator/go"
)

const (
	dialectPostgres = "postgres"

	tableAccommodations = "accommodations"
	tableServices       = "accommodation_services"
	tableBookings       = "bookings"
	tableDetails        = "booking_details"
	tableVouchers       = "vouchers"

	aliasBooking = "b"
	aliasDetail  = "d"
)

var (
	ErrBuildingQueryFailed = errors.New("building query failed")

	json = jsoniter.ConfigFastest

	dialect = goqu.Dialect(dialectPostgres)
)

type sqlQuery struct {
	sql  string
	args []any
}

func toSQL(ds interface {
	ToSQL() (string, []any, error)
}) (sqlQuery, error) {
	sql, args, err := ds.ToSQL()
	if err != nil {
		return sqlQuery{}, errors.Join(ErrBuildingQueryFailed, err)
	}
	return sqlQuery{sql: sql, args: args}, nil
}

func bookingColumns() []any {
	return []any{
		goqu.I("b.id"), goqu.I("b.accommodation_id"), goqu.I("b.guest_id"),
		goqu.I("b.check_in"), goqu.I("b.check_out"), goqu.I("b.state"),
		goqu.I("b.total_price"), goqu.I("b.currency"), goqu.I("b.payment_confirmed"),
		goqu.I("b.refund_eligible"), goqu.I("b.cancelled_by"), goqu.I("b.cancellation_reason"),
		goqu.I("b.cancelled_at"), goqu.I("b.version"), goqu.I("b.created_at"), goqu.I("b.updated_at"),
		goqu.I("d.nightly_rate"), goqu.I("d.nights"), goqu.I("d.guest_count"),
		goqu.I("d.subtotal"), goqu.I("d.discount"), goqu.I("d.policy_fee"),
		goqu.I("d.service_fee"), goqu.I("d.total"), goqu.I("d.add_ons"), goqu.I("d.service_ids"),
	}
}

func selectBookings() *goqu.SelectDataset {
	return dialect.
		From(goqu.T(tableBookings).As(aliasBooking)).
		Join(goqu.T(tableDetails).As(aliasDetail), goqu.On(goqu.I("d.booking_id").Eq(goqu.I("b.id")))).
		Select(bookingColumns()...).
		Prepared(true)
}

func buildFindBookingQuery(id string) (sqlQuery, error) {
	return toSQL(selectBookings().Where(goqu.I("b.id").Eq(id)))
}

// buildActiveBookingsQuery selects active bookings with
// check_in < rng.CheckOut AND check_out > rng.CheckIn.
func buildActiveBookingsQuery(accommodationID string, rng model.DateRange) (sqlQuery, error) {
	return toSQL(selectBookings().
		Where(
			goqu.I("b.accommodation_id").Eq(accommodationID),
			goqu.I("b.state").In(stateStrings(calendar.ActiveStates())),
			goqu.I("b.check_in").Lt(rng.CheckOut),
			goqu.I("b.check_out").Gt(rng.CheckIn),
		).
		Order(goqu.I("b.check_in").Asc(), goqu.I("b.id").Asc()))
}

func buildDueQuery(state model.BookingState, dateColumn string, asOf time.Time, limit int) (sqlQuery, error) {
	ds := selectBookings().
		Where(
			goqu.I("b.state").Eq(string(state)),
			goqu.I(aliasBooking+"."+dateColumn).Lte(asOf),
		).
		Order(goqu.I("b.check_in").Asc(), goqu.I("b.id").Asc())
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	return toSQL(ds)
}

func bookingRecord(b *model.Booking) goqu.Record {
	return goqu.Record{
		"id":                  b.ID,
		"accommodation_id":    b.AccommodationID,
		"guest_id":            b.GuestID,
		"check_in":            b.CheckIn,
		"check_out":           b.CheckOut,
		"state":               string(b.State),
		"total_price":         b.TotalPrice,
		"currency":            b.Currency,
		"payment_confirmed":   b.PaymentConfirmed,
		"refund_eligible":     b.RefundEligible,
		"cancelled_by":        b.CancelledBy,
		"cancellation_reason": b.CancellationReason,
		"cancelled_at":        b.CancelledAt,
		"version":             b.Version,
		"created_at":          b.CreatedAt,
		"updated_at":          b.UpdatedAt,
	}
}

func detailRecord(d model.DetailBooking) (goqu.Record, error) {
	addOns, err := json.Marshal(nonNilLines(d.AddOns))
	if err != nil {
		return nil, err
	}
	serviceIDs, err := json.Marshal(nonNilStrings(d.ServiceIDs))
	if err != nil {
		return nil, err
	}
	return goqu.Record{
		"booking_id":   d.BookingID,
		"nightly_rate": d.NightlyRate,
		"nights":       d.Nights,
		"guest_count":  d.GuestCount,
		"subtotal":     d.Subtotal,
		"discount":     d.Discount,
		"policy_fee":   d.PolicyFee,
		"service_fee":  d.ServiceFee,
		"total":        d.Total,
		"add_ons":      addOns,
		"service_ids":  serviceIDs,
	}, nil
}

func buildInsertBookingQueries(b *model.Booking) ([]sqlQuery, error) {
	booking, err := toSQL(dialect.Insert(tableBookings).Rows(bookingRecord(b)).Prepared(true))
	if err != nil {
		return nil, err
	}
	rec, err := detailRecord(b.Detail)
	if err != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}
	detail, err := toSQL(dialect.Insert(tableDetails).Rows(rec).Prepared(true))
	if err != nil {
		return nil, err
	}
	return []sqlQuery{booking, detail}, nil
}

// buildUpdateBookingQueries writes b with version expected+1 only if the row
// still has version expected.
func buildUpdateBookingQueries(b *model.Booking, expected int64) ([]sqlQuery, error) {
	rec := bookingRecord(b)
	delete(rec, "id")
	delete(rec, "created_at")
	rec["version"] = expected + 1

	booking, err := toSQL(dialect.Update(tableBookings).
		Set(rec).
		Where(goqu.C("id").Eq(b.ID), goqu.C("version").Eq(expected)).
		Prepared(true))
	if err != nil {
		return nil, err
	}

	detailRec, err := detailRecord(b.Detail)
	if err != nil {
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}
	delete(detailRec, "booking_id")
	detail, err := toSQL(dialect.Update(tableDetails).
		Set(detailRec).
		Where(goqu.C("booking_id").Eq(b.ID)).
		Prepared(true))
	if err != nil {
		return nil, err
	}
	return []sqlQuery{booking, detail}, nil
}

func voucherColumns() []any {
	return []any{"id", "booking_id", "total", "currency", "payment_reference", "issued_at"}
}

func buildFindVoucherQuery(bookingID string) (sqlQuery, error) {
	return toSQL(dialect.From(tableVouchers).
		Select(voucherColumns()...).
		Where(goqu.C("booking_id").Eq(bookingID)).
		Prepared(true))
}

func buildInsertVoucherQuery(v *model.Voucher) (sqlQuery, error) {
	return toSQL(dialect.Insert(tableVouchers).Rows(goqu.Record{
		"id":                v.ID,
		"booking_id":        v.BookingID,
		"total":             v.Total,
		"currency":          v.Currency,
		"payment_reference": v.PaymentReference,
		"issued_at":         v.IssuedAt,
	}).Prepared(true))
}

func accommodationColumns() []any {
	return []any{
		"id", "host_id", "name", "nightly_rate", "currency", "max_guests",
		"approval_status", "operational_status", "fee_type", "fee_amount",
		"fee_basis_points", "discount_tiers", "instant_book", "created_at", "updated_at",
	}
}

func buildFindAccommodationQuery(id string) (sqlQuery, error) {
	return toSQL(dialect.From(tableAccommodations).
		Select(accommodationColumns()...).
		Where(goqu.C("id").Eq(id)).
		Prepared(true))
}

// buildLockAccommodationQuery takes a row lock on the accommodation so calendar
// transactions on the same accommodation queue behind each other.
func buildLockAccommodationQuery(id string) (sqlQuery, error) {
	return toSQL(dialect.From(tableAccommodations).
		Select("id").
		Where(goqu.C("id").Eq(id)).
		ForUpdate(exp.Wait).
		Prepared(true))
}

func buildUpsertAccommodationQuery(a *model.Accommodation) (sqlQuery, error) {
	tiers, err := json.Marshal(nonNilTiers(a.DiscountPolicy.LongStay))
	if err != nil {
		return sqlQuery{}, errors.Join(ErrBuildingQueryFailed, err)
	}
	rec := goqu.Record{
		"id":                 a.ID,
		"host_id":            a.HostID,
		"name":               a.Name,
		"nightly_rate":       a.NightlyRate,
		"currency":           a.Currency,
		"max_guests":         a.MaxGuests,
		"approval_status":    string(a.ApprovalStatus),
		"operational_status": string(a.OperationalStatus),
		"fee_type":           string(a.FeePolicy.Type),
		"fee_amount":         a.FeePolicy.Amount,
		"fee_basis_points":   a.FeePolicy.BasisPoints,
		"discount_tiers":     tiers,
		"instant_book":       a.InstantBook,
		"created_at":         a.CreatedAt,
		"updated_at":         a.UpdatedAt,
	}
	return toSQL(dialect.Insert(tableAccommodations).
		Rows(rec).
		OnConflict(goqu.DoUpdate("id", excludedRecord(rec, "id", "created_at"))).
		Prepared(true))
}

func buildPriceOfQuery(accommodationID string, serviceIDs []string) (sqlQuery, error) {
	return toSQL(dialect.From(tableServices).
		Select("id", "accommodation_id", "name", "price").
		Where(
			goqu.C("accommodation_id").Eq(accommodationID),
			goqu.C("id").In(serviceIDs),
		).
		Prepared(true))
}

func buildUpsertServiceQuery(s *model.AddOnService) (sqlQuery, error) {
	rec := goqu.Record{
		"id":               s.ID,
		"accommodation_id": s.AccommodationID,
		"name":             s.Name,
		"price":            s.Price,
	}
	return toSQL(dialect.Insert(tableServices).
		Rows(rec).
		OnConflict(goqu.DoUpdate("id", excludedRecord(rec, "id"))).
		Prepared(true))
}

// excludedRecord maps every column of rec except skip to EXCLUDED.<column>.
func excludedRecord(rec goqu.Record, skip ...string) goqu.Record {
	out := goqu.Record{}
	for col := range rec {
		if contains(skip, col) {
			continue
		}
		out[col] = goqu.L("EXCLUDED." + col)
	}
	return out
}

func contains(items []string, item string) bool {
	for _, i := range items {
		if i == item {
			return true
		}
	}
	return false
}

func stateStrings(states []model.BookingState) []string {
	out := make([]string, len(states))
	for i, s := range states {
		out[i] = string(s)
	}
	return out
}

func nonNilLines(lines []model.AddOnLine) []model.AddOnLine {
	if lines == nil {
		return []model.AddOnLine{}
	}
	return lines
}

func nonNilStrings(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}

func nonNilTiers(tiers []model.LongStayTier) []model.LongStayTier {
	if tiers == nil {
		return []model.LongStayTier{}
	}
	return tiers
}
