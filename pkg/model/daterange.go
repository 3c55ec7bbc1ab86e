package model

import (
	"fmt"
	"time"
)

const (
	Day        = 24 * time.Hour
	DateLayout = "2006-01-02"
)

// DateRange is a half-open interval of calendar nights [CheckIn, CheckOut).
// Both ends are UTC midnights.
type DateRange struct {
	CheckIn  time.Time `json:"check_in" bson:"check_in" validate:"required"`
	CheckOut time.Time `json:"check_out" bson:"check_out" validate:"required,gtfield=CheckIn"`
}

func NewDateRange(checkIn, checkOut time.Time) DateRange {
	return DateRange{
		CheckIn:  TruncateDay(checkIn),
		CheckOut: TruncateDay(checkOut),
	}
}

// ParseDateRange parses two YYYY-MM-DD dates. It does not check ordering.
func ParseDateRange(checkIn, checkOut string) (DateRange, error) {
	in, err := time.ParseInLocation(DateLayout, checkIn, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid check_in date %q: %w", checkIn, err)
	}
	out, err := time.ParseInLocation(DateLayout, checkOut, time.UTC)
	if err != nil {
		return DateRange{}, fmt.Errorf("invalid check_out date %q: %w", checkOut, err)
	}
	return DateRange{CheckIn: in, CheckOut: out}, nil
}

// TruncateDay returns the UTC midnight of the calendar day t falls on in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (r DateRange) Valid() bool {
	return r.CheckIn.Before(r.CheckOut)
}

func (r DateRange) Nights() int {
	return int(TruncateDay(r.CheckOut).Sub(TruncateDay(r.CheckIn)) / Day)
}

// Overlaps reports whether the two ranges share at least one night.
// A stay ending on the day another begins does not overlap it.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.CheckIn.Before(other.CheckOut) && other.CheckIn.Before(r.CheckOut)
}

func (r DateRange) Normalize() DateRange {
	return NewDateRange(r.CheckIn, r.CheckOut)
}

func (r DateRange) String() string {
	return r.CheckIn.Format(DateLayout) + "/" + r.CheckOut.Format(DateLayout)
}
