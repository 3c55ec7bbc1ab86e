// Package pricing computes the price of a stay in integer minor currency units.
package pricing

import (
	"errors"
	"fmt"
	"staybook/pkg/model"
)

const basisPointsDenominator = 10000

var (
	ErrInvalidRange  = errors.New("check-out must be at least one night after check-in")
	ErrInvalidAmount = errors.New("price components must not be negative")
)

type Input struct {
	NightlyRate    int64
	Range          model.DateRange
	GuestCount     int
	AddOns         []model.AddOnService
	FeePolicy      model.FeePolicy
	DiscountPolicy model.DiscountPolicy
}

// Quote is the full price breakdown.
// Total = Subtotal - Discount + ServiceFee, ServiceFee = PolicyFee + AddOnTotal.
type Quote struct {
	Nights      int               `json:"nights"`
	NightlyRate int64             `json:"nightly_rate"`
	Subtotal    int64             `json:"subtotal"`
	Discount    int64             `json:"discount"`
	PolicyFee   int64             `json:"policy_fee"`
	AddOnTotal  int64             `json:"add_on_total"`
	ServiceFee  int64             `json:"service_fee"`
	Total       int64             `json:"total"`
	AddOns      []model.AddOnLine `json:"add_ons,omitempty"`
}

// Calculate is pure: the same input always yields the same quote.
func Calculate(in Input) (Quote, error) {
	nights := in.Range.Nights()
	if !in.Range.Valid() || nights <= 0 {
		return Quote{}, ErrInvalidRange
	}
	if in.NightlyRate < 0 {
		return Quote{}, fmt.Errorf("%w: nightly rate %d", ErrInvalidAmount, in.NightlyRate)
	}

	subtotal := in.NightlyRate * int64(nights)

	policyFee, err := feeFor(in.FeePolicy, subtotal)
	if err != nil {
		return Quote{}, err
	}

	var addOnTotal int64
	lines := make([]model.AddOnLine, 0, len(in.AddOns))
	for _, svc := range in.AddOns {
		if svc.Price < 0 {
			return Quote{}, fmt.Errorf("%w: add-on %s price %d", ErrInvalidAmount, svc.ID, svc.Price)
		}
		addOnTotal += svc.Price
		lines = append(lines, model.AddOnLine{ServiceID: svc.ID, Name: svc.Name, Price: svc.Price})
	}

	discount := applyBasisPoints(subtotal, bestTier(in.DiscountPolicy, nights))
	serviceFee := policyFee + addOnTotal
	total := subtotal - discount + serviceFee
	if total < 0 {
		return Quote{}, fmt.Errorf("%w: total %d", ErrInvalidAmount, total)
	}

	q := Quote{
		Nights:      nights,
		NightlyRate: in.NightlyRate,
		Subtotal:    subtotal,
		Discount:    discount,
		PolicyFee:   policyFee,
		AddOnTotal:  addOnTotal,
		ServiceFee:  serviceFee,
		Total:       total,
	}
	if len(lines) > 0 {
		q.AddOns = lines
	}
	return q, nil
}

func feeFor(policy model.FeePolicy, subtotal int64) (int64, error) {
	switch policy.Type {
	case model.FeeNone:
		return 0, nil
	case model.FeeFixed:
		if policy.Amount < 0 {
			return 0, fmt.Errorf("%w: fixed fee %d", ErrInvalidAmount, policy.Amount)
		}
		return policy.Amount, nil
	case model.FeePercentage:
		if policy.BasisPoints < 0 {
			return 0, fmt.Errorf("%w: fee basis points %d", ErrInvalidAmount, policy.BasisPoints)
		}
		return applyBasisPoints(subtotal, policy.BasisPoints), nil
	default:
		return 0, fmt.Errorf("%w: unknown fee type %q", ErrInvalidAmount, policy.Type)
	}
}

// bestTier returns the largest discount among tiers the stay qualifies for.
func bestTier(policy model.DiscountPolicy, nights int) int64 {
	var best int64
	for _, tier := range policy.LongStay {
		if nights >= tier.MinNights && tier.BasisPoints > best {
			best = tier.BasisPoints
		}
	}
	if best > basisPointsDenominator {
		best = basisPointsDenominator
	}
	return best
}

// applyBasisPoints returns amount*bp/10000 rounded half-up.
func applyBasisPoints(amount, bp int64) int64 {
	if bp <= 0 || amount <= 0 {
		return 0
	}
	return (amount*bp + basisPointsDenominator/2) / basisPointsDenominator
}

// Detail turns a quote into the persisted breakdown of a booking.
func (q Quote) Detail(bookingID string, guestCount int, serviceIDs []string) model.DetailBooking {
	d := model.DetailBooking{
		BookingID:   bookingID,
		NightlyRate: q.NightlyRate,
		Nights:      q.Nights,
		GuestCount:  guestCount,
		Subtotal:    q.Subtotal,
		Discount:    q.Discount,
		PolicyFee:   q.PolicyFee,
		ServiceFee:  q.ServiceFee,
		Total:       q.Total,
	}
	if len(q.AddOns) > 0 {
		d.AddOns = append([]model.AddOnLine(nil), q.AddOns...)
	}
	if len(serviceIDs) > 0 {
		d.ServiceIDs = append([]string(nil), serviceIDs...)
	}
	return d
}
