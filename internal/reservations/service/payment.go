package service

import (
	"context"
	"errors"
	"fmt"
	reserrors "staybook/internal/reservations/errors"
	"staybook/internal/reservations/lifecycle"
	"staybook/internal/reservations/payment"
	"staybook/internal/reservations/repository"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/model"
)

// ConfirmPayment charges the guest and records the voucher. The charge happens
// outside the calendar transaction; the gateway deduplicates by booking and
// amount so a retried call never charges twice. A charge whose booking was
// cancelled or repriced before it could be recorded is refunded.
func (s *reservationService) ConfirmPayment(ctx context.Context, bookingID, actorID string) (*BookingView, error) {
	if bookingID == "" || actorID == "" {
		return nil, apperrors.InvalidInput("Booking ID and actor are required")
	}

	current, err := s.booking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if actorID != current.GuestID && !s.cfg.IsAdmin(actorID) {
		return nil, apperrors.NotOwner(actorID, "pay for")
	}
	if current.PaymentConfirmed {
		return s.view(ctx, current)
	}
	if !lifecycle.IsEditable(current.State) {
		return nil, apperrors.IllegalTransition(string(current.State), string(current.State), "only PENDING or CONFIRMED bookings can be paid")
	}

	acc, err := s.accommodation(ctx, current.AccommodationID)
	if err != nil {
		return nil, err
	}

	receipt, err := s.payments.Charge(ctx, payment.ChargeRequest{
		BookingID: current.ID,
		Amount:    current.TotalPrice,
		Currency:  current.Currency,
		GuestID:   current.GuestID,
	})
	if err != nil {
		if errors.Is(err, payment.ErrDeclined) {
			s.log.Info("Payment declined", "booking_id", current.ID, "amount", current.TotalPrice)
			return nil, apperrors.PaymentDeclined(current.ID)
		}
		s.log.Error("Payment gateway failed", "booking_id", current.ID, "error", err)
		return nil, apperrors.Unavailable("payment gateway").WithCause(err)
	}

	var (
		paid    *model.Booking
		voucher *model.Voucher
		event   *model.BookingEvent
	)
	err = s.inCalendar(ctx, "record payment", acc.ID, func(ctx context.Context, tx repository.CalendarTx) error {
		b, err := tx.FindBooking(ctx, bookingID)
		if err != nil {
			return bookingLookupError(bookingID, err)
		}
		if b.PaymentConfirmed {
			v, err := tx.FindVoucher(ctx, b.ID)
			if err != nil && !errors.Is(err, reserrors.ErrVoucherNotFound) {
				return err
			}
			paid, voucher, event = b, v, nil
			return nil
		}
		if !lifecycle.IsEditable(b.State) {
			return apperrors.Conflict(fmt.Sprintf("Booking became %s while the payment was processed", b.State)).
				WithDetails(map[string]any{"state": string(b.State)})
		}
		if b.TotalPrice != current.TotalPrice {
			return apperrors.Conflict("Booking total changed while the payment was processed").
				WithDetails(map[string]any{"charged": current.TotalPrice, "total": b.TotalPrice})
		}

		now := s.now()
		issuedAt := receipt.ChargedAt
		if issuedAt.IsZero() {
			issuedAt = now
		}
		v := &model.Voucher{
			ID:               newID(),
			BookingID:        b.ID,
			Total:            b.TotalPrice,
			Currency:         b.Currency,
			PaymentReference: receipt.Reference,
			IssuedAt:         issuedAt,
		}
		if err := tx.InsertVoucher(ctx, v); err != nil {
			return err
		}

		b.PaymentConfirmed = true
		b.UpdatedAt = now
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}

		e := s.modifiedEvent(b, acc.HostID, actorID, now)
		e.Type = model.EventBookingPaid
		paid, voucher, event = b, v, &e
		return nil
	})
	if err != nil {
		return nil, s.settleUnrecordedCharge(ctx, current, receipt, err)
	}

	if event != nil {
		s.publish(ctx, *event)
		s.log.Info("Booking paid successfully",
			"id", paid.ID,
			"voucher_id", voucher.ID,
			"total", voucher.Total,
		)
	}
	return &BookingView{Booking: paid, Voucher: voucher}, nil
}

func (s *reservationService) view(ctx context.Context, b *model.Booking) (*BookingView, error) {
	view := &BookingView{Booking: b}
	if !b.PaymentConfirmed {
		return view, nil
	}

	err := s.read(ctx, "find voucher", func(ctx context.Context) error {
		v, err := s.store.Vouchers().FindByBookingID(ctx, b.ID)
		if err != nil {
			return err
		}
		view.Voucher = v
		return nil
	})
	if err != nil && !errors.Is(err, reserrors.ErrVoucherNotFound) {
		return nil, s.readError("Failed to retrieve voucher", err)
	}
	return view, nil
}

// settleUnrecordedCharge refunds a charge whose booking rejected it. When
// the store failed instead, the charge is kept: the outcome of the write is
// unknown and a retry replays the same receipt.
func (s *reservationService) settleUnrecordedCharge(ctx context.Context, b *model.Booking, receipt *payment.Receipt, cause error) error {
	appErr := apperrors.AsAppError(cause)
	if !refundable(appErr) {
		s.log.Error("Charged booking but failed to record payment",
			"booking_id", b.ID,
			"payment_reference", receipt.Reference,
			"error", cause,
		)
		return appErr
	}

	details := map[string]any{"payment_reference": receipt.Reference, "refunded": true}
	err := s.payments.Refund(context.WithoutCancel(ctx), payment.RefundRequest{
		BookingID: b.ID,
		Reference: receipt.Reference,
		Amount:    b.TotalPrice,
		Currency:  b.Currency,
		Reason:    appErr.Message,
	})
	if err != nil {
		s.log.Error("Failed to refund unrecorded charge",
			"booking_id", b.ID,
			"payment_reference", receipt.Reference,
			"amount", b.TotalPrice,
			"error", err,
		)
		details["refunded"] = false
	} else {
		s.log.Warn("Refunded charge for booking that changed during payment",
			"booking_id", b.ID,
			"payment_reference", receipt.Reference,
			"reason", appErr.Message,
		)
	}

	for k, v := range appErr.Details {
		details[k] = v
	}
	appErr.Details = details
	return appErr
}

func refundable(err *apperrors.AppError) bool {
	switch err.Code {
	case apperrors.CodeConflict, apperrors.CodeIllegalTransition, apperrors.CodeNotFound:
		return true
	default:
		return false
	}
}
