package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Generic codes.
const (
	CodeNotFound     = "NOT_FOUND"
	CodeValidation   = "VALIDATION_ERROR"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
	CodeTimeout      = "TIMEOUT"
	CodeUnavailable  = "SERVICE_UNAVAILABLE"
	CodeInvalidInput = "INVALID_INPUT"
)

// Booking domain codes.
const (
	CodeInvalidRange             = "INVALID_RANGE"
	CodeInvalidAmount            = "INVALID_AMOUNT"
	CodeCapacityExceeded         = "CAPACITY_EXCEEDED"
	CodeAccommodationNotFound    = "ACCOMMODATION_NOT_FOUND"
	CodeAccommodationUnavailable = "ACCOMMODATION_UNAVAILABLE"
	CodeDateConflict             = "DATE_CONFLICT"
	CodeIllegalTransition        = "ILLEGAL_TRANSITION"
	CodeNotOwner                 = "NOT_OWNER"
	CodePaymentDeclined          = "PAYMENT_DECLINED"
)

var defaultStatus = map[string]int{
	CodeNotFound:                 http.StatusNotFound,
	CodeValidation:               http.StatusUnprocessableEntity,
	CodeForbidden:                http.StatusForbidden,
	CodeConflict:                 http.StatusConflict,
	CodeInternal:                 http.StatusInternalServerError,
	CodeTimeout:                  http.StatusGatewayTimeout,
	CodeUnavailable:              http.StatusServiceUnavailable,
	CodeInvalidInput:             http.StatusBadRequest,
	CodeInvalidRange:             http.StatusUnprocessableEntity,
	CodeInvalidAmount:            http.StatusUnprocessableEntity,
	CodeCapacityExceeded:         http.StatusUnprocessableEntity,
	CodeAccommodationNotFound:    http.StatusNotFound,
	CodeAccommodationUnavailable: http.StatusConflict,
	CodeDateConflict:             http.StatusConflict,
	CodeIllegalTransition:        http.StatusConflict,
	CodeNotOwner:                 http.StatusForbidden,
	CodePaymentDeclined:          http.StatusPaymentRequired,
}

// AppError is the error every layer above storage returns. Code is stable
// and machine readable; Message is safe to show to a client.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) StatusCode() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	if status, ok := defaultStatus[e.Code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// Retryable reports whether the caller may safely repeat the request later.
func (e *AppError) Retryable() bool {
	return e.Code == CodeUnavailable || e.Code == CodeTimeout
}

// WithCause attaches the underlying failure without changing what the
// client sees.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// New builds an error with an explicit status, for codes outside the
// tables above.
func New(code, message string, httpStatus int) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: httpStatus}
}

func build(code, message string, details map[string]any) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: defaultStatus[code], Details: details}
}

func NotFoundWithID(resource, id string) *AppError {
	return build(CodeNotFound, resource+" not found", map[string]any{"resource": resource, "id": id})
}

func Validation(message string, details map[string]any) *AppError {
	return build(CodeValidation, message, details)
}

func InvalidInput(message string) *AppError { return build(CodeInvalidInput, message, nil) }

func Conflict(message string) *AppError { return build(CodeConflict, message, nil) }

func Timeout(message string) *AppError { return build(CodeTimeout, message, nil) }

func Internal(message string, err error) *AppError {
	return build(CodeInternal, message, nil).WithCause(err)
}

func Unavailable(service string) *AppError {
	return build(CodeUnavailable, service+" is temporarily unavailable", nil)
}

func InvalidRange(message string) *AppError { return build(CodeInvalidRange, message, nil) }

func InvalidAmount(message string) *AppError { return build(CodeInvalidAmount, message, nil) }

func CapacityExceeded(requested, allowed int) *AppError {
	return build(CodeCapacityExceeded,
		fmt.Sprintf("guest count %d exceeds capacity %d", requested, allowed),
		map[string]any{"guest_count": requested, "max_guests": allowed})
}

func AccommodationNotFound(id string) *AppError {
	return build(CodeAccommodationNotFound, "accommodation not found", map[string]any{"accommodation_id": id})
}

func AccommodationUnavailable(id, reason string) *AppError {
	return build(CodeAccommodationUnavailable, "accommodation is not accepting bookings",
		map[string]any{"accommodation_id": id, "reason": reason})
}

func DateConflict(message string, details map[string]any) *AppError {
	return build(CodeDateConflict, message, details)
}

func IllegalTransition(current, attempted, reason string) *AppError {
	details := map[string]any{"current_state": current, "attempted_state": attempted}
	if reason != "" {
		details["reason"] = reason
	}
	return build(CodeIllegalTransition, fmt.Sprintf("cannot move booking from %s to %s", current, attempted), details)
}

func NotOwner(actorID, action string) *AppError {
	return build(CodeNotOwner, fmt.Sprintf("actor is not allowed to %s this booking", action),
		map[string]any{"actor_id": actorID, "action": action})
}

func PaymentDeclined(bookingID string) *AppError {
	return build(CodePaymentDeclined, "payment was declined", map[string]any{"booking_id": bookingID})
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError returns the AppError in err's chain, or wraps err as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err, or anything it wraps, is an AppError with code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
