package validator

import (
	"errors"
	"fmt"
	"regexp"
	"staybook/pkg/logger"
	"staybook/pkg/model"
	"strings"

	"github.com/go-playground/validator/v10"
)

const MaxReasonLength = 500

var (
	entityIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)
	currencyRegex = regexp.MustCompile(`^[A-Z]{3}$`)
)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("entity_id", validateEntityID); err != nil {
		log.Fatal("Failed to register 'entity_id' validator",
			"error", err,
		)
	}
	if err := v.RegisterValidation("currency", validateCurrency); err != nil {
		log.Fatal("Failed to register 'currency' validator",
			"error", err,
		)
	}

	if err := v.RegisterValidation("booking_state", validateBookingState); err != nil {
		log.Fatal("Failed to register 'booking_state' validator",
			"error", err,
		)
	}

	log.Debug("Booking validator initialized successfully")

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateEntityID(fl validator.FieldLevel) bool {
	return entityIDRegex.MatchString(fl.Field().String())
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyRegex.MatchString(fl.Field().String())
}

func validateBookingState(fl validator.FieldLevel) bool {
	switch model.BookingState(fl.Field().String()) {
	case model.StatePending, model.StateConfirmed, model.StateCheckIn, model.StateCheckOut, model.StateCancelled:
		return true
	}
	return false
}

// ValidateBooking checks a booking right before it is persisted.
func (v *BookingValidator) ValidateBooking(b *model.Booking) error {
	if err := v.structErrors(b); err != nil {
		return err
	}
	if !b.Valid() {
		return ValidationErrors{{Field: "CheckOut", Message: "check_out must be after check_in"}}
	}
	return nil
}

func (v *BookingValidator) ValidateCreate(req *model.CreateBookingRequest) error {
	return v.structErrors(req)
}

func (v *BookingValidator) ValidateQuote(req *model.QuoteRequest) error {
	return v.structErrors(req)
}

func (v *BookingValidator) ValidateAccommodation(a *model.Accommodation) error {
	if err := v.structErrors(a); err != nil {
		return err
	}
	if a.FeePolicy.Type == model.FeeFixed && a.FeePolicy.BasisPoints != 0 {
		return ValidationErrors{{Field: "FeePolicy", Message: "fixed fee must not set basis_points"}}
	}
	if a.FeePolicy.Type == model.FeePercentage && a.FeePolicy.Amount != 0 {
		return ValidationErrors{{Field: "FeePolicy", Message: "percentage fee must not set amount"}}
	}
	return nil
}

func (v *BookingValidator) ValidateService(s *model.AddOnService) error {
	return v.structErrors(s)
}

func (v *BookingValidator) ValidateGuestCount(count int) error {
	if err := v.validate.Var(count, "min=1"); err != nil {
		return ValidationErrors{{Field: "GuestCount", Message: "GuestCount must be at least 1"}}
	}
	return nil
}

func (v *BookingValidator) ValidateReason(reason string) error {
	if len(reason) > MaxReasonLength {
		return ValidationErrors{{
			Field:   "Reason",
			Message: fmt.Sprintf("Reason must be at most %d characters", MaxReasonLength),
		}}
	}
	return nil
}

func (v *BookingValidator) structErrors(s any) error {
	if err := v.validate.Struct(s); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "len":
			message = fmt.Sprintf("%s must have length %s", err.Field(), err.Param())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "unique":
			message = fmt.Sprintf("%s must not contain duplicates", err.Field())
		case "entity_id":
			message = fmt.Sprintf("%s must contain only letters, digits, '-' and '_'", err.Field())
		case "uuid":
			message = fmt.Sprintf("%s must be a valid UUID", err.Field())
		case "booking_state":
			message = fmt.Sprintf("%s must be a known booking state", err.Field())
		case "currency":
			message = fmt.Sprintf("%s must be an upper-case ISO 4217 code", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
