package handler

import (
	"errors"
	"io"
	"net/http"
	"staybook/internal/reservations/calendar"
	"staybook/internal/reservations/service"
	apperrors "staybook/pkg/errors"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
	"staybook/pkg/model"
	"staybook/pkg/sanitizer"

	jsoniter "github.com/json-iterator/go"
	"github.com/julienschmidt/httprouter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type stayRequest struct {
	AccommodationID string   `json:"accommodation_id"`
	CheckIn         string   `json:"check_in"`
	CheckOut        string   `json:"check_out"`
	GuestCount      int      `json:"guest_count"`
	ServiceIDs      []string `json:"service_ids,omitempty"`
}

type datesRequest struct {
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
}

type guestsRequest struct {
	GuestCount int `json:"guest_count"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type BookingHandler struct {
	service service.ReservationService
	log     *logger.Logger
}

func NewBookingHandler(service service.ReservationService, log *logger.Logger) *BookingHandler {
	return &BookingHandler{
		service: service,
		log:     log,
	}
}

func (h *BookingHandler) RegisterRoutes(router *httprouter.Router) {
	router.POST("/api/v1/bookings", h.Create)
	router.GET("/api/v1/bookings/id/:id", h.GetByID)
	router.PATCH("/api/v1/bookings/id/:id/dates", h.UpdateDates)
	router.PATCH("/api/v1/bookings/id/:id/guests", h.UpdateGuests)
	router.POST("/api/v1/bookings/id/:id/cancel", h.Cancel)
	router.POST("/api/v1/bookings/id/:id/confirm", h.Confirm)
	router.POST("/api/v1/bookings/id/:id/reject", h.Reject)
	router.POST("/api/v1/bookings/id/:id/payment", h.Pay)
	router.GET("/api/v1/accommodations/:id/calendar", h.Calendar)
	router.POST("/api/v1/quotes", h.Quote)
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req stayRequest
	if err := decode(r, &req, false); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rng, err := httputil.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.service.CreateBooking(r.Context(), &model.CreateBookingRequest{
		GuestID:         actor,
		AccommodationID: sanitizer.NormalizeID(req.AccommodationID),
		Range:           rng,
		GuestCount:      req.GuestCount,
		ServiceIDs:      sanitizer.NormalizeIDs(req.ServiceIDs),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := httputil.WriteCreated(w, booking); err != nil {
		h.log.Error("failed to write created response", "handler", "Create", "operation", "WriteCreated", "error", err)
	}
}

func (h *BookingHandler) GetByID(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	booking, err := h.service.GetBooking(r.Context(), ps.ByName("id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", "GetByID", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) UpdateDates(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req datesRequest
	if err := decode(r, &req, false); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rng, err := httputil.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.service.UpdateBookingDates(r.Context(), ps.ByName("id"), actor, rng)
	h.respond(w, "UpdateDates", booking, err)
}

func (h *BookingHandler) UpdateGuests(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req guestsRequest
	if err := decode(r, &req, false); err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.service.UpdateGuestCount(r.Context(), ps.ByName("id"), actor, req.GuestCount)
	h.respond(w, "UpdateGuests", booking, err)
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req reasonRequest
	if err := decode(r, &req, true); err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.service.CancelBooking(r.Context(), ps.ByName("id"), actor, sanitizer.NormalizeReason(req.Reason))
	h.respond(w, "Cancel", booking, err)
}

func (h *BookingHandler) Confirm(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.service.ConfirmBooking(r.Context(), ps.ByName("id"), actor)
	h.respond(w, "Confirm", booking, err)
}

func (h *BookingHandler) Reject(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req reasonRequest
	if err := decode(r, &req, true); err != nil {
		httputil.WriteError(w, err)
		return
	}

	booking, err := h.service.RejectBooking(r.Context(), ps.ByName("id"), actor, sanitizer.NormalizeReason(req.Reason))
	h.respond(w, "Reject", booking, err)
}

func (h *BookingHandler) Pay(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	actor, err := httputil.ExtractActor(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	view, err := h.service.ConfirmPayment(r.Context(), ps.ByName("id"), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := httputil.WriteSuccess(w, view); err != nil {
		h.log.Error("failed to write success response", "handler", "Pay", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) Calendar(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rng, err := httputil.ExtractDateRange(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	bookings, err := h.service.ListActiveBookings(r.Context(), ps.ByName("id"), rng)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	free := calendar.FreeNights(rng, bookings)
	if free == nil {
		free = []model.DateRange{}
	}
	if err := httputil.WriteJSON(w, http.StatusOK, calendarResponse{
		Data:  bookings,
		Count: len(bookings),
		Free:  free,
	}); err != nil {
		h.log.Error("failed to write calendar response", "handler", "Calendar", "operation", "WriteJSON", "error", err)
	}
}

// calendarResponse lists the active bookings in the requested range next to
// the sub-ranges still open for booking.
type calendarResponse struct {
	Data  []*model.Booking  `json:"data"`
	Count int               `json:"count"`
	Free  []model.DateRange `json:"free"`
}

func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req stayRequest
	if err := decode(r, &req, false); err != nil {
		httputil.WriteError(w, err)
		return
	}
	rng, err := httputil.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	quote, err := h.service.Quote(r.Context(), &model.QuoteRequest{
		AccommodationID: sanitizer.NormalizeID(req.AccommodationID),
		Range:           rng,
		GuestCount:      req.GuestCount,
		ServiceIDs:      sanitizer.NormalizeIDs(req.ServiceIDs),
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	if err := httputil.WriteSuccess(w, quote); err != nil {
		h.log.Error("failed to write success response", "handler", "Quote", "operation", "WriteSuccess", "error", err)
	}
}

func (h *BookingHandler) respond(w http.ResponseWriter, handler string, booking *model.Booking, err error) {
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := httputil.WriteSuccess(w, booking); err != nil {
		h.log.Error("failed to write success response", "handler", handler, "operation", "WriteSuccess", "error", err)
	}
}

// decode reads a JSON body into dst. An empty body is accepted only when
// optional is set.
func decode(r *http.Request, dst any, optional bool) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperrors.InvalidInput("Invalid request body")
	}
	return nil
}
