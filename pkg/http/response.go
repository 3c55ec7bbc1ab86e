package http

import (
	"net/http"
	apperrors "staybook/pkg/errors"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

type SuccessResponse struct {
	Data any `json:"data,omitempty"`
}

func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError renders err as an ErrorResponse. Errors that are not AppErrors
// are reported as internal errors without leaking their message.
func WriteError(w http.ResponseWriter, err error) {
	appErr := apperrors.AsAppError(err)

	resp := ErrorResponse{
		Error:   appErr.Message,
		Code:    appErr.Code,
		Details: appErr.Details,
	}
	if appErr.Code == apperrors.CodeInternal {
		resp.Error = "Internal server error"
		resp.Details = nil
	}
	if appErr.Retryable() {
		w.Header().Set("Retry-After", "1")
	}

	_ = WriteJSON(w, appErr.StatusCode(), resp)
}

func WriteSuccess(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusOK, SuccessResponse{Data: data})
}

func WriteCreated(w http.ResponseWriter, data any) error {
	return WriteJSON(w, http.StatusCreated, SuccessResponse{Data: data})
}
