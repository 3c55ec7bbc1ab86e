package http

import (
	"net/http"
	apperrors "staybook/pkg/errors"
	"staybook/pkg/model"
	"strings"
)

const ActorHeader = "X-Actor-ID"

// ExtractActor returns the caller identity set by the upstream gateway.
func ExtractActor(r *http.Request) (string, error) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		return "", apperrors.InvalidInput("missing " + ActorHeader + " header")
	}
	if len(actor) > 64 {
		return "", apperrors.InvalidInput(ActorHeader + " header is too long")
	}
	return actor, nil
}

// ExtractDateRange reads check_in and check_out (YYYY-MM-DD) from the query string.
func ExtractDateRange(r *http.Request) (model.DateRange, error) {
	query := r.URL.Query()
	checkIn, checkOut := query.Get("check_in"), query.Get("check_out")
	if checkIn == "" || checkOut == "" {
		return model.DateRange{}, apperrors.InvalidInput("check_in and check_out query parameters are required")
	}
	return ParseDateRange(checkIn, checkOut)
}

func ParseDateRange(checkIn, checkOut string) (model.DateRange, error) {
	rng, err := model.ParseDateRange(checkIn, checkOut)
	if err != nil {
		return model.DateRange{}, apperrors.InvalidInput(err.Error())
	}
	return rng, nil
}
