package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/trogers1052/stocks-daily/internal/currency"
	"github.com/trogers1052/stocks-daily/internal/display"
	"github.com/trogers1052/stocks-daily/internal/forecast"
	"github.com/trogers1052/stocks-daily/internal/history"
	"github.com/trogers1052/stocks-daily/internal/session"
)

// statusClientClosedRequest is reported when the client went away before the
// response was ready
const statusClientClosedRequest = 499

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestError is a malformed request
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &requestError{msg: fmt.Sprintf(format, args...)}
}

func unknownTicker(symbol string) error {
	return fmt.Errorf("%w: %s", history.ErrUnknownTicker, symbol)
}

// errorStatus maps a domain error to an HTTP status and error code
func errorStatus(err error) (int, string) {
	var reqErr *requestError
	var apiErr *currency.APIError
	switch {
	case errors.As(err, &reqErr):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, forecast.ErrInvalidHorizon):
		return http.StatusBadRequest, "invalid_horizon"
	case errors.Is(err, currency.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, currency.ErrInvalidCurrency):
		return http.StatusBadRequest, "invalid_currency"
	case errors.Is(err, history.ErrUnknownTicker):
		return http.StatusNotFound, "unknown_ticker"
	case errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, session.ErrForecastRunning):
		return http.StatusConflict, "forecast_running"
	case errors.Is(err, forecast.ErrInsufficientData):
		return http.StatusUnprocessableEntity, "insufficient_data"
	case errors.Is(err, history.ErrNoData), errors.Is(err, display.ErrNoData):
		return http.StatusUnprocessableEntity, "no_data"
	case errors.Is(err, currency.ErrUnsupportedPair):
		return http.StatusUnprocessableEntity, "unsupported_pair"
	case errors.Is(err, history.ErrFeedUnavailable):
		return http.StatusBadGateway, "feed_unavailable"
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, "currency_api_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "canceled"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}
