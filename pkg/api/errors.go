package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/pkg/types"
)

type errorBody struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, types.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrTransferNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrTransferExists),
		errors.Is(err, types.ErrTerminal),
		errors.Is(err, types.ErrPhaseInFlight),
		errors.Is(err, types.ErrNotEligible),
		errors.Is(err, types.ErrDeviceBusy):
		return http.StatusConflict
	case errors.Is(err, types.ErrInvalidPassword):
		return http.StatusUnauthorized
	case types.IsSigningError(err):
		return http.StatusUnprocessableEntity
	case types.IsSubmissionFailure(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusOf(err)
	message := err.Error()
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		code = httpErr.Code
		message = http.StatusText(code)
	}
	if code >= http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("[Api] request failed")
	}
	if err := c.JSON(code, errorBody{Error: message}); err != nil {
		log.Warn().Err(err).Msg("[Api] failed to write error response")
	}
}
