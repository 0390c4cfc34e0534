package http

import (
	"errors"
	"net/http"

	"nftloan-backend/internal/adapter/middleware"
	"nftloan-backend/internal/domain/loan"

	"github.com/labstack/echo/v4"
)

// statusOf maps the loan error classes onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, loan.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loan.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, loan.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, loan.ErrState):
		return http.StatusConflict
	case errors.Is(err, loan.ErrTransfer):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers with the mapped status. Unclassified errors are logged
// against the request id and hidden from the client.
func (h *LoanHandler) writeError(c echo.Context, err error) error {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.log.Error("request failed",
			"request_id", middleware.RequestIDFrom(c),
			"method", c.Request().Method,
			"path", c.Path(),
			"err", err,
		)
		msg = "internal error"
	}
	return c.JSON(code, ErrorResponse{Error: msg})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

func invalid(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "validation failed", Details: ToFieldErrors(err)})
}
