// README: HTTP helper utilities for JSON error mapping.
package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"leaflift/internal/maps"
	"leaflift/internal/modules/matching"
	"leaflift/internal/modules/notification"
	"leaflift/internal/modules/ride"
	"leaflift/internal/modules/user"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ride.ErrBadRequest),
		errors.Is(err, matching.ErrBadRequest),
		errors.Is(err, notification.ErrBadRequest),
		errors.Is(err, maps.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, ride.ErrNotFound),
		errors.Is(err, matching.ErrNotFound),
		errors.Is(err, notification.ErrNotFound),
		errors.Is(err, user.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, ride.ErrInvalidState),
		errors.Is(err, ride.ErrConflict),
		errors.Is(err, ride.ErrOTPMismatch),
		errors.Is(err, ride.ErrStopNotCurrent):
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, maps.ErrProvider):
		c.JSON(http.StatusBadGateway, errorResponse{Error: "route provider unavailable"})
	default:
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}
