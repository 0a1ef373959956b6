package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gambinos/reservation-book/internal/booking"
)

// AvailabilityHandler serves the public availability grid.  No auth:
// guests check free tables before deciding to register.
type AvailabilityHandler struct {
	Svc *booking.Service
}

func NewAvailabilityHandler(svc *booking.Service) *AvailabilityHandler {
	return &AvailabilityHandler{Svc: svc}
}

const maxGridDays = 60

// Grid returns per-slot capacity and remaining tables for the next
// `days` days (default 7).  Untouched dates show default capacity with
// zero demand.
func (h *AvailabilityHandler) Grid(c echo.Context) error {
	days := 7
	if raw := c.QueryParam("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid days"})
		}
		days = n
	}
	if days > maxGridDays {
		days = maxGridDays
	}
	grid, err := h.Svc.Availability(c.Request().Context(), days)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"days": grid})
}
