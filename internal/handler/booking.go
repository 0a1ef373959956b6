package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/gambinos/reservation-book/internal/booking"
	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/queue"
	"github.com/gambinos/reservation-book/internal/schedule"
	qp "github.com/gambinos/reservation-book/internal/service"
	"github.com/gambinos/reservation-book/internal/store"
)

// BookingHandler serves the customer-facing reservation endpoints.
type BookingHandler struct {
	Svc   *booking.Service
	Store store.Store
	Sched *schedule.Schedule
}

func NewBookingHandler(svc *booking.Service, st store.Store, sched *schedule.Schedule) *BookingHandler {
	return &BookingHandler{Svc: svc, Store: st, Sched: sched}
}

type bookReq struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
	Mobile    string `json:"mobile"`

	Date       string `json:"date"`
	StartSlot  string `json:"start_slot"`
	Duration   int    `json:"duration_slots"`
	Tables     int    `json:"tables"`
	UntilClose bool   `json:"until_close"`

	SeriesDays  int    `json:"series_days"`
	SeriesTitle string `json:"series_title"`
	SeriesNotes string `json:"series_notes"`
}

type editReq struct {
	Date       string `json:"date"`
	StartSlot  string `json:"start_slot"`
	Duration   int    `json:"duration_slots"`
	Tables     int    `json:"tables"`
	UntilClose bool   `json:"until_close"`
}

// Create books a reservation (or a consecutive-day series) for the
// authenticated customer.  The customer record is keyed by the token's
// email, so a guest cannot book on someone else's account.
func (h *BookingHandler) Create(c echo.Context) error {
	var req bookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	email, _ := c.Get("email").(string)

	created, cust, err := h.Svc.Book(c.Request().Context(), booking.BookRequest{
		Email:         email,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Phone:         req.Phone,
		Mobile:        req.Mobile,
		Date:          req.Date,
		StartSlot:     req.StartSlot,
		DurationSlots: req.Duration,
		Tables:        req.Tables,
		UntilClose:    req.UntilClose,
		SeriesDays:    req.SeriesDays,
		SeriesTitle:   req.SeriesTitle,
		SeriesNotes:   req.SeriesNotes,
	})
	if err != nil {
		return writeBookingError(c, err)
	}

	// Best effort: a booking never fails because the broker is down.
	_ = qp.PublishNotification(c.Request().Context(),
		notificationFor(queue.KindConfirmed, h.Sched, cust, created))

	return c.JSON(http.StatusCreated, echo.Map{
		"reservations": viewsOf(h.Sched, created),
	})
}

// List returns the authenticated customer's reservations.
func (h *BookingHandler) List(c echo.Context) error {
	email, _ := c.Get("email").(string)
	rs, err := h.Store.ListReservationsByEmail(c.Request().Context(), email)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"reservations": viewsOf(h.Sched, rs)})
}

// Get returns a single reservation the caller is allowed to see.
func (h *BookingHandler) Get(c echo.Context) error {
	id, err := reservationID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx := c.Request().Context()
	r, err := h.Store.GetReservation(ctx, id)
	if err != nil {
		return writeBookingError(c, err)
	}
	actor := actorFrom(c)
	if !actor.Staff {
		cust, err := h.Store.GetCustomerByID(ctx, r.CustomerID)
		if err != nil {
			return writeBookingError(c, err)
		}
		if cust.Email != model.NormalizeEmail(actor.Email) {
			return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
		}
	}
	return c.JSON(http.StatusOK, viewOf(h.Sched, r))
}

// Edit re-shapes an active reservation.
func (h *BookingHandler) Edit(c echo.Context) error {
	id, err := reservationID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req editReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	r, err := h.Svc.Edit(c.Request().Context(), id, booking.EditRequest{
		Date:          req.Date,
		StartSlot:     req.StartSlot,
		DurationSlots: req.Duration,
		Tables:        req.Tables,
		UntilClose:    req.UntilClose,
	}, actorFrom(c))
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(h.Sched, r))
}

// Cancel releases a reservation.  Repeats are no-op successes.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, err := reservationID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx := c.Request().Context()
	res, err := h.Svc.Cancel(ctx, id, actorFrom(c))
	if err != nil {
		return writeBookingError(c, err)
	}
	if res.Released {
		if cust, err := h.Store.GetCustomerByID(ctx, res.Reservation.CustomerID); err == nil {
			_ = qp.PublishNotification(ctx, notificationFor(queue.KindCancelled, h.Sched,
				cust, []model.Reservation{*res.Reservation}))
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation": viewOf(h.Sched, res.Reservation),
		"released":    res.Released,
	})
}

func reservationID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}
