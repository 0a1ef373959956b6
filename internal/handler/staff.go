package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gambinos/reservation-book/internal/booking"
	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/queue"
	"github.com/gambinos/reservation-book/internal/schedule"
	qp "github.com/gambinos/reservation-book/internal/service"
	"github.com/gambinos/reservation-book/internal/store"
)

// StaffHandler serves the front-desk endpoints: phone bookings, the day
// sheet, lifecycle actions and customer management.  All routes behind
// it require the STAFF role.
type StaffHandler struct {
	Svc   *booking.Service
	Store store.Store
	Sched *schedule.Schedule
}

func NewStaffHandler(svc *booking.Service, st store.Store, sched *schedule.Schedule) *StaffHandler {
	return &StaffHandler{Svc: svc, Store: st, Sched: sched}
}

type phoneBookReq struct {
	Email     string `json:"email"`
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

// PhoneBooking books on behalf of a guest who called in.  The target
// customer is identified by the email in the body, and the reservation
// is stamped with the staff user who keyed it in.
func (h *StaffHandler) PhoneBooking(c echo.Context) error {
	var req phoneBookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	created, cust, err := h.Svc.Book(c.Request().Context(), booking.BookRequest{
		Email:         req.Email,
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
		PhoneBooking:  true,
		CreatedBy:     staffUserID(c),
	})
	if err != nil {
		return writeBookingError(c, err)
	}

	_ = qp.PublishNotification(c.Request().Context(),
		notificationFor(queue.KindConfirmed, h.Sched, cust, created))

	return c.JSON(http.StatusCreated, echo.Map{
		"reservations": viewsOf(h.Sched, created),
		"customer":     customerViewOf(cust),
	})
}

// DaySheet lists every reservation anchored on a date, the front desk's
// working view for an evening.
func (h *StaffHandler) DaySheet(c echo.Context) error {
	date := c.Param("date")
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	rs, err := h.Store.ListReservationsByDate(c.Request().Context(), date)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":         date,
		"reservations": viewsOf(h.Sched, rs),
	})
}

// Complete marks a reservation completed (the guests showed up).
func (h *StaffHandler) Complete(c echo.Context) error {
	id, err := reservationID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	r, err := h.Svc.Complete(c.Request().Context(), id)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, viewOf(h.Sched, r))
}

// NoShow records a no-show.  The response flags a freshly triggered bar
// so the front desk can tell the caller on the spot.
func (h *StaffHandler) NoShow(c echo.Context) error {
	id, err := reservationID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	res, err := h.Svc.MarkNoShow(c.Request().Context(), id, true)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"reservation":      viewOf(h.Sched, res.Reservation),
		"already_recorded": res.AlreadyRecorded,
		"newly_barred":     res.NewlyBarred,
	})
}

// Sweep reconciles stale rows: every active reservation dated before
// today becomes a no-show.
func (h *StaffHandler) Sweep(c echo.Context) error {
	res, err := h.Svc.SweepNoShows(c.Request().Context())
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Customers lists the customer book.
func (h *StaffHandler) Customers(c echo.Context) error {
	cs, err := h.Store.ListCustomers(c.Request().Context())
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"customers": customerViewsOf(cs)})
}

// Bar blocks a customer from new bookings; Unbar lifts the block.  Both
// are idempotent and report whether anything changed.
func (h *StaffHandler) Bar(c echo.Context) error   { return h.setBarred(c, true) }
func (h *StaffHandler) Unbar(c echo.Context) error { return h.setBarred(c, false) }

func (h *StaffHandler) setBarred(c echo.Context, barred bool) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	changed, err := h.Svc.SetBarred(c.Request().Context(), id, barred)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"barred": barred, "changed": changed})
}

// History returns a customer's record: profile, counters and the
// cancellation / no-show audit trails.
func (h *StaffHandler) History(c echo.Context) error {
	email := model.NormalizeEmail(c.QueryParam("email"))
	if email == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email required"})
	}
	ctx := c.Request().Context()
	cust, err := h.Store.GetCustomerByEmail(ctx, email)
	if err != nil {
		return writeBookingError(c, err)
	}
	rs, err := h.Store.ListReservationsByEmail(ctx, email)
	if err != nil {
		return writeBookingError(c, err)
	}
	cancels, err := h.Store.ListCancellationEvents(ctx, email)
	if err != nil {
		return writeBookingError(c, err)
	}
	noShows, err := h.Store.ListNoShowEvents(ctx, email)
	if err != nil {
		return writeBookingError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"customer":      customerViewOf(cust),
		"reservations":  viewsOf(h.Sched, rs),
		"cancellations": cancellationViews(cancels),
		"no_shows":      noShowViews(noShows),
	})
}

// staffUserID pulls the acting staff user's ID from the JWT claims for
// the created_by stamp.  nil when the claim is missing or malformed.
func staffUserID(c echo.Context) *uint64 {
	switch v := c.Get("user_id").(type) {
	case float64:
		id := uint64(v)
		return &id
	case uint64:
		id := v
		return &id
	case string:
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			return &id
		}
	}
	return nil
}
