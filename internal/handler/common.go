package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/gambinos/reservation-book/internal/booking"
	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/queue"
	"github.com/gambinos/reservation-book/internal/schedule"
	"github.com/gambinos/reservation-book/internal/store"
)

// actorFrom builds the booking actor from the JWT claims injected by
// the auth middleware.
func actorFrom(c echo.Context) booking.Actor {
	role, _ := c.Get("role").(string)
	email, _ := c.Get("email").(string)
	return booking.Actor{Email: email, Staff: role == model.RoleStaff}
}

// writeBookingError maps domain errors onto status codes.  Capacity and
// lifecycle conflicts are 409: the request was well-formed, the world
// just disagrees.
func writeBookingError(c echo.Context, err error) error {
	var capErr *booking.CapacityError
	switch {
	case errors.As(err, &capErr):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":     capErr.Error(),
			"date":      capErr.Date,
			"slot":      capErr.Slot,
			"remaining": capErr.Remaining,
		})
	case errors.Is(err, booking.ErrBarred),
		errors.Is(err, booking.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, booking.ErrInvalidInput),
		errors.Is(err, schedule.ErrUnknownSlot):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, booking.ErrNotActive),
		errors.Is(err, booking.ErrPastDate),
		errors.Is(err, booking.ErrNotPastDate),
		errors.Is(err, booking.ErrWrongDay),
		errors.Is(err, booking.ErrAlreadyNoShow),
		errors.Is(err, booking.ErrAlreadyDone):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	}
	c.Logger().Errorf("booking: %v", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// reservationView is the wire shape of a reservation.
type reservationView struct {
	ID           uint64  `json:"id"`
	CustomerID   uint64  `json:"customer_id"`
	Date         string  `json:"date"`
	StartSlot    string  `json:"start_slot"`
	Duration     int     `json:"duration_slots"`
	Tables       int     `json:"tables"`
	Status       string  `json:"status"`
	TimeLabel    string  `json:"time_label"`
	SeriesID     *uint64 `json:"series_id,omitempty"`
	PhoneBooking bool    `json:"phone_booking,omitempty"`
}

func viewOf(sched *schedule.Schedule, r *model.Reservation) reservationView {
	return reservationView{
		ID:           r.ID,
		CustomerID:   r.CustomerID,
		Date:         r.Date,
		StartSlot:    r.StartSlot,
		Duration:     r.DurationSlots,
		Tables:       r.TablesRequired,
		Status:       r.Status,
		TimeLabel:    sched.SpanLabel(r.StartSlot, r.DurationSlots),
		SeriesID:     r.SeriesID,
		PhoneBooking: r.PhoneBooking,
	}
}

func viewsOf(sched *schedule.Schedule, rs []model.Reservation) []reservationView {
	out := make([]reservationView, 0, len(rs))
	for i := range rs {
		out = append(out, viewOf(sched, &rs[i]))
	}
	return out
}

// customerView is the wire shape of a customer record.
type customerView struct {
	ID            uint64 `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name,omitempty"`
	LastName      string `json:"last_name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Mobile        string `json:"mobile,omitempty"`
	NoShows       uint32 `json:"no_show_count"`
	Cancellations uint32 `json:"cancellation_count"`
	Barred        bool   `json:"barred"`
}

func customerViewOf(cu *model.Customer) customerView {
	return customerView{
		ID:            cu.ID,
		Email:         cu.Email,
		FirstName:     cu.FirstName,
		LastName:      cu.LastName,
		Phone:         cu.Phone,
		Mobile:        cu.Mobile,
		NoShows:       cu.NoShowCount,
		Cancellations: cu.CancellationsCount,
		Barred:        cu.Barred,
	}
}

func customerViewsOf(cs []model.Customer) []customerView {
	out := make([]customerView, 0, len(cs))
	for i := range cs {
		out = append(out, customerViewOf(&cs[i]))
	}
	return out
}

// eventView renders both cancellation and no-show audit rows.
type eventView struct {
	ReservationID uint64 `json:"reservation_id"`
	Date          string `json:"date"`
	StartSlot     string `json:"start_slot"`
	Tables        int    `json:"tables"`
	Duration      int    `json:"duration_slots"`
	ByStaff       bool   `json:"by_staff"`
	RecordedAt    string `json:"recorded_at"`
}

func cancellationViews(evs []model.CancellationEvent) []eventView {
	out := make([]eventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventView{
			ReservationID: ev.ReservationID,
			Date:          ev.Date,
			StartSlot:     ev.StartSlot,
			Tables:        ev.Tables,
			Duration:      ev.DurationSlots,
			ByStaff:       ev.CancelledByStaff,
			RecordedAt:    ev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func noShowViews(evs []model.NoShowEvent) []eventView {
	out := make([]eventView, 0, len(evs))
	for _, ev := range evs {
		out = append(out, eventView{
			ReservationID: ev.ReservationID,
			Date:          ev.Date,
			StartSlot:     ev.StartSlot,
			Tables:        ev.Tables,
			Duration:      ev.DurationSlots,
			ByStaff:       ev.MarkedByStaff,
			RecordedAt:    ev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

// notificationFor assembles the broker event for a booking or a cancel.
func notificationFor(kind string, sched *schedule.Schedule, cust *model.Customer, rs []model.Reservation) queue.NotificationEvent {
	ev := queue.NotificationEvent{
		Kind:           kind,
		RecipientEmail: cust.Email,
		RecipientName:  cust.DisplayName(),
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}
	for i := range rs {
		ev.ReservationIDs = append(ev.ReservationIDs, rs[i].ID)
		ev.Dates = append(ev.Dates, rs[i].Date)
	}
	if len(rs) > 0 {
		ev.SlotLabel = sched.SpanLabel(rs[0].StartSlot, rs[0].DurationSlots)
		ev.Tables = rs[0].TablesRequired
	}
	return ev
}
