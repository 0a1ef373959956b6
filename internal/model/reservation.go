package model

import "time"

// Reservation lifecycle statuses.  A reservation starts active and ends
// in exactly one terminal state; there are no transitions out of a
// terminal state.
const (
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
	StatusNoShow    = "no_show"
)

// DateLayout is the wire and storage format for reservation dates.
const DateLayout = "2006-01-02"

// Reservation is one committed booking: a block of one or more
// consecutive slots on a single date, for a number of tables.  While the
// reservation is active its TablesRequired is reflected in the ledger's
// demand for every slot in the block; leaving the active state releases
// that demand exactly once (cancel) or keeps it consumed (completed and
// no_show: the guest either showed up or genuinely held the slot).
//
// Fields:
//  ID             – primary key identifier.
//  CustomerID     – owning customer.
//  Date           – calendar date of the booking (ledger anchor), YYYY-MM-DD.
//  StartSlot      – first slot key of the block (e.g. "17_18").
//  DurationSlots  – how many consecutive slots the block spans.
//  TablesRequired – tables consumed in each spanned slot (>= 1).
//  Status         – lifecycle status, see constants above.
//  SeriesID       – optional grouping for multi-day series bookings.
//  PhoneBooking   – true when taken over the phone by staff.
//  CreatedBy      – staff user who keyed in the booking, if any.
type Reservation struct {
	ID             uint64     // reservations.id
	CustomerID     uint64     // reservations.customer_id
	Date           string     // reservations.reservation_date
	StartSlot      string     // reservations.start_slot
	DurationSlots  int        // reservations.duration_slots
	TablesRequired int        // reservations.tables_required
	Status         string     // reservations.status
	SeriesID       *uint64    // reservations.series_id (nullable)
	PhoneBooking   bool       // reservations.is_phone_booking
	CreatedBy      *uint64    // reservations.created_by (nullable staff user)
	CancelledAt    *time.Time // reservations.cancelled_at (nullable)
	CompletedAt    *time.Time // reservations.completed_at (nullable)
	CreatedAt      time.Time  // reservations.created_at
	UpdatedAt      time.Time  // reservations.updated_at
}

// IsTerminal reports whether the reservation has left the active state.
func (r *Reservation) IsTerminal() bool {
	return r.Status != StatusActive
}

// ReservationSeries groups reservations created together, e.g. the same
// time block booked for four consecutive conference days.  It is pure
// grouping metadata with no capacity semantics of its own.
type ReservationSeries struct {
	ID         uint64    // reservation_series.id
	CustomerID uint64    // reservation_series.customer_id
	CreatedBy  *uint64   // reservation_series.created_by (nullable)
	Title      string    // reservation_series.title
	Notes      string    // reservation_series.notes
	CreatedAt  time.Time // reservation_series.created_at
}
