package model

import "time"

// CancellationEvent is an append-only audit row written exactly once per
// cancelled reservation.  It snapshots everything needed for reporting
// at the moment of cancellation so aggregate counts survive independent
// of the reservation row.  ReservationID is unique: repeated cancel
// calls cannot record a duplicate.
type CancellationEvent struct {
	ID               uint64    // cancellation_events.id
	ReservationID    uint64    // cancellation_events.reservation_id (unique)
	Date             string    // cancellation_events.reservation_date
	StartSlot        string    // cancellation_events.start_slot
	Tables           int       // cancellation_events.tables_count
	DurationSlots    int       // cancellation_events.duration_slots
	CustomerEmail    string    // cancellation_events.customer_email (normalized)
	CancelledByStaff bool      // cancellation_events.by_staff
	CreatedAt        time.Time // cancellation_events.created_at
}

// NoShowEvent is the no-show counterpart: one audit row per reservation
// marked no_show, whether by staff action or by the sweep.  The ban
// policy counts these rows within its lookback window.
type NoShowEvent struct {
	ID            uint64    // no_show_events.id
	ReservationID uint64    // no_show_events.reservation_id (unique)
	Date          string    // no_show_events.reservation_date
	StartSlot     string    // no_show_events.start_slot
	Tables        int       // no_show_events.tables_count
	DurationSlots int       // no_show_events.duration_slots
	CustomerEmail string    // no_show_events.customer_email (normalized)
	MarkedByStaff bool      // no_show_events.by_staff (false = sweep)
	CreatedAt     time.Time // no_show_events.created_at
}
