// Package queue defines message payloads exchanged over the message broker.
package queue

// Notification kinds.
const (
	KindConfirmed = "confirmed"
	KindCancelled = "cancelled"
)

// NotificationEvent is published after a reservation is booked or
// cancelled.  It carries everything a downstream notifier needs to
// compose the guest's message without querying the primary database.
// For series bookings Dates holds every day of the series.
type NotificationEvent struct {
	Kind           string   `json:"kind"`
	ReservationIDs []uint64 `json:"reservation_ids"`
	RecipientEmail string   `json:"recipient_email"`
	RecipientName  string   `json:"recipient_name"`
	Dates          []string `json:"dates"`
	SlotLabel      string   `json:"slot_label"`
	Tables         int      `json:"tables"`
	OccurredAt     string   `json:"occurred_at"`
}
