package model

import (
	"strings"
	"time"
)

// Customer is the guest record keyed by normalized email.  Email is the
// unique join key across the whole system: reservations, cancellation
// events and no-show events all attach to a customer through it.  A
// customer row is looked up or created by email before any reservation
// is written, and is never deleted.
//
// Fields:
//  ID                 – primary key identifier.
//  FirstName/LastName – guest name, synced from booking forms.
//  Email              – unique, lowercased and trimmed.
//  Phone/Mobile       – contact numbers.
//  Barred             – no new bookings allowed when set.
//  Notes              – free-text staff notes (VIP, allergy, critic, ...).
//  NoShowCount        – lifetime count of recorded no-shows.
//  CancellationsCount – lifetime count of recorded cancellations.
type Customer struct {
	ID                 uint64    // customers.id
	FirstName          string    // customers.first_name
	LastName           string    // customers.last_name
	Email              string    // customers.email
	Phone              string    // customers.phone
	Mobile             string    // customers.mobile
	Barred             bool      // customers.barred
	Notes              string    // customers.notes
	NoShowCount        uint32    // customers.no_show_count
	CancellationsCount uint32    // customers.cancellations_count
	CreatedAt          time.Time // customers.created_at
	UpdatedAt          time.Time // customers.updated_at
}

// NormalizeEmail lowercases and trims an email address.  Every lookup
// and insert goes through this so the unique key stays consistent.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// DisplayName returns the guest's name for messaging, falling back to
// the email when no name is on file.
func (c *Customer) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
	if name != "" {
		return name
	}
	return c.Email
}
