// Package store defines the datastore boundary for the reservation
// system.  The booking orchestrator and the HTTP handlers depend only on
// these interfaces; internal/store/mysql provides the production
// implementation.  Every operation that reads-then-writes a day's demand
// counters runs inside a Tx holding an exclusive lock on that day's
// ledger rows, which is what serializes concurrent bookings for the same
// date.
package store

import (
	"context"
	"time"

	"github.com/gambinos/reservation-book/internal/model"
)

// Store is the read side plus the transaction factory.  Reads outside a
// Tx see committed state only and take no locks.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	GetCustomerByEmail(ctx context.Context, email string) (*model.Customer, error)
	GetCustomerByID(ctx context.Context, id uint64) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)

	GetReservation(ctx context.Context, id uint64) (*model.Reservation, error)
	ListReservationsByEmail(ctx context.Context, email string) ([]model.Reservation, error)
	ListReservationsByDate(ctx context.Context, date string) ([]model.Reservation, error)
	// ListPastActive returns reservations dated before the given day whose
	// status is still active, oldest first.  The sweep re-checks each row
	// under its own lock before acting on it.
	ListPastActive(ctx context.Context, before string) ([]model.Reservation, error)

	// GetDay returns the ledger entry for a date with default capacity
	// applied, without creating or locking anything.  A date that has
	// never been touched comes back with zero demand everywhere.
	GetDay(ctx context.Context, date string) (*model.DayAvailability, error)

	ListCancellationEvents(ctx context.Context, email string) ([]model.CancellationEvent, error)
	ListNoShowEvents(ctx context.Context, email string) ([]model.NoShowEvent, error)
}

// Tx is one atomic unit of booking work.  Implementations must guarantee
// that GetOrCreateDayForUpdate blocks other transactions on the same
// date until Commit or Rollback, and that Rollback after a failed step
// leaves the datastore exactly as it was before Begin.
type Tx interface {
	// GetOrCreateDayForUpdate lazily creates the date's ledger rows with
	// the configured default capacity, then locks them exclusively.
	GetOrCreateDayForUpdate(ctx context.Context, date string) (*model.DayAvailability, error)
	// SaveDayDemand persists the demand counters of a previously locked day.
	SaveDayDemand(ctx context.Context, day *model.DayAvailability) error

	// GetOrCreateCustomer resolves a customer by normalized email,
	// inserting a new row from the template when none exists.
	GetOrCreateCustomer(ctx context.Context, template *model.Customer) (*model.Customer, error)
	// UpdateCustomerContact syncs name/phone fields onto an existing row.
	UpdateCustomerContact(ctx context.Context, c *model.Customer) error
	IncrementNoShowCount(ctx context.Context, customerID uint64) error
	IncrementCancellationsCount(ctx context.Context, customerID uint64) error
	// SetCustomerBarred flips the barred flag; reports whether the value
	// actually changed so callers can message idempotent no-ops.
	SetCustomerBarred(ctx context.Context, customerID uint64, barred bool) (bool, error)
	// CountNoShowsSince counts no-show events for an email recorded at or
	// after the cutoff.  Drives the ban policy's lookback window.
	CountNoShowsSince(ctx context.Context, email string, cutoff time.Time) (int, error)

	GetReservationForUpdate(ctx context.Context, id uint64) (*model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
	UpdateReservation(ctx context.Context, r *model.Reservation) error
	CreateSeries(ctx context.Context, s *model.ReservationSeries) error

	// Insert*Event write the append-only audit rows.  They are idempotent
	// on reservation ID and report whether a new row was created, which
	// gates the exactly-once counter increments and ban checks.
	InsertCancellationEvent(ctx context.Context, ev *model.CancellationEvent) (bool, error)
	InsertNoShowEvent(ctx context.Context, ev *model.NoShowEvent) (bool, error)

	Commit() error
	Rollback() error
}

// UserStore persists authentication accounts.
type UserStore interface {
	CreateUser(ctx context.Context, email, passwordHash, role string) (uint64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id uint64) (*model.User, error)
}

// TokenStore persists refresh tokens (hashes only).
type TokenStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}
