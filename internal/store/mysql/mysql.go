// Package mysql implements the store interfaces over MySQL.  Demand
// counters live in the slot_availability table keyed by (calendar_date,
// slot_key); GetOrCreateDayForUpdate materializes a date's rows lazily
// and locks them with SELECT ... FOR UPDATE, which is what serializes
// concurrent bookings for the same date.  All timestamp columns are
// stored in UTC.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/schedule"
	"github.com/gambinos/reservation-book/internal/store"
)

// Store is the production store.Store backed by *sql.DB.
type Store struct {
	db    *sql.DB
	sched *schedule.Schedule

	defaultCapacity int
}

// New binds a Store to the database.  defaultCapacity seeds the
// slot_availability rows of dates that have never been booked.
func New(db *sql.DB, sched *schedule.Schedule, defaultCapacity int) *Store {
	return &Store{db: db, sched: sched, defaultCapacity: defaultCapacity}
}

// capacityOrDefault resolves a stored capacity of 0 to the configured
// default.  A zero in the table means "use the restaurant-wide
// setting", so the resolution happens on every read.
func capacityOrDefault(stored, def int) int {
	if stored == 0 {
		return def
	}
	return stored
}

// isDuplicate reports whether err is a MySQL duplicate-key error (1062).
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "1062")
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// Begin opens a transaction.  Locks are taken lazily by the Tx methods.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx, sched: s.sched, defaultCapacity: s.defaultCapacity}, nil
}

const customerColumns = `id, first_name, last_name, email, phone, mobile, barred, notes,
	no_show_count, cancellations_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCustomer(row rowScanner) (*model.Customer, error) {
	var c model.Customer
	err := row.Scan(
		&c.ID, &c.FirstName, &c.LastName, &c.Email, &c.Phone, &c.Mobile,
		&c.Barred, &c.Notes, &c.NoShowCount, &c.CancellationsCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (*model.Customer, error) {
	email = model.NormalizeEmail(email)
	c, err := scanCustomer(s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = ? LIMIT 1`, email))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (s *Store) GetCustomerByID(ctx context.Context, id uint64) (*model.Customer, error) {
	c, err := scanCustomer(s.db.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ? LIMIT 1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// ListCustomers returns every customer, most recently updated first.
func (s *Store) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DATE_FORMAT keeps reservation_date a plain string; the driver's
// parseTime option would otherwise hand back a time.Time.
const reservationColumns = `id, customer_id, DATE_FORMAT(reservation_date, '%Y-%m-%d'), start_slot, duration_slots,
	tables_required, status, series_id, is_phone_booking, created_by,
	cancelled_at, completed_at, created_at, updated_at`

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		r         model.Reservation
		seriesID  sql.NullInt64
		createdBy sql.NullInt64
		cancelled sql.NullTime
		completed sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.CustomerID, &r.Date, &r.StartSlot, &r.DurationSlots,
		&r.TablesRequired, &r.Status, &seriesID, &r.PhoneBooking, &createdBy,
		&cancelled, &completed, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if seriesID.Valid {
		v := uint64(seriesID.Int64)
		r.SeriesID = &v
	}
	if createdBy.Valid {
		v := uint64(createdBy.Int64)
		r.CreatedBy = &v
	}
	if cancelled.Valid {
		t := cancelled.Time
		r.CancelledAt = &t
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return &r, nil
}

func (s *Store) GetReservation(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, err := scanReservation(s.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ? LIMIT 1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (s *Store) listReservations(ctx context.Context, query string, args ...interface{}) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// ListReservationsByEmail returns a customer's reservations, newest date
// first so the upcoming ones lead.
func (s *Store) ListReservationsByEmail(ctx context.Context, email string) ([]model.Reservation, error) {
	email = model.NormalizeEmail(email)
	return s.listReservations(ctx,
		`SELECT r.id, r.customer_id, DATE_FORMAT(r.reservation_date, '%Y-%m-%d'), r.start_slot, r.duration_slots,
		        r.tables_required, r.status, r.series_id, r.is_phone_booking, r.created_by,
		        r.cancelled_at, r.completed_at, r.created_at, r.updated_at
		 FROM reservations r
		 JOIN customers c ON c.id = r.customer_id
		 WHERE c.email = ?
		 ORDER BY r.reservation_date DESC, r.start_slot, r.id`, email)
}

// ListReservationsByDate returns every reservation anchored on a date,
// ordered by start slot for the day sheet.
func (s *Store) ListReservationsByDate(ctx context.Context, date string) ([]model.Reservation, error) {
	return s.listReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE reservation_date = ?
		 ORDER BY start_slot, id`, date)
}

// ListPastActive feeds the no-show sweep: active rows dated strictly
// before the given day, oldest first.
func (s *Store) ListPastActive(ctx context.Context, before string) ([]model.Reservation, error) {
	return s.listReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status = ? AND reservation_date < ?
		 ORDER BY reservation_date, id`, model.StatusActive, before)
}

// GetDay reads the availability ledger for a date without creating or
// locking rows.  Slots with no row yet come back at default capacity
// with zero demand.
func (s *Store) GetDay(ctx context.Context, date string) (*model.DayAvailability, error) {
	day := &model.DayAvailability{Date: date, Slots: make(map[string]model.SlotCounters)}
	for _, key := range s.sched.Ordered() {
		day.Slots[key] = model.SlotCounters{Capacity: s.defaultCapacity}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT slot_key, capacity, demand FROM slot_availability WHERE calendar_date = ?`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			sc  model.SlotCounters
		)
		if err := rows.Scan(&key, &sc.Capacity, &sc.Demand); err != nil {
			return nil, err
		}
		sc.Capacity = capacityOrDefault(sc.Capacity, s.defaultCapacity)
		day.Slots[key] = sc
	}
	return day, rows.Err()
}

func (s *Store) ListCancellationEvents(ctx context.Context, email string) ([]model.CancellationEvent, error) {
	email = model.NormalizeEmail(email)
	rows, err := s.db.QueryContext(ctx,
		`SELECT reservation_id, DATE_FORMAT(reservation_date, '%Y-%m-%d'), start_slot, tables_count, duration_slots,
		        customer_email, by_staff, created_at
		 FROM cancellation_events WHERE customer_email = ? ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.CancellationEvent
	for rows.Next() {
		var ev model.CancellationEvent
		if err := rows.Scan(&ev.ReservationID, &ev.Date, &ev.StartSlot, &ev.Tables,
			&ev.DurationSlots, &ev.CustomerEmail, &ev.CancelledByStaff, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) ListNoShowEvents(ctx context.Context, email string) ([]model.NoShowEvent, error) {
	email = model.NormalizeEmail(email)
	rows, err := s.db.QueryContext(ctx,
		`SELECT reservation_id, DATE_FORMAT(reservation_date, '%Y-%m-%d'), start_slot, tables_count, duration_slots,
		        customer_email, by_staff, created_at
		 FROM no_show_events WHERE customer_email = ? ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.NoShowEvent
	for rows.Next() {
		var ev model.NoShowEvent
		if err := rows.Scan(&ev.ReservationID, &ev.Date, &ev.StartSlot, &ev.Tables,
			&ev.DurationSlots, &ev.CustomerEmail, &ev.MarkedByStaff, &ev.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
