package mysql

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/schedule"
	"github.com/gambinos/reservation-book/internal/store"
)

// Tx wraps *sql.Tx with the booking operations.  A Tx that touched a
// day's ledger holds that day's row locks until Commit or Rollback.
type Tx struct {
	tx    *sql.Tx
	sched *schedule.Schedule

	defaultCapacity int
}

func (t *Tx) Commit() error   { return t.tx.Commit() }
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// GetOrCreateDayForUpdate materializes the date's ledger rows at default
// capacity, then locks the whole day exclusively.  INSERT IGNORE keeps
// the seeding idempotent under concurrency; the losing transaction just
// blocks on the FOR UPDATE until the winner commits.
func (t *Tx) GetOrCreateDayForUpdate(ctx context.Context, date string) (*model.DayAvailability, error) {
	for _, key := range t.sched.Ordered() {
		_, err := t.tx.ExecContext(ctx,
			`INSERT IGNORE INTO slot_availability (calendar_date, slot_key, capacity, demand)
			 VALUES (?, ?, ?, 0)`, date, key, t.defaultCapacity)
		if err != nil {
			return nil, err
		}
	}
	rows, err := t.tx.QueryContext(ctx,
		`SELECT slot_key, capacity, demand FROM slot_availability
		 WHERE calendar_date = ? FOR UPDATE`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	day := &model.DayAvailability{Date: date, Slots: make(map[string]model.SlotCounters)}
	for rows.Next() {
		var (
			key string
			sc  model.SlotCounters
		)
		if err := rows.Scan(&key, &sc.Capacity, &sc.Demand); err != nil {
			return nil, err
		}
		sc.Capacity = capacityOrDefault(sc.Capacity, t.defaultCapacity)
		day.Slots[key] = sc
	}
	return day, rows.Err()
}

// SaveDayDemand writes back the demand counters of a locked day.
func (t *Tx) SaveDayDemand(ctx context.Context, day *model.DayAvailability) error {
	for key, sc := range day.Slots {
		_, err := t.tx.ExecContext(ctx,
			`UPDATE slot_availability SET demand = ? WHERE calendar_date = ? AND slot_key = ?`,
			sc.Demand, day.Date, key)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetOrCreateCustomer resolves a customer by normalized email, creating
// the row from the template on first contact.  A duplicate-key race
// falls back to re-reading the winner's row.
func (t *Tx) GetOrCreateCustomer(ctx context.Context, template *model.Customer) (*model.Customer, error) {
	email := model.NormalizeEmail(template.Email)
	c, err := t.customerByEmail(ctx, email)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO customers (first_name, last_name, email, phone, mobile, notes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		template.FirstName, template.LastName, email, template.Phone, template.Mobile, template.Notes)
	if err != nil {
		if isDuplicate(err) {
			return t.customerByEmail(ctx, email)
		}
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return t.customerByID(ctx, uint64(id))
}

func (t *Tx) customerByEmail(ctx context.Context, email string) (*model.Customer, error) {
	c, err := scanCustomer(t.tx.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE email = ? LIMIT 1`, email))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

func (t *Tx) customerByID(ctx context.Context, id uint64) (*model.Customer, error) {
	c, err := scanCustomer(t.tx.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ? LIMIT 1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return c, nil
}

// UpdateCustomerContact syncs name and phone fields onto an existing row.
func (t *Tx) UpdateCustomerContact(ctx context.Context, c *model.Customer) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE customers SET first_name = ?, last_name = ?, phone = ?, mobile = ? WHERE id = ?`,
		c.FirstName, c.LastName, c.Phone, c.Mobile, c.ID)
	return err
}

func (t *Tx) IncrementNoShowCount(ctx context.Context, customerID uint64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE customers SET no_show_count = no_show_count + 1 WHERE id = ?`, customerID)
	return err
}

func (t *Tx) IncrementCancellationsCount(ctx context.Context, customerID uint64) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE customers SET cancellations_count = cancellations_count + 1 WHERE id = ?`, customerID)
	return err
}

// SetCustomerBarred flips the barred flag.  The affected-row count tells
// us whether the value actually changed, which keeps bar/unbar and the
// automatic ban idempotent.
func (t *Tx) SetCustomerBarred(ctx context.Context, customerID uint64, barred bool) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE customers SET barred = ? WHERE id = ? AND barred <> ?`,
		barred, customerID, barred)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// CountNoShowsSince counts a customer's no-show events recorded at or
// after the cutoff.  Drives the ban policy's lookback window.
func (t *Tx) CountNoShowsSince(ctx context.Context, email string, cutoff time.Time) (int, error) {
	email = model.NormalizeEmail(email)
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM no_show_events WHERE customer_email = ? AND created_at >= ?`,
		email, cutoff.UTC()).Scan(&n)
	return n, err
}

// GetReservationForUpdate loads and locks a single reservation row.
func (t *Tx) GetReservationForUpdate(ctx context.Context, id uint64) (*model.Reservation, error) {
	r, err := scanReservation(t.tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return r, nil
}

func (t *Tx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	var seriesID interface{}
	if r.SeriesID != nil {
		seriesID = *r.SeriesID
	}
	var createdBy interface{}
	if r.CreatedBy != nil {
		createdBy = *r.CreatedBy
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO reservations
		   (customer_id, reservation_date, start_slot, duration_slots, tables_required,
		    status, series_id, is_phone_booking, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CustomerID, r.Date, r.StartSlot, r.DurationSlots, r.TablesRequired,
		r.Status, seriesID, r.PhoneBooking, createdBy)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = uint64(id)
	return nil
}

func (t *Tx) UpdateReservation(ctx context.Context, r *model.Reservation) error {
	var cancelledAt, completedAt interface{}
	if r.CancelledAt != nil {
		cancelledAt = r.CancelledAt.UTC()
	}
	if r.CompletedAt != nil {
		completedAt = r.CompletedAt.UTC()
	}
	_, err := t.tx.ExecContext(ctx,
		`UPDATE reservations
		 SET reservation_date = ?, start_slot = ?, duration_slots = ?, tables_required = ?,
		     status = ?, cancelled_at = ?, completed_at = ?
		 WHERE id = ?`,
		r.Date, r.StartSlot, r.DurationSlots, r.TablesRequired,
		r.Status, cancelledAt, completedAt, r.ID)
	return err
}

func (t *Tx) CreateSeries(ctx context.Context, s *model.ReservationSeries) error {
	var createdBy interface{}
	if s.CreatedBy != nil {
		createdBy = *s.CreatedBy
	}
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO reservation_series (customer_id, created_by, title, notes) VALUES (?, ?, ?, ?)`,
		s.CustomerID, createdBy, s.Title, s.Notes)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// InsertCancellationEvent writes the audit row.  reservation_id carries
// a unique index, so a duplicate insert is the idempotent signal that
// this cancellation was already recorded.
func (t *Tx) InsertCancellationEvent(ctx context.Context, ev *model.CancellationEvent) (bool, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO cancellation_events
		   (reservation_id, reservation_date, start_slot, tables_count, duration_slots,
		    customer_email, by_staff)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ReservationID, ev.Date, ev.StartSlot, ev.Tables, ev.DurationSlots,
		model.NormalizeEmail(ev.CustomerEmail), ev.CancelledByStaff)
	if err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InsertNoShowEvent mirrors InsertCancellationEvent for no-shows.
func (t *Tx) InsertNoShowEvent(ctx context.Context, ev *model.NoShowEvent) (bool, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO no_show_events
		   (reservation_id, reservation_date, start_slot, tables_count, duration_slots,
		    customer_email, by_staff)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ReservationID, ev.Date, ev.StartSlot, ev.Tables, ev.DurationSlots,
		model.NormalizeEmail(ev.CustomerEmail), ev.MarkedByStaff)
	if err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
