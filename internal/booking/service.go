package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/schedule"
	"github.com/gambinos/reservation-book/internal/store"
)

// Config carries the booking policy knobs.  Values come from the
// restaurant-wide configuration loaded at startup.
type Config struct {
	MaxDurationSlots int // longest block a single reservation may span
	SeriesMaxDays    int // longest multi-day series accepted in one call
	BanThreshold     int // no-show events that trigger an automatic bar
	BanWindowDays    int // lookback window for the ban threshold
}

// Actor identifies who is performing an operation.  Staff bypass
// ownership checks; customers may only act on reservations whose linked
// customer email matches their own.
type Actor struct {
	Email string
	Staff bool
}

// Service is the booking transaction orchestrator.  All ledger-mutating
// operations run inside a single datastore transaction holding the
// affected dates' row locks, so a failure at any step leaves the
// datastore untouched.
type Service struct {
	store store.Store
	sched *schedule.Schedule
	cfg   Config

	// now is injectable for tests; "today" comparisons use its date part.
	now func() time.Time
}

// NewService wires the orchestrator.  All dependencies must be non-nil.
func NewService(st store.Store, sched *schedule.Schedule, cfg Config) *Service {
	if st == nil || sched == nil {
		panic("nil dependency passed to booking.NewService")
	}
	if cfg.MaxDurationSlots <= 0 {
		cfg.MaxDurationSlots = 4
	}
	if cfg.SeriesMaxDays <= 0 {
		cfg.SeriesMaxDays = 14
	}
	if cfg.BanThreshold <= 0 {
		cfg.BanThreshold = 3
	}
	if cfg.BanWindowDays <= 0 {
		cfg.BanWindowDays = 90
	}
	return &Service{store: st, sched: sched, cfg: cfg, now: time.Now}
}

// SetClock overrides the time source.  Intended for tests.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) today() string {
	return s.now().Format(model.DateLayout)
}

// BookRequest describes one booking call: a block of slots on a start
// date, optionally repeated over consecutive days as a series.
type BookRequest struct {
	Email     string
	FirstName string
	LastName  string
	Phone     string
	Mobile    string

	Date          string // YYYY-MM-DD
	StartSlot     string
	DurationSlots int
	Tables        int
	UntilClose    bool // book from StartSlot to the end of the day

	SeriesDays  int // 1 for a single booking
	SeriesTitle string
	SeriesNotes string

	PhoneBooking bool    // staff phone-in flow
	CreatedBy    *uint64 // staff user keying in the booking, if any
}

// Book creates N reservations (one per series day) atomically: either
// every day's capacity check passes and all rows commit, or nothing is
// written.  The customer is resolved or created by normalized email
// before any ledger lock is taken; barred customers are rejected up
// front.
func (s *Service) Book(ctx context.Context, req BookRequest) ([]model.Reservation, *model.Customer, error) {
	email := model.NormalizeEmail(req.Email)
	if email == "" {
		return nil, nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	startDate, err := time.Parse(model.DateLayout, req.Date)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, req.Date)
	}
	if req.Date < s.today() {
		return nil, nil, fmt.Errorf("%w: date is in the past", ErrInvalidInput)
	}
	if req.Tables < 1 {
		return nil, nil, fmt.Errorf("%w: at least one table is required", ErrInvalidInput)
	}
	duration := req.DurationSlots
	if duration < 1 {
		duration = 1
	}
	if duration > s.cfg.MaxDurationSlots {
		duration = s.cfg.MaxDurationSlots
	}
	seriesDays := req.SeriesDays
	if seriesDays < 1 {
		seriesDays = 1
	}
	if seriesDays > s.cfg.SeriesMaxDays {
		seriesDays = s.cfg.SeriesMaxDays
	}

	// Resolve the affected run before any lock; unknown start slots are
	// input errors, not coercions.
	slots, err := s.sched.SlotsFor(req.StartSlot, duration, req.UntilClose)
	if err != nil {
		return nil, nil, err
	}
	duration = len(slots) // truncation near closing time

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	customer, err := tx.GetOrCreateCustomer(ctx, &model.Customer{
		Email:     email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Mobile:    req.Mobile,
	})
	if err != nil {
		return nil, nil, err
	}
	if customer.Barred {
		return nil, nil, ErrBarred
	}
	if syncContact(customer, req) {
		if err := tx.UpdateCustomerContact(ctx, customer); err != nil {
			return nil, nil, err
		}
	}

	var seriesID *uint64
	if seriesDays > 1 {
		series := &model.ReservationSeries{
			CustomerID: customer.ID,
			CreatedBy:  req.CreatedBy,
			Title:      req.SeriesTitle,
			Notes:      req.SeriesNotes,
		}
		if err := tx.CreateSeries(ctx, series); err != nil {
			return nil, nil, err
		}
		seriesID = &series.ID
	}

	created := make([]model.Reservation, 0, seriesDays)
	for k := 0; k < seriesDays; k++ {
		date := startDate.AddDate(0, 0, k).Format(model.DateLayout)

		day, err := tx.GetOrCreateDayForUpdate(ctx, date)
		if err != nil {
			return nil, nil, err
		}
		if fail := day.CapacityCheck(slots, req.Tables); fail != nil {
			// Abort the whole series; rollback undoes earlier days.
			return nil, nil, &CapacityError{
				Date:      date,
				Slot:      fail.Slot,
				SlotLabel: s.sched.Label(fail.Slot),
				Remaining: fail.Remaining(),
			}
		}

		r := model.Reservation{
			CustomerID:     customer.ID,
			Date:           date,
			StartSlot:      req.StartSlot,
			DurationSlots:  duration,
			TablesRequired: req.Tables,
			Status:         model.StatusActive,
			SeriesID:       seriesID,
			PhoneBooking:   req.PhoneBooking,
			CreatedBy:      req.CreatedBy,
		}
		if err := tx.InsertReservation(ctx, &r); err != nil {
			return nil, nil, err
		}

		day.AdjustDemand(slots, req.Tables, +1)
		if err := tx.SaveDayDemand(ctx, day); err != nil {
			return nil, nil, err
		}
		created = append(created, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	committed = true
	return created, customer, nil
}

// syncContact copies non-empty contact fields from the request onto the
// customer record.  Returns whether anything changed.
func syncContact(c *model.Customer, req BookRequest) bool {
	changed := false
	for _, f := range []struct {
		dst *string
		src string
	}{
		{&c.FirstName, req.FirstName},
		{&c.LastName, req.LastName},
		{&c.Phone, req.Phone},
		{&c.Mobile, req.Mobile},
	} {
		if f.src != "" && *f.dst != f.src {
			*f.dst = f.src
			changed = true
		}
	}
	return changed
}

// CancelResult reports what a cancel call actually did, so repeated
// calls can be answered as no-op successes.
type CancelResult struct {
	Reservation *model.Reservation
	Released    bool // demand was released by this call
}

// Cancel releases the reservation's demand, writes the cancellation
// audit event and marks the row cancelled, exactly once.  Cancelling an
// already-terminal reservation is a no-op success.  Active reservations
// dated in the past cannot be cancelled; the sweep owns those.
func (s *Service) Cancel(ctx context.Context, id uint64, actor Actor) (*CancelResult, error) {
	if err := s.authorize(ctx, id, actor); err != nil {
		return nil, err
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	r, err := tx.GetReservationForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		// Idempotent: repeated cancels (or cancels after complete/no-show
		// raced in) succeed without touching the ledger again.
		return &CancelResult{Reservation: r, Released: false}, nil
	}
	if r.Date < s.today() {
		return nil, ErrPastDate
	}

	customer, err := s.store.GetCustomerByID(ctx, r.CustomerID)
	if err != nil {
		return nil, err
	}

	slots, err := s.sched.SlotsFor(r.StartSlot, r.DurationSlots, false)
	if err != nil {
		return nil, err
	}
	day, err := tx.GetOrCreateDayForUpdate(ctx, r.Date)
	if err != nil {
		return nil, err
	}
	day.AdjustDemand(slots, r.TablesRequired, -1)
	if err := tx.SaveDayDemand(ctx, day); err != nil {
		return nil, err
	}

	now := s.now()
	r.Status = model.StatusCancelled
	r.CancelledAt = &now
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return nil, err
	}

	createdEvent, err := tx.InsertCancellationEvent(ctx, &model.CancellationEvent{
		ReservationID:    r.ID,
		Date:             r.Date,
		StartSlot:        r.StartSlot,
		Tables:           r.TablesRequired,
		DurationSlots:    r.DurationSlots,
		CustomerEmail:    customer.Email,
		CancelledByStaff: actor.Staff,
	})
	if err != nil {
		return nil, err
	}
	if createdEvent {
		if err := tx.IncrementCancellationsCount(ctx, r.CustomerID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return &CancelResult{Reservation: r, Released: true}, nil
}

// EditRequest carries the new shape of a reservation.  Date, slot,
// duration and table count may all change.
type EditRequest struct {
	Date          string
	StartSlot     string
	DurationSlots int
	Tables        int
	UntilClose    bool
}

// Edit re-shapes an active reservation as one atomic unit: release the
// old demand, capacity-check the new block, persist the new fields and
// consume the new demand.  On a capacity failure the transaction rolls
// back, which restores the old demand; the datastore never holds the
// half-applied state.
func (s *Service) Edit(ctx context.Context, id uint64, req EditRequest, actor Actor) (*model.Reservation, error) {
	if err := s.authorize(ctx, id, actor); err != nil {
		return nil, err
	}
	if _, err := time.Parse(model.DateLayout, req.Date); err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, req.Date)
	}
	if req.Tables < 1 {
		return nil, fmt.Errorf("%w: at least one table is required", ErrInvalidInput)
	}
	duration := req.DurationSlots
	if duration < 1 {
		duration = 1
	}
	if duration > s.cfg.MaxDurationSlots {
		duration = s.cfg.MaxDurationSlots
	}
	newSlots, err := s.sched.SlotsFor(req.StartSlot, duration, req.UntilClose)
	if err != nil {
		return nil, err
	}
	duration = len(newSlots)
	if req.Date < s.today() {
		return nil, fmt.Errorf("%w: date is in the past", ErrInvalidInput)
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	r, err := tx.GetReservationForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.IsTerminal() {
		return nil, ErrNotActive
	}
	if r.Date < s.today() {
		return nil, ErrPastDate
	}

	oldSlots, err := s.sched.SlotsFor(r.StartSlot, r.DurationSlots, false)
	if err != nil {
		return nil, err
	}

	// Lock days in date order so concurrent cross-date edits cannot
	// deadlock against each other.
	oldDay, newDay, err := s.lockDays(ctx, tx, r.Date, req.Date)
	if err != nil {
		return nil, err
	}

	oldDay.AdjustDemand(oldSlots, r.TablesRequired, -1)
	if fail := newDay.CapacityCheck(newSlots, req.Tables); fail != nil {
		// Rollback restores the released demand.
		return nil, &CapacityError{
			Date:      req.Date,
			Slot:      fail.Slot,
			SlotLabel: s.sched.Label(fail.Slot),
			Remaining: fail.Remaining(),
		}
	}
	newDay.AdjustDemand(newSlots, req.Tables, +1)
	if err := tx.SaveDayDemand(ctx, oldDay); err != nil {
		return nil, err
	}
	if newDay != oldDay {
		if err := tx.SaveDayDemand(ctx, newDay); err != nil {
			return nil, err
		}
	}

	r.Date = req.Date
	r.StartSlot = req.StartSlot
	r.DurationSlots = duration
	r.TablesRequired = req.Tables
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return r, nil
}

// lockDays acquires the ledger locks for the old and new dates of an
// edit, in date order, returning the same entry twice when the date is
// unchanged so demand math observes its own release.
func (s *Service) lockDays(ctx context.Context, tx store.Tx, oldDate, newDate string) (oldDay, newDay *model.DayAvailability, err error) {
	if oldDate == newDate {
		day, err := tx.GetOrCreateDayForUpdate(ctx, oldDate)
		return day, day, err
	}
	first, second := oldDate, newDate
	if second < first {
		first, second = second, first
	}
	firstDay, err := tx.GetOrCreateDayForUpdate(ctx, first)
	if err != nil {
		return nil, nil, err
	}
	secondDay, err := tx.GetOrCreateDayForUpdate(ctx, second)
	if err != nil {
		return nil, nil, err
	}
	if first == oldDate {
		return firstDay, secondDay, nil
	}
	return secondDay, firstDay, nil
}

// Complete marks an active reservation completed.  Allowed only on the
// reservation date itself; the demand stays consumed because the guest
// showed up.
func (s *Service) Complete(ctx context.Context, id uint64) (*model.Reservation, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	r, err := tx.GetReservationForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case model.StatusActive:
	case model.StatusCompleted:
		return nil, ErrAlreadyDone
	case model.StatusNoShow:
		return nil, ErrAlreadyNoShow
	default:
		return nil, ErrNotActive
	}
	if r.Date != s.today() {
		return nil, ErrWrongDay
	}

	now := s.now()
	r.Status = model.StatusCompleted
	r.CompletedAt = &now
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return r, nil
}

// NoShowResult reports a no-show action: whether the audit event already
// existed and whether the ban policy newly barred the customer, so staff
// can be warned inline.
type NoShowResult struct {
	Reservation     *model.Reservation
	AlreadyRecorded bool
	NewlyBarred     bool
}

// MarkNoShow records a no-show for a past active reservation.  The
// audit event is idempotent per reservation, the customer's counter is
// incremented exactly once, and the ban policy runs only when a new
// event was recorded.  No ledger release happens: the slot was held
// and unused.
func (s *Service) MarkNoShow(ctx context.Context, id uint64, byStaff bool) (*NoShowResult, error) {
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	r, err := tx.GetReservationForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	switch r.Status {
	case model.StatusActive:
	case model.StatusNoShow:
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		committed = true
		return &NoShowResult{Reservation: r, AlreadyRecorded: true}, nil
	default:
		return nil, ErrNotActive
	}
	if r.Date >= s.today() {
		return nil, ErrNotPastDate
	}

	customer, err := s.store.GetCustomerByID(ctx, r.CustomerID)
	if err != nil {
		return nil, err
	}

	r.Status = model.StatusNoShow
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return nil, err
	}

	created, err := tx.InsertNoShowEvent(ctx, &model.NoShowEvent{
		ReservationID: r.ID,
		Date:          r.Date,
		StartSlot:     r.StartSlot,
		Tables:        r.TablesRequired,
		DurationSlots: r.DurationSlots,
		CustomerEmail: customer.Email,
		MarkedByStaff: byStaff,
	})
	if err != nil {
		return nil, err
	}

	res := &NoShowResult{Reservation: r, AlreadyRecorded: !created}
	if created {
		if err := tx.IncrementNoShowCount(ctx, r.CustomerID); err != nil {
			return nil, err
		}
		newlyBarred, err := s.applyBanIfNeeded(ctx, tx, customer)
		if err != nil {
			return nil, err
		}
		res.NewlyBarred = newlyBarred
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return res, nil
}

// applyBanIfNeeded bars the customer when their no-show events within
// the lookback window reach the configured threshold.  Returns whether
// a new bar was applied.
func (s *Service) applyBanIfNeeded(ctx context.Context, tx store.Tx, customer *model.Customer) (bool, error) {
	cutoff := s.now().AddDate(0, 0, -s.cfg.BanWindowDays)
	count, err := tx.CountNoShowsSince(ctx, customer.Email, cutoff)
	if err != nil {
		return false, err
	}
	if count < s.cfg.BanThreshold {
		return false, nil
	}
	return tx.SetCustomerBarred(ctx, customer.ID, true)
}

// SweepResult summarizes one no-show sweep run.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Marked  int `json:"marked_no_show"`
	Barred  int `json:"barred_customers"`
}

// SweepNoShows reconciles stale rows: every reservation dated before
// today that is still active becomes a no-show, with the same audit,
// counter and ban side effects as a staff action.  Each reservation is
// re-checked under its own lock, so running the sweep concurrently or
// repeatedly is safe and idempotent.
func (s *Service) SweepNoShows(ctx context.Context) (SweepResult, error) {
	today := s.today()
	stale, err := s.store.ListPastActive(ctx, today)
	if err != nil {
		return SweepResult{}, err
	}

	result := SweepResult{Scanned: len(stale)}
	for _, r := range stale {
		res, err := s.MarkNoShow(ctx, r.ID, false)
		if err != nil {
			// The row changed between scan and lock; skip it.
			if errors.Is(err, ErrNotActive) || errors.Is(err, ErrNotPastDate) || errors.Is(err, store.ErrNotFound) {
				continue
			}
			return result, err
		}
		if !res.AlreadyRecorded {
			result.Marked++
		}
		if res.NewlyBarred {
			result.Barred++
		}
	}
	return result, nil
}

// SetBarred is the staff bar/unbar toggle.  Idempotent: the returned
// flag reports whether the state actually changed.
func (s *Service) SetBarred(ctx context.Context, customerID uint64, barred bool) (bool, error) {
	if _, err := s.store.GetCustomerByID(ctx, customerID); err != nil {
		return false, err
	}
	tx, err := s.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	changed, err := tx.SetCustomerBarred(ctx, customerID, barred)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return changed, nil
}

// authorize enforces the ownership rule for customer-initiated actions:
// staff act on anything, customers only on reservations linked to their
// own email.
func (s *Service) authorize(ctx context.Context, reservationID uint64, actor Actor) error {
	if actor.Staff {
		return nil
	}
	r, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	customer, err := s.store.GetCustomerByID(ctx, r.CustomerID)
	if err != nil {
		return err
	}
	if customer.Email != model.NormalizeEmail(actor.Email) {
		return ErrForbidden
	}
	return nil
}

// SlotView is one cell of the public availability grid.
type SlotView struct {
	Key       string `json:"key"`
	Label     string `json:"label"`
	Capacity  int    `json:"capacity"`
	Remaining int    `json:"remaining"`
}

// DayView is one day of the public availability grid.
type DayView struct {
	Date  string     `json:"date"`
	Slots []SlotView `json:"slots"`
}

// Availability renders the next `days` days as a per-slot grid of
// capacity and remaining tables, applying default capacity to dates
// that have never been written.
func (s *Service) Availability(ctx context.Context, days int) ([]DayView, error) {
	if days < 1 {
		days = 1
	}
	start := s.now()
	out := make([]DayView, 0, days)
	for i := 0; i < days; i++ {
		date := start.AddDate(0, 0, i).Format(model.DateLayout)
		day, err := s.store.GetDay(ctx, date)
		if err != nil {
			return nil, err
		}
		view := DayView{Date: date}
		for _, key := range s.sched.Ordered() {
			sc := day.Slots[key]
			view.Slots = append(view.Slots, SlotView{
				Key:       key,
				Label:     s.sched.Label(key),
				Capacity:  sc.Capacity,
				Remaining: day.Remaining(key),
			})
		}
		out = append(out, view)
	}
	return out, nil
}
