package booking

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/schedule"
	"github.com/gambinos/reservation-book/internal/store"
)

// memStore is an in-memory store.Store for orchestrator tests.  A
// transaction holds the store-wide mutex from Begin to Commit/Rollback,
// which stands in for the per-date row locks of the SQL implementation,
// and Rollback restores a snapshot taken at Begin so failed flows leave
// no trace.
type memStore struct {
	mu    sync.Mutex
	sched *schedule.Schedule

	defaultCapacity int

	customers    map[uint64]*model.Customer
	byEmail      map[string]uint64
	reservations map[uint64]*model.Reservation
	series       map[uint64]*model.ReservationSeries
	days         map[string]map[string]model.SlotCounters
	cancelEvents map[uint64]*model.CancellationEvent
	noShowEvents map[uint64]*model.NoShowEvent

	nextCustomerID    uint64
	nextReservationID uint64
	nextSeriesID      uint64
}

func newMemStore(sched *schedule.Schedule) *memStore {
	return &memStore{
		sched:           sched,
		defaultCapacity: 10,
		customers:       make(map[uint64]*model.Customer),
		byEmail:         make(map[string]uint64),
		reservations:    make(map[uint64]*model.Reservation),
		series:          make(map[uint64]*model.ReservationSeries),
		days:            make(map[string]map[string]model.SlotCounters),
		cancelEvents:    make(map[uint64]*model.CancellationEvent),
		noShowEvents:    make(map[uint64]*model.NoShowEvent),
	}
}

type memSnapshot struct {
	customers    map[uint64]*model.Customer
	byEmail      map[string]uint64
	reservations map[uint64]*model.Reservation
	series       map[uint64]*model.ReservationSeries
	days         map[string]map[string]model.SlotCounters
	cancelEvents map[uint64]*model.CancellationEvent
	noShowEvents map[uint64]*model.NoShowEvent

	nextCustomerID    uint64
	nextReservationID uint64
	nextSeriesID      uint64
}

func (ms *memStore) snapshot() *memSnapshot {
	snap := &memSnapshot{
		customers:         make(map[uint64]*model.Customer, len(ms.customers)),
		byEmail:           make(map[string]uint64, len(ms.byEmail)),
		reservations:      make(map[uint64]*model.Reservation, len(ms.reservations)),
		series:            make(map[uint64]*model.ReservationSeries, len(ms.series)),
		days:              make(map[string]map[string]model.SlotCounters, len(ms.days)),
		cancelEvents:      make(map[uint64]*model.CancellationEvent, len(ms.cancelEvents)),
		noShowEvents:      make(map[uint64]*model.NoShowEvent, len(ms.noShowEvents)),
		nextCustomerID:    ms.nextCustomerID,
		nextReservationID: ms.nextReservationID,
		nextSeriesID:      ms.nextSeriesID,
	}
	for id, c := range ms.customers {
		cp := *c
		snap.customers[id] = &cp
	}
	for e, id := range ms.byEmail {
		snap.byEmail[e] = id
	}
	for id, r := range ms.reservations {
		rp := *r
		snap.reservations[id] = &rp
	}
	for id, s := range ms.series {
		sp := *s
		snap.series[id] = &sp
	}
	for date, slots := range ms.days {
		cp := make(map[string]model.SlotCounters, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		snap.days[date] = cp
	}
	for id, ev := range ms.cancelEvents {
		evp := *ev
		snap.cancelEvents[id] = &evp
	}
	for id, ev := range ms.noShowEvents {
		evp := *ev
		snap.noShowEvents[id] = &evp
	}
	return snap
}

func (ms *memStore) restore(snap *memSnapshot) {
	ms.customers = snap.customers
	ms.byEmail = snap.byEmail
	ms.reservations = snap.reservations
	ms.series = snap.series
	ms.days = snap.days
	ms.cancelEvents = snap.cancelEvents
	ms.noShowEvents = snap.noShowEvents
	ms.nextCustomerID = snap.nextCustomerID
	ms.nextReservationID = snap.nextReservationID
	ms.nextSeriesID = snap.nextSeriesID
}

func (ms *memStore) Begin(ctx context.Context) (store.Tx, error) {
	ms.mu.Lock()
	return &memTx{ms: ms, snap: ms.snapshot()}, nil
}

func (ms *memStore) GetCustomerByEmail(_ context.Context, email string) (*model.Customer, error) {
	id, ok := ms.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *ms.customers[id]
	return &c, nil
}

func (ms *memStore) GetCustomerByID(_ context.Context, id uint64) (*model.Customer, error) {
	c, ok := ms.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (ms *memStore) ListCustomers(_ context.Context) ([]model.Customer, error) {
	out := make([]model.Customer, 0, len(ms.customers))
	for _, c := range ms.customers {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (ms *memStore) GetReservation(_ context.Context, id uint64) (*model.Reservation, error) {
	r, ok := ms.reservations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rp := *r
	return &rp, nil
}

func (ms *memStore) ListReservationsByEmail(_ context.Context, email string) ([]model.Reservation, error) {
	id, ok := ms.byEmail[model.NormalizeEmail(email)]
	if !ok {
		return nil, nil
	}
	var out []model.Reservation
	for _, r := range ms.reservations {
		if r.CustomerID == id {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (ms *memStore) ListReservationsByDate(_ context.Context, date string) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range ms.reservations {
		if r.Date == date {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (ms *memStore) ListPastActive(_ context.Context, before string) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range ms.reservations {
		if r.Status == model.StatusActive && r.Date < before {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (ms *memStore) GetDay(_ context.Context, date string) (*model.DayAvailability, error) {
	day := &model.DayAvailability{Date: date, Slots: make(map[string]model.SlotCounters)}
	stored := ms.days[date]
	for _, key := range ms.sched.Ordered() {
		if sc, ok := stored[key]; ok {
			day.Slots[key] = sc
		} else {
			day.Slots[key] = model.SlotCounters{Capacity: ms.defaultCapacity}
		}
	}
	return day, nil
}

func (ms *memStore) ListCancellationEvents(_ context.Context, email string) ([]model.CancellationEvent, error) {
	email = model.NormalizeEmail(email)
	var out []model.CancellationEvent
	for _, ev := range ms.cancelEvents {
		if ev.CustomerEmail == email {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservationID < out[j].ReservationID })
	return out, nil
}

func (ms *memStore) ListNoShowEvents(_ context.Context, email string) ([]model.NoShowEvent, error) {
	email = model.NormalizeEmail(email)
	var out []model.NoShowEvent
	for _, ev := range ms.noShowEvents {
		if ev.CustomerEmail == email {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReservationID < out[j].ReservationID })
	return out, nil
}

type memTx struct {
	ms   *memStore
	snap *memSnapshot
	done bool
}

func (tx *memTx) Commit() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.ms.mu.Unlock()
	return nil
}

func (tx *memTx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	tx.ms.restore(tx.snap)
	tx.ms.mu.Unlock()
	return nil
}

func (tx *memTx) GetOrCreateDayForUpdate(_ context.Context, date string) (*model.DayAvailability, error) {
	ms := tx.ms
	if _, ok := ms.days[date]; !ok {
		slots := make(map[string]model.SlotCounters)
		for _, key := range ms.sched.Ordered() {
			slots[key] = model.SlotCounters{Capacity: ms.defaultCapacity}
		}
		ms.days[date] = slots
	}
	day := &model.DayAvailability{Date: date, Slots: make(map[string]model.SlotCounters)}
	for k, v := range ms.days[date] {
		day.Slots[k] = v
	}
	return day, nil
}

func (tx *memTx) SaveDayDemand(_ context.Context, day *model.DayAvailability) error {
	stored := tx.ms.days[day.Date]
	for k, v := range day.Slots {
		sc := stored[k]
		sc.Demand = v.Demand
		stored[k] = sc
	}
	return nil
}

func (tx *memTx) GetOrCreateCustomer(_ context.Context, template *model.Customer) (*model.Customer, error) {
	ms := tx.ms
	email := model.NormalizeEmail(template.Email)
	if id, ok := ms.byEmail[email]; ok {
		cp := *ms.customers[id]
		return &cp, nil
	}
	ms.nextCustomerID++
	c := *template
	c.ID = ms.nextCustomerID
	c.Email = email
	ms.customers[c.ID] = &c
	ms.byEmail[email] = c.ID
	cp := c
	return &cp, nil
}

func (tx *memTx) UpdateCustomerContact(_ context.Context, c *model.Customer) error {
	cur, ok := tx.ms.customers[c.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.FirstName = c.FirstName
	cur.LastName = c.LastName
	cur.Phone = c.Phone
	cur.Mobile = c.Mobile
	return nil
}

func (tx *memTx) IncrementNoShowCount(_ context.Context, customerID uint64) error {
	c, ok := tx.ms.customers[customerID]
	if !ok {
		return store.ErrNotFound
	}
	c.NoShowCount++
	return nil
}

func (tx *memTx) IncrementCancellationsCount(_ context.Context, customerID uint64) error {
	c, ok := tx.ms.customers[customerID]
	if !ok {
		return store.ErrNotFound
	}
	c.CancellationsCount++
	return nil
}

func (tx *memTx) SetCustomerBarred(_ context.Context, customerID uint64, barred bool) (bool, error) {
	c, ok := tx.ms.customers[customerID]
	if !ok {
		return false, store.ErrNotFound
	}
	if c.Barred == barred {
		return false, nil
	}
	c.Barred = barred
	return true, nil
}

func (tx *memTx) CountNoShowsSince(_ context.Context, email string, cutoff time.Time) (int, error) {
	email = model.NormalizeEmail(email)
	n := 0
	for _, ev := range tx.ms.noShowEvents {
		if ev.CustomerEmail == email && !ev.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n, nil
}

func (tx *memTx) GetReservationForUpdate(_ context.Context, id uint64) (*model.Reservation, error) {
	r, ok := tx.ms.reservations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	rp := *r
	return &rp, nil
}

func (tx *memTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	tx.ms.nextReservationID++
	r.ID = tx.ms.nextReservationID
	rp := *r
	tx.ms.reservations[r.ID] = &rp
	return nil
}

func (tx *memTx) UpdateReservation(_ context.Context, r *model.Reservation) error {
	if _, ok := tx.ms.reservations[r.ID]; !ok {
		return store.ErrNotFound
	}
	rp := *r
	tx.ms.reservations[r.ID] = &rp
	return nil
}

func (tx *memTx) CreateSeries(_ context.Context, s *model.ReservationSeries) error {
	tx.ms.nextSeriesID++
	s.ID = tx.ms.nextSeriesID
	sp := *s
	tx.ms.series[s.ID] = &sp
	return nil
}

func (tx *memTx) InsertCancellationEvent(_ context.Context, ev *model.CancellationEvent) (bool, error) {
	if _, ok := tx.ms.cancelEvents[ev.ReservationID]; ok {
		return false, nil
	}
	evp := *ev
	if evp.CreatedAt.IsZero() {
		evp.CreatedAt = time.Now()
	}
	tx.ms.cancelEvents[ev.ReservationID] = &evp
	return true, nil
}

func (tx *memTx) InsertNoShowEvent(_ context.Context, ev *model.NoShowEvent) (bool, error) {
	if _, ok := tx.ms.noShowEvents[ev.ReservationID]; ok {
		return false, nil
	}
	evp := *ev
	if evp.CreatedAt.IsZero() {
		evp.CreatedAt = time.Now()
	}
	tx.ms.noShowEvents[ev.ReservationID] = &evp
	return true, nil
}
