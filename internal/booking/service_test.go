package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gambinos/reservation-book/internal/model"
	"github.com/gambinos/reservation-book/internal/schedule"
	"github.com/gambinos/reservation-book/internal/store"
)

// All tests run against a frozen clock so "today" is stable.
var testNow = time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

const (
	today     = "2025-05-01"
	tomorrow  = "2025-05-02"
	nextWeek  = "2025-05-08"
	yesterday = "2025-04-30"
)

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	sched := schedule.NewDefault()
	ms := newMemStore(sched)
	svc := NewService(ms, sched, Config{
		MaxDurationSlots: 4,
		SeriesMaxDays:    14,
		BanThreshold:     3,
		BanWindowDays:    90,
	})
	svc.SetClock(func() time.Time { return testNow })
	return svc, ms
}

func demand(ms *memStore, date, slot string) int {
	return ms.days[date][slot].Demand
}

// seedReservation plants an active reservation directly in the store,
// bypassing the booking guards so tests can create past-dated rows.
func seedReservation(ms *memStore, email, date, slot string, tables int) uint64 {
	email = model.NormalizeEmail(email)
	id, ok := ms.byEmail[email]
	if !ok {
		ms.nextCustomerID++
		id = ms.nextCustomerID
		ms.customers[id] = &model.Customer{ID: id, Email: email}
		ms.byEmail[email] = id
	}
	ms.nextReservationID++
	rid := ms.nextReservationID
	ms.reservations[rid] = &model.Reservation{
		ID:             rid,
		CustomerID:     id,
		Date:           date,
		StartSlot:      slot,
		DurationSlots:  1,
		TablesRequired: tables,
		Status:         model.StatusActive,
	}
	if _, ok := ms.days[date]; !ok {
		slots := make(map[string]model.SlotCounters)
		for _, key := range ms.sched.Ordered() {
			slots[key] = model.SlotCounters{Capacity: ms.defaultCapacity}
		}
		ms.days[date] = slots
	}
	sc := ms.days[date][slot]
	sc.Demand += tables
	ms.days[date][slot] = sc
	return rid
}

func TestBookConsumesDemand(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	created, cust, err := svc.Book(ctx, BookRequest{
		Email:     "Alice@Example.com",
		FirstName: "Alice",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    4,
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "alice@example.com", cust.Email)
	assert.Equal(t, model.StatusActive, created[0].Status)
	assert.Equal(t, 4, demand(ms, tomorrow, "18_19"))

	// 6 remain; asking for 7 must fail and leave the ledger untouched.
	_, _, err = svc.Book(ctx, BookRequest{
		Email:     "bob@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    7,
	})
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, tomorrow, capErr.Date)
	assert.Equal(t, "18_19", capErr.Slot)
	assert.Equal(t, 6, capErr.Remaining)
	assert.Equal(t, 4, demand(ms, tomorrow, "18_19"))

	// 6 exactly still fits.
	_, _, err = svc.Book(ctx, BookRequest{
		Email:     "bob@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    6,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, demand(ms, tomorrow, "18_19"))
}

func TestBookTruncatesAtClose(t *testing.T) {
	svc, ms := newTestService(t)

	created, _, err := svc.Book(context.Background(), BookRequest{
		Email:         "late@example.com",
		Date:          tomorrow,
		StartSlot:     "20_21",
		DurationSlots: 3,
		Tables:        2,
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, 2, created[0].DurationSlots)
	assert.Equal(t, 2, demand(ms, tomorrow, "20_21"))
	assert.Equal(t, 2, demand(ms, tomorrow, "21_22"))
	assert.Equal(t, 0, demand(ms, tomorrow, "19_20"))
}

func TestBookUntilClose(t *testing.T) {
	svc, ms := newTestService(t)

	created, _, err := svc.Book(context.Background(), BookRequest{
		Email:      "party@example.com",
		Date:       tomorrow,
		StartSlot:  "19_20",
		UntilClose: true,
		Tables:     3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, created[0].DurationSlots)
	for _, slot := range []string{"19_20", "20_21", "21_22"} {
		assert.Equal(t, 3, demand(ms, tomorrow, slot), slot)
	}
}

func TestBookRejectsBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Book(ctx, BookRequest{Email: "a@b.c", Date: "not-a-date", StartSlot: "18_19", Tables: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = svc.Book(ctx, BookRequest{Email: "a@b.c", Date: yesterday, StartSlot: "18_19", Tables: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, _, err = svc.Book(ctx, BookRequest{Email: "a@b.c", Date: tomorrow, StartSlot: "16_17", Tables: 1})
	assert.ErrorIs(t, err, schedule.ErrUnknownSlot)

	_, _, err = svc.Book(ctx, BookRequest{Email: "", Date: tomorrow, StartSlot: "18_19", Tables: 1})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBookRejectsBarredCustomer(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	_, cust, err := svc.Book(ctx, BookRequest{Email: "x@example.com", Date: tomorrow, StartSlot: "17_18", Tables: 1})
	require.NoError(t, err)
	ms.customers[cust.ID].Barred = true

	_, _, err = svc.Book(ctx, BookRequest{Email: "x@example.com", Date: tomorrow, StartSlot: "18_19", Tables: 1})
	assert.ErrorIs(t, err, ErrBarred)
	assert.Equal(t, 0, demand(ms, tomorrow, "18_19"))
}

func TestConcurrentBookingNoOversell(t *testing.T) {
	svc, ms := newTestService(t)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = svc.Book(context.Background(), BookRequest{
				Email:     "racer@example.com",
				Date:      tomorrow,
				StartSlot: "19_20",
				Tables:    6,
			})
		}(i)
	}
	wg.Wait()

	var ok, failed int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var capErr *CapacityError
		require.ErrorAs(t, err, &capErr)
		failed++
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 6, demand(ms, tomorrow, "19_20"))
}

func TestSeriesAllOrNothing(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	// Day 3 of the series already has too much demand.
	day3 := "2025-05-04"
	seedReservation(ms, "other@example.com", day3, "18_19", 8)

	_, _, err := svc.Book(ctx, BookRequest{
		Email:      "series@example.com",
		Date:       tomorrow,
		StartSlot:  "18_19",
		Tables:     4,
		SeriesDays: 3,
	})
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, day3, capErr.Date)

	// Nothing from days 1-2 survives the rollback.
	assert.Equal(t, 0, demand(ms, tomorrow, "18_19"))
	assert.Equal(t, 0, demand(ms, "2025-05-03", "18_19"))
	rs, _ := ms.ListReservationsByEmail(ctx, "series@example.com")
	assert.Empty(t, rs)

	// Shrink the request and the whole series commits, sharing one series id.
	created, _, err := svc.Book(ctx, BookRequest{
		Email:      "series@example.com",
		Date:       tomorrow,
		StartSlot:  "18_19",
		Tables:     2,
		SeriesDays: 3,
	})
	require.NoError(t, err)
	require.Len(t, created, 3)
	require.NotNil(t, created[0].SeriesID)
	for _, r := range created {
		require.NotNil(t, r.SeriesID)
		assert.Equal(t, *created[0].SeriesID, *r.SeriesID)
	}
	assert.Equal(t, 2, demand(ms, tomorrow, "18_19"))
	assert.Equal(t, 2, demand(ms, "2025-05-03", "18_19"))
	assert.Equal(t, 10, demand(ms, day3, "18_19"))
}

func TestCancelReleasesExactlyOnce(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	created, cust, err := svc.Book(ctx, BookRequest{
		Email:     "cxl@example.com",
		Date:      tomorrow,
		StartSlot: "17_18",
		Tables:    3,
	})
	require.NoError(t, err)
	id := created[0].ID
	actor := Actor{Email: "cxl@example.com"}

	res, err := svc.Cancel(ctx, id, actor)
	require.NoError(t, err)
	assert.True(t, res.Released)
	assert.Equal(t, model.StatusCancelled, res.Reservation.Status)
	require.NotNil(t, res.Reservation.CancelledAt)
	assert.Equal(t, 0, demand(ms, tomorrow, "17_18"))
	assert.EqualValues(t, 1, ms.customers[cust.ID].CancellationsCount)

	// Second cancel: no-op success, nothing double-released or recounted.
	res, err = svc.Cancel(ctx, id, actor)
	require.NoError(t, err)
	assert.False(t, res.Released)
	assert.Equal(t, 0, demand(ms, tomorrow, "17_18"))
	assert.EqualValues(t, 1, ms.customers[cust.ID].CancellationsCount)

	evs, err := ms.ListCancellationEvents(ctx, "cxl@example.com")
	require.NoError(t, err)
	assert.Len(t, evs, 1)
}

func TestCancelPastReservationRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ms := svc.store.(*memStore)
	id := seedReservation(ms, "old@example.com", yesterday, "18_19", 2)

	_, err := svc.Cancel(context.Background(), id, Actor{Staff: true})
	assert.ErrorIs(t, err, ErrPastDate)
}

func TestCancelOwnershipEnforced(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.Book(ctx, BookRequest{
		Email:     "owner@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    1,
	})
	require.NoError(t, err)
	id := created[0].ID

	_, err = svc.Cancel(ctx, id, Actor{Email: "stranger@example.com"})
	assert.ErrorIs(t, err, ErrForbidden)

	// Staff may cancel anything.
	_, err = svc.Cancel(ctx, id, Actor{Staff: true})
	assert.NoError(t, err)
}

func TestEditMovesDemandAcrossDates(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.Book(ctx, BookRequest{
		Email:     "move@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    4,
	})
	require.NoError(t, err)
	id := created[0].ID

	updated, err := svc.Edit(ctx, id, EditRequest{
		Date:          nextWeek,
		StartSlot:     "19_20",
		DurationSlots: 2,
		Tables:        5,
	}, Actor{Email: "move@example.com"})
	require.NoError(t, err)
	assert.Equal(t, nextWeek, updated.Date)
	assert.Equal(t, "19_20", updated.StartSlot)
	assert.Equal(t, 2, updated.DurationSlots)
	assert.Equal(t, 5, updated.TablesRequired)

	assert.Equal(t, 0, demand(ms, tomorrow, "18_19"))
	assert.Equal(t, 5, demand(ms, nextWeek, "19_20"))
	assert.Equal(t, 5, demand(ms, nextWeek, "20_21"))
}

func TestEditCapacityFailureLeavesOriginalIntact(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.Book(ctx, BookRequest{
		Email:     "stay@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    4,
	})
	require.NoError(t, err)
	id := created[0].ID

	// The target date can only absorb 2 more tables.
	seedReservation(ms, "other@example.com", nextWeek, "18_19", 8)

	_, err = svc.Edit(ctx, id, EditRequest{
		Date:      nextWeek,
		StartSlot: "18_19",
		Tables:    4,
	}, Actor{Staff: true})
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, nextWeek, capErr.Date)
	assert.Equal(t, 2, capErr.Remaining)

	// Old demand restored, reservation unchanged.
	assert.Equal(t, 4, demand(ms, tomorrow, "18_19"))
	assert.Equal(t, 8, demand(ms, nextWeek, "18_19"))
	r, err := ms.GetReservation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, tomorrow, r.Date)
	assert.Equal(t, model.StatusActive, r.Status)
}

func TestEditSameSlotSeesOwnRelease(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.Book(ctx, BookRequest{
		Email:     "grow@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    8,
	})
	require.NoError(t, err)

	// Growing 8 -> 10 in place works because the edit's own release is
	// visible to its capacity check.
	updated, err := svc.Edit(ctx, created[0].ID, EditRequest{
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    10,
	}, Actor{Staff: true})
	require.NoError(t, err)
	assert.Equal(t, 10, updated.TablesRequired)
	assert.Equal(t, 10, demand(ms, tomorrow, "18_19"))
}

func TestEditTerminalRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.Book(ctx, BookRequest{
		Email:     "done@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    1,
	})
	require.NoError(t, err)
	_, err = svc.Cancel(ctx, created[0].ID, Actor{Staff: true})
	require.NoError(t, err)

	_, err = svc.Edit(ctx, created[0].ID, EditRequest{
		Date:      tomorrow,
		StartSlot: "19_20",
		Tables:    1,
	}, Actor{Staff: true})
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestCompleteOnlyOnReservationDate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	created, _, err := svc.Book(ctx, BookRequest{
		Email:     "walkin@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    2,
	})
	require.NoError(t, err)
	_, err = svc.Complete(ctx, created[0].ID)
	assert.ErrorIs(t, err, ErrWrongDay)

	todays, _, err := svc.Book(ctx, BookRequest{
		Email:     "walkin@example.com",
		Date:      today,
		StartSlot: "18_19",
		Tables:    2,
	})
	require.NoError(t, err)
	r, err := svc.Complete(ctx, todays[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, r.Status)
	require.NotNil(t, r.CompletedAt)

	_, err = svc.Complete(ctx, todays[0].ID)
	assert.ErrorIs(t, err, ErrAlreadyDone)
}

func TestMarkNoShowGuardsAndBanThreshold(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	// Future reservations cannot be no-shows.
	created, _, err := svc.Book(ctx, BookRequest{
		Email:     "flaky@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    1,
	})
	require.NoError(t, err)
	_, err = svc.MarkNoShow(ctx, created[0].ID, true)
	assert.ErrorIs(t, err, ErrNotPastDate)

	// Three past no-shows within the window trigger the automatic bar on
	// the third, and only the third.
	ids := []uint64{
		seedReservation(ms, "flaky@example.com", "2025-04-10", "18_19", 1),
		seedReservation(ms, "flaky@example.com", "2025-04-17", "18_19", 1),
		seedReservation(ms, "flaky@example.com", "2025-04-24", "18_19", 1),
	}
	for i, id := range ids {
		res, err := svc.MarkNoShow(ctx, id, true)
		require.NoError(t, err)
		assert.False(t, res.AlreadyRecorded)
		assert.Equal(t, i == 2, res.NewlyBarred, "reservation %d", i)
	}

	cust, err := ms.GetCustomerByEmail(ctx, "flaky@example.com")
	require.NoError(t, err)
	assert.True(t, cust.Barred)
	assert.EqualValues(t, 3, cust.NoShowCount)

	// Re-marking is a recorded no-op: no double count, no extra event.
	res, err := svc.MarkNoShow(ctx, ids[0], true)
	require.NoError(t, err)
	assert.True(t, res.AlreadyRecorded)
	cust, _ = ms.GetCustomerByEmail(ctx, "flaky@example.com")
	assert.EqualValues(t, 3, cust.NoShowCount)

	// Demand is NOT released for no-shows.
	assert.Equal(t, 1, demand(ms, "2025-04-10", "18_19"))
}

func TestSweepMarksOnlyPastActive(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	past1 := seedReservation(ms, "s1@example.com", yesterday, "18_19", 1)
	past2 := seedReservation(ms, "s2@example.com", "2025-04-28", "19_20", 2)
	future := seedReservation(ms, "s3@example.com", tomorrow, "18_19", 1)

	// A past but already-cancelled row is invisible to the sweep.
	cancelled := seedReservation(ms, "s4@example.com", yesterday, "20_21", 1)
	ms.reservations[cancelled].Status = model.StatusCancelled

	res, err := svc.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Scanned)
	assert.Equal(t, 2, res.Marked)

	for _, id := range []uint64{past1, past2} {
		r, err := ms.GetReservation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusNoShow, r.Status)
	}
	r, _ := ms.GetReservation(ctx, future)
	assert.Equal(t, model.StatusActive, r.Status)

	// Second run finds nothing left to do.
	res, err = svc.SweepNoShows(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Scanned)
	assert.Equal(t, 0, res.Marked)
}

func TestSetBarredIdempotent(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	_, cust, err := svc.Book(ctx, BookRequest{
		Email:     "toggle@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    1,
	})
	require.NoError(t, err)

	changed, err := svc.SetBarred(ctx, cust.ID, true)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = svc.SetBarred(ctx, cust.ID, true)
	require.NoError(t, err)
	assert.False(t, changed)

	changed, err = svc.SetBarred(ctx, cust.ID, false)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.False(t, ms.customers[cust.ID].Barred)

	_, err = svc.SetBarred(ctx, 9999, true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAvailabilityGridAppliesDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Book(ctx, BookRequest{
		Email:     "grid@example.com",
		Date:      today,
		StartSlot: "18_19",
		Tables:    4,
	})
	require.NoError(t, err)

	days, err := svc.Availability(ctx, 3)
	require.NoError(t, err)
	require.Len(t, days, 3)
	assert.Equal(t, today, days[0].Date)
	require.Len(t, days[0].Slots, 5)

	for _, sv := range days[0].Slots {
		if sv.Key == "18_19" {
			assert.Equal(t, 6, sv.Remaining)
		} else {
			assert.Equal(t, 10, sv.Remaining)
		}
		assert.Equal(t, 10, sv.Capacity)
	}
	// Untouched future day comes back all-default.
	for _, sv := range days[2].Slots {
		assert.Equal(t, 10, sv.Remaining)
	}
	assert.Equal(t, "18:00–19:00", days[0].Slots[1].Label)
}

func TestBookReusesCustomerAndSyncsContact(t *testing.T) {
	svc, ms := newTestService(t)
	ctx := context.Background()

	_, first, err := svc.Book(ctx, BookRequest{
		Email:     "repeat@example.com",
		FirstName: "Rae",
		Date:      tomorrow,
		StartSlot: "17_18",
		Tables:    1,
	})
	require.NoError(t, err)

	_, second, err := svc.Book(ctx, BookRequest{
		Email:     "REPEAT@example.com",
		FirstName: "Rae",
		LastName:  "Nguyen",
		Phone:     "555-0101",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    1,
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stored := ms.customers[first.ID]
	assert.Equal(t, "Nguyen", stored.LastName)
	assert.Equal(t, "555-0101", stored.Phone)
	assert.Len(t, ms.customers, 1)
}

func TestErrorMessagesNameDateSlotRemaining(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Book(ctx, BookRequest{
		Email:     "full@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    10,
	})
	require.NoError(t, err)

	_, _, err = svc.Book(ctx, BookRequest{
		Email:     "late@example.com",
		Date:      tomorrow,
		StartSlot: "18_19",
		Tables:    1,
	})
	var capErr *CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Contains(t, capErr.Error(), tomorrow)
	assert.Contains(t, capErr.Error(), "18:00–19:00")
	assert.Contains(t, capErr.Error(), "only 0 left")
	require.False(t, errors.Is(err, ErrInvalidInput))
}
