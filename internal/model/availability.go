package model

// SlotCounters is the per-slot capacity ledger cell: how many tables the
// restaurant offers in that slot and how many are currently committed.
// The invariant demand <= capacity holds for every committed booking
// transaction; Remaining clamps at zero as a defensive last resort.
type SlotCounters struct {
	Capacity int // slot_availability.capacity
	Demand   int // slot_availability.demand
}

// DayAvailability is one ledger entry: the full set of slot counters for
// a single calendar date.  Entries are created lazily on first access
// with every slot's capacity set from the restaurant-wide default, are
// mutated only under the date's row lock, and are never deleted.
type DayAvailability struct {
	Date  string                  // YYYY-MM-DD
	Slots map[string]SlotCounters // keyed by slot key, e.g. "17_18"
}

// Remaining returns the free tables for a slot, never negative.  A slot
// absent from the map reads as zero capacity.
func (d *DayAvailability) Remaining(slot string) int {
	sc := d.Slots[slot]
	left := sc.Capacity - sc.Demand
	if left < 0 {
		return 0
	}
	return left
}

// CapacityFailure describes the first slot that cannot absorb a
// requested table count, with the numbers needed for error reporting.
type CapacityFailure struct {
	Slot      string
	Available int
	Demand    int
}

// Remaining returns the free tables at the failing slot.
func (f *CapacityFailure) Remaining() int {
	left := f.Available - f.Demand
	if left < 0 {
		return 0
	}
	return left
}

// CapacityCheck verifies that demand + tables <= capacity for every slot
// in the run.  On failure it returns the first failing slot and its
// counters; on success the failure pointer is nil.
func (d *DayAvailability) CapacityCheck(slots []string, tables int) *CapacityFailure {
	for _, s := range slots {
		sc := d.Slots[s]
		if sc.Demand+tables > sc.Capacity {
			return &CapacityFailure{Slot: s, Available: sc.Capacity, Demand: sc.Demand}
		}
	}
	return nil
}

// AdjustDemand adds (sign=+1) or removes (sign=-1) tables from the
// demand counter of each slot in the run.  Demand is floor-clamped at
// zero to tolerate drift from edge cases; hitting the clamp is not a
// normal code path.  Callers must hold the date's row lock.
func (d *DayAvailability) AdjustDemand(slots []string, tables, sign int) {
	if tables <= 0 {
		return
	}
	for _, s := range slots {
		sc := d.Slots[s]
		sc.Demand += sign * tables
		if sc.Demand < 0 {
			sc.Demand = 0
		}
		d.Slots[s] = sc
	}
}
