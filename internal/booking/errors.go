// Package booking implements the reservation orchestrator: the atomic
// "check capacity across affected slots, create or mutate the
// reservation, adjust demand" protocol shared by self-service and
// staff-assisted flows, plus the lifecycle transitions and the no-show
// ban policy.
package booking

import (
	"errors"
	"fmt"
)

// ErrBarred rejects bookings by or for a barred customer before any
// ledger mutation.
var ErrBarred = errors.New("no new reservations allowed for this account; please contact the restaurant")

// ErrForbidden is returned when the caller is neither staff nor the
// owning customer.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidInput marks validation failures (bad date, bad counts).
// Capacity and state errors have their own types below; invalid input is
// rejected before any locks are taken.
var ErrInvalidInput = errors.New("invalid input")

// Domain-state errors: transitions forbidden by the lifecycle rules.
// They are message-level and recoverable by choosing another action.
var (
	ErrNotActive      = errors.New("reservation is not active")
	ErrPastDate       = errors.New("past reservations cannot be changed or cancelled")
	ErrNotPastDate    = errors.New("no-show can only be set for past reservations")
	ErrWrongDay       = errors.New("completion is only allowed on the reservation date")
	ErrAlreadyNoShow  = errors.New("reservation is already marked as no-show")
	ErrAlreadyDone    = errors.New("reservation is already completed")
)

// CapacityError reports that some slot on some date cannot absorb the
// requested tables.  It always names the offending date and slot and the
// remaining count, and is only returned after a full rollback: a
// capacity failure never partially applies a mutation.
type CapacityError struct {
	Date      string
	Slot      string
	SlotLabel string
	Remaining int
}

func (e *CapacityError) Error() string {
	label := e.SlotLabel
	if label == "" {
		label = e.Slot
	}
	return fmt.Sprintf("not enough tables on %s for %s; only %d left", e.Date, label, e.Remaining)
}
