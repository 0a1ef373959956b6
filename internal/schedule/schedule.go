// Package schedule defines the restaurant's daily slot calendar.  The
// calendar is a fixed, ordered list of hourly slot keys (e.g. "17_18")
// with display labels.  It is built once at startup from configuration
// and injected wherever slot ordering or duration math is needed, so
// no package holds its own mutable copy of the slot tables.
package schedule

import "errors"

// ErrUnknownSlot is returned when a caller supplies a start slot that is
// not part of the configured calendar.  Handlers should translate this
// into an HTTP 400 response.
var ErrUnknownSlot = errors.New("unknown time slot")

// Schedule holds the ordered slot keys and their human-readable labels.
// The ordering drives all duration math: consuming N slots from a start
// slot means the next N-1 keys in list order, clamped at the list end.
type Schedule struct {
	keys   []string
	labels map[string]string
	index  map[string]int
}

// DefaultSlots is the observed operating day: five hourly slots from
// 17:00 to 22:00.  Used when no slot configuration is provided.
func DefaultSlots() ([]string, map[string]string) {
	keys := []string{"17_18", "18_19", "19_20", "20_21", "21_22"}
	labels := map[string]string{
		"17_18": "17:00–18:00",
		"18_19": "18:00–19:00",
		"19_20": "19:00–20:00",
		"20_21": "20:00–21:00",
		"21_22": "21:00–22:00",
	}
	return keys, labels
}

// New builds a Schedule from an ordered key list and a label map.  Keys
// without a label fall back to the raw key at display time.
func New(keys []string, labels map[string]string) *Schedule {
	idx := make(map[string]int, len(keys))
	for i, k := range keys {
		idx[k] = i
	}
	if labels == nil {
		labels = map[string]string{}
	}
	return &Schedule{keys: keys, labels: labels, index: idx}
}

// NewDefault returns a Schedule over the default five-slot operating day.
func NewDefault() *Schedule {
	keys, labels := DefaultSlots()
	return New(keys, labels)
}

// Ordered returns the slot keys in canonical display order.  The returned
// slice is a copy; callers may not mutate the calendar.
func (s *Schedule) Ordered() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of slots in the operating day.
func (s *Schedule) Len() int { return len(s.keys) }

// Label returns the display label for a slot.  Unknown keys are echoed
// back verbatim so display code never fails on stale data.
func (s *Schedule) Label(slot string) string {
	if l, ok := s.labels[slot]; ok {
		return l
	}
	return slot
}

// SlotsFor returns the consecutive run of slots beginning at start with
// the given duration, truncated at the end of the operating day.  When
// untilClose is set the duration is ignored and the full remainder of
// the day is returned.  A start key outside the calendar is an input
// error, not a silent coercion.
func (s *Schedule) SlotsFor(start string, duration int, untilClose bool) ([]string, error) {
	i, ok := s.index[start]
	if !ok {
		return nil, ErrUnknownSlot
	}
	if untilClose {
		return append([]string(nil), s.keys[i:]...), nil
	}
	if duration < 1 {
		duration = 1
	}
	end := i + duration
	if end > len(s.keys) {
		end = len(s.keys)
	}
	return append([]string(nil), s.keys[i:end]...), nil
}

// SpanLabel renders a multi-slot booking as a single pretty range, e.g.
// ("17_18", 4) -> "17:00–21:00".  It assumes labels of the form
// "HH:MM–HH:MM" and falls back to the start label when they are not.
func (s *Schedule) SpanLabel(start string, duration int) string {
	slots, err := s.SlotsFor(start, duration, false)
	if err != nil || len(slots) == 0 {
		return s.Label(start)
	}
	first := s.Label(slots[0])
	last := s.Label(slots[len(slots)-1])
	fs := splitRange(first)
	ls := splitRange(last)
	if fs == "" || ls == "" {
		return first
	}
	return fs + "–" + rangeEnd(last)
}

func splitRange(label string) string {
	for i, r := range label {
		if r == '–' {
			return label[:i]
		}
	}
	return ""
}

func rangeEnd(label string) string {
	for i, r := range label {
		if r == '–' {
			return label[i+len("–"):]
		}
	}
	return ""
}
