package prefetch

// Slot is the store's record for a single key: either a present item or a
// confirmed absence. A key that has never been collected has no Slot at all.
type Slot struct {
	item    any
	present bool
}

// Present wraps an item that exists in the source of truth. nil, false and zero
// values are valid items.
func Present(item any) Slot {
	return Slot{item: item, present: true}
}

// Absent marks a key the source confirmed does not exist.
func Absent() Slot {
	return Slot{}
}

// Item returns the stored item and true, or nil and false for an Absent slot.
func (s Slot) Item() (any, bool) {
	return s.item, s.present
}

// IsAbsent reports whether the slot records a confirmed absence.
func (s Slot) IsAbsent() bool {
	return !s.present
}
