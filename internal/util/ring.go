package util

// Ring is a bounded FIFO that overwrites its oldest item once full, so every
// Push is O(1). A non-positive limit makes it unbounded. It is not safe for
// concurrent use.
type Ring[T any] struct {
	items []T
	start int
	limit int
}

// NewRing creates an empty ring holding at most limit items.
func NewRing[T any](limit int) *Ring[T] {
	return &Ring[T]{limit: limit}
}

// Push appends v, evicting the oldest item when the ring is full.
func (r *Ring[T]) Push(v T) {
	if r.limit <= 0 || len(r.items) < r.limit {
		r.items = append(r.items, v)
		return
	}

	r.items[r.start] = v
	r.start = (r.start + 1) % r.limit
}

// Len returns the number of stored items.
func (r *Ring[T]) Len() int { return len(r.items) }

// Each calls fn for every item, oldest first.
func (r *Ring[T]) Each(fn func(v T)) {
	for i := range r.items {
		fn(r.items[(r.start+i)%len(r.items)])
	}
}

// Slice returns a copy of the items, oldest first.
func (r *Ring[T]) Slice() []T {
	out := make([]T, 0, len(r.items))
	r.Each(func(v T) { out = append(out, v) })

	return out
}

// Reset drops all items.
func (r *Ring[T]) Reset() {
	r.items = nil
	r.start = 0
}
