package monitor

// ring keeps the last cap items in insertion order.
type ring[T any] struct {
	items []T
	head  int
	full  bool
}

func newRing[T any](capacity int) *ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.items[r.head] = v
	r.head++
	if r.head == len(r.items) {
		r.head = 0
		r.full = true
	}
}

func (r *ring[T]) len() int {
	if r.full {
		return len(r.items)
	}
	return r.head
}

// snapshot returns the items oldest first.
func (r *ring[T]) snapshot() []T {
	if !r.full {
		out := make([]T, r.head)
		copy(out, r.items[:r.head])
		return out
	}
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.head:]...)
	return append(out, r.items[:r.head]...)
}
