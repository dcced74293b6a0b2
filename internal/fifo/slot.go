package fifo

// Slot exposes one item at a time out of an unbounded FIFO.
//
// The head is the only visible item. Clear drops it and promotes the next
// queued item, so consumers observe arrivals in order and never lose one.
// A Slot is not safe for concurrent use: the owner guards it with its own
// lock so that availability checks and reads stay consistent.
type Slot[T any] struct {
	items []T
}

// Push queues v behind the current head, or makes it the head when the
// slot is empty.
func (s *Slot[T]) Push(v T) {
	s.items = append(s.items, v)
}

// Peek returns the visible item.
func (s *Slot[T]) Peek() (v T, ok bool) {
	if len(s.items) == 0 {
		return v, false
	}
	return s.items[0], true
}

// Available reports whether an item is visible.
func (s *Slot[T]) Available() bool {
	return len(s.items) > 0
}

// Clear drops the visible item and promotes the next one. Clearing an empty
// slot does nothing and reports false.
func (s *Slot[T]) Clear() bool {
	if len(s.items) == 0 {
		return false
	}
	var zero T
	s.items[0] = zero
	if len(s.items) == 1 {
		s.items = s.items[:0]
	} else {
		s.items = s.items[1:]
	}
	return true
}

// Take returns the visible item and clears it.
func (s *Slot[T]) Take() (v T, ok bool) {
	v, ok = s.Peek()
	if ok {
		s.Clear()
	}
	return v, ok
}

// Len counts the visible item plus everything queued behind it.
func (s *Slot[T]) Len() int {
	return len(s.items)
}

// Reset drops every item.
func (s *Slot[T]) Reset() {
	clear(s.items)
	s.items = s.items[:0]
}
