package tvio

import (
	"slices"
	"sync"
)

// handleTable maps small integers to live handles. Lookups are lock-free;
// only the allocation of numbers is serialised, so operations on distinct
// handles never contend.
//
// A number goes through reserve, store and release. It is handed out again
// only after release, which callers invoke once the handle is fully
// drained.
type handleTable[T any] struct {
	entries sync.Map // int -> T

	lk   sync.Mutex
	next int
	free []int
	live int
}

func newHandleTable[T any]() *handleTable[T] {
	return &handleTable[T]{}
}

func (t *handleTable[T]) reserve() int {
	t.lk.Lock()
	defer t.lk.Unlock()

	t.live++
	if len(t.free) > 0 {
		h := t.free[0]
		t.free = slices.Delete(t.free, 0, 1)
		return h
	}
	h := t.next
	t.next++
	return h
}

func (t *handleTable[T]) store(h int, v T) {
	t.entries.Store(h, v)
}

func (t *handleTable[T]) get(h int) (v T, ok bool) {
	raw, ok := t.entries.Load(h)
	if !ok {
		return v, false
	}
	return raw.(T), true
}

// release forgets h and makes its number available again.
func (t *handleTable[T]) release(h int) {
	t.entries.Delete(h)

	t.lk.Lock()
	defer t.lk.Unlock()
	t.live--
	t.free = append(t.free, h)
}

func (t *handleTable[T]) handles() (hs []int) {
	t.entries.Range(func(key, _ any) bool {
		hs = append(hs, key.(int))
		return true
	})
	slices.Sort(hs)
	return hs
}

func (t *handleTable[T]) len() int {
	t.lk.Lock()
	defer t.lk.Unlock()
	return t.live
}
