package authstate

import "sync/atomic"

// Mailbox is a single slot, overwrite on write mailbox. Post replaces
// whatever was there, Peek reads the latest value without consuming it.
type Mailbox[T any] struct {
	slot atomic.Pointer[T]
}

// Post stores v, dropping the previous value
func (m *Mailbox[T]) Post(v T) {
	m.slot.Store(&v)
}

// Peek returns the latest posted value
func (m *Mailbox[T]) Peek() (T, bool) {
	p := m.slot.Load()
	if p == nil {
		var zero T
		return zero, false
	}
	return *p, true
}
