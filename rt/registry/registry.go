package registry

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidHandle is returned when filling a handle that was never allocated,
	// has a stale generation or is already pending removal.
	ErrInvalidHandle = errors.New("registry: invalid handle")
	// ErrUnknownHandle is returned when looking up a handle that is not live.
	ErrUnknownHandle = errors.New("registry: unknown handle")
)

type slotState uint8

const (
	slotFree slotState = iota
	slotAllocated
	slotFilled
	slotDead
)

type slot[I any, P any] struct {
	generation uint32
	state      slotState
	filled     bool // survives slotDead so teardown knows whether a value exists
	internal   I
	public     P
}

// Entry pairs a live value with its handle.
type Entry[I any] struct {
	Handle Handle
	Value  I
}

// Registry maps generational handles to an internal value and the public value it was built from.
//
// Allocate may be called from any goroutine. Insert, Update, Remove and RemoveAllDead are meant
// for the single render goroutine, but are synchronized with Allocate through the same mutex.
type Registry[I any, P any] struct {
	mu    sync.Mutex
	slots []slot[I, P]
	free  []uint32
	live  int
}

func NewRegistry[I any, P any]() *Registry[I, P] {
	return &Registry[I, P]{}
}

// Allocate issues a fresh handle, recycling reclaimed slots when possible.
func (r *Registry[I, P]) Allocate() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n := len(r.free); n > 0 {
		index := r.free[n-1]
		r.free = r.free[:n-1]
		s := &r.slots[index]
		s.state = slotAllocated
		return Handle{index: index, generation: s.generation}
	}

	index := uint32(len(r.slots))
	r.slots = append(r.slots, slot[I, P]{state: slotAllocated})
	return Handle{index: index, generation: 0}
}

// lookup returns the slot for h when its generation matches. Caller holds mu.
func (r *Registry[I, P]) lookup(h Handle) (*slot[I, P], bool) {
	if int(h.index) >= len(r.slots) {
		return nil, false
	}
	s := &r.slots[h.index]
	if s.generation != h.generation {
		return nil, false
	}
	return s, true
}

// Insert associates a value with a previously allocated handle, overwriting any prior value.
func (r *Registry[I, P]) Insert(h Handle, internal I, public P) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(h)
	if !ok || (s.state != slotAllocated && s.state != slotFilled) {
		return fmt.Errorf("%w: %s", ErrInvalidHandle, h)
	}
	if s.state == slotAllocated {
		r.live++
	}
	s.state = slotFilled
	s.filled = true
	s.internal = internal
	s.public = public
	return nil
}

// Get returns a copy of the internal value stored for h.
func (r *Registry[I, P]) Get(h Handle) (I, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(h)
	if !ok || s.state != slotFilled {
		var zero I
		return zero, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return s.internal, nil
}

// Public returns a copy of the public value h was filled with.
func (r *Registry[I, P]) Public(h Handle) (P, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(h)
	if !ok || s.state != slotFilled {
		var zero P
		return zero, fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	return s.public, nil
}

// Update mutates the internal value of a live handle in place.
func (r *Registry[I, P]) Update(h Handle, fn func(*I)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(h)
	if !ok || s.state != slotFilled {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	fn(&s.internal)
	return nil
}

// Contains reports whether h refers to a filled, live slot.
func (r *Registry[I, P]) Contains(h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(h)
	return ok && s.state == slotFilled
}

// Remove marks h pending removal. The slot is reclaimed by the next RemoveAllDead.
func (r *Registry[I, P]) Remove(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.lookup(h)
	if !ok || (s.state != slotAllocated && s.state != slotFilled) {
		return fmt.Errorf("%w: %s", ErrUnknownHandle, h)
	}
	if s.state == slotFilled {
		r.live--
	}
	s.state = slotDead
	return nil
}

// RemoveAllDead reclaims every slot marked by Remove since the previous call.
// cb runs for each reclaimed slot that was filled, before its value is dropped.
// Returns the number of slots reclaimed.
func (r *Registry[I, P]) RemoveAllDead(cb func(h Handle, internal I, public P)) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	reclaimed := 0
	for i := range r.slots {
		s := &r.slots[i]
		if s.state != slotDead {
			continue
		}
		if s.filled && cb != nil {
			cb(Handle{index: uint32(i), generation: s.generation}, s.internal, s.public)
		}

		var zeroI I
		var zeroP P
		s.internal = zeroI
		s.public = zeroP
		s.filled = false
		s.state = slotFree
		s.generation++
		r.free = append(r.free, uint32(i))
		reclaimed++
	}
	return reclaimed
}

// Values returns a dense snapshot of all live values in slot order.
func (r *Registry[I, P]) Values() []I {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]I, 0, r.live)
	for i := range r.slots {
		if r.slots[i].state == slotFilled {
			out = append(out, r.slots[i].internal)
		}
	}
	return out
}

// Entries is like Values but also returns each value's handle.
func (r *Registry[I, P]) Entries() []Entry[I] {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry[I], 0, r.live)
	for i := range r.slots {
		s := &r.slots[i]
		if s.state == slotFilled {
			out = append(out, Entry[I]{
				Handle: Handle{index: uint32(i), generation: s.generation},
				Value:  s.internal,
			})
		}
	}
	return out
}

// Len returns the number of live, filled values.
func (r *Registry[I, P]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// Capacity returns the number of slots ever created, live or not.
func (r *Registry[I, P]) Capacity() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slots)
}
