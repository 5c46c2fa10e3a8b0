package resources

import "sort"

// Range is a half open span [Start, End) of arena elements.
type Range struct {
	Start uint32
	End   uint32
}

func (r Range) Len() uint32 { return r.End - r.Start }

// rangeAllocator hands out spans of an arena first fit and merges neighbours on release.
type rangeAllocator struct {
	capacity uint32
	free     []Range // sorted by Start, never adjacent
}

func newRangeAllocator(capacity uint32) *rangeAllocator {
	a := &rangeAllocator{capacity: capacity}
	if capacity > 0 {
		a.free = []Range{{0, capacity}}
	}
	return a
}

func (a *rangeAllocator) Capacity() uint32 { return a.capacity }

// allocate returns a span of n elements, or false when no free span is large enough.
func (a *rangeAllocator) allocate(n uint32) (Range, bool) {
	if n == 0 {
		return Range{}, true
	}
	for i, f := range a.free {
		if f.Len() < n {
			continue
		}
		r := Range{Start: f.Start, End: f.Start + n}
		if f.Len() == n {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i].Start += n
		}
		return r, true
	}
	return Range{}, false
}

// grow extends the arena to capacity elements.
func (a *rangeAllocator) grow(capacity uint32) {
	if capacity <= a.capacity {
		return
	}
	a.release(Range{Start: a.capacity, End: capacity})
	a.capacity = capacity
}

func (a *rangeAllocator) release(r Range) {
	if r.Len() == 0 {
		return
	}
	i := sort.Search(len(a.free), func(i int) bool { return a.free[i].Start >= r.Start })
	a.free = append(a.free, Range{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = r

	if i+1 < len(a.free) && a.free[i].End == a.free[i+1].Start {
		a.free[i].End = a.free[i+1].End
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].End == a.free[i].Start {
		a.free[i-1].End = a.free[i].End
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// used is the number of allocated elements.
func (a *rangeAllocator) used() uint32 {
	n := a.capacity
	for _, f := range a.free {
		n -= f.Len()
	}
	return n
}
