package registry

import "fmt"

// Handle identifies a registry slot and encodes a generation for stale-handle detection.
type Handle struct {
	index      uint32
	generation uint32
}

// Index returns the backing slot index of the handle.
func (h Handle) Index() uint32 {
	return h.index
}

// Generation returns the generation counter associated with the handle.
func (h Handle) Generation() uint32 {
	return h.generation
}

func (h Handle) String() string {
	return fmt.Sprintf("Handle(%d:%d)", h.index, h.generation)
}

// HandleFromParts constructs a handle from raw components.
// Used by tests and by callers that persist handles outside the registry.
func HandleFromParts(index, generation uint32) Handle {
	return Handle{index: index, generation: generation}
}
