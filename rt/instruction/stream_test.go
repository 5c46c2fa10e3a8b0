package instruction

import (
	"sync"
	"testing"

	"github.com/gekko3d/rend/rt/core"
	"github.com/gekko3d/rend/rt/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func removeObject(producer, seq uint32) Instruction {
	return RemoveObject{Handle: core.ObjectHandle(registry.HandleFromParts(seq, producer))}
}

func TestStreamPair_SwapThenDrain(t *testing.T) {
	s := NewStreamPair()
	s.Push(SetOptions{Options: core.DefaultOptions()})
	s.Push(removeObject(0, 1))

	assert.Equal(t, 0, s.Drain(func(Instruction) { t.Fatal("nothing swapped yet") }))
	assert.Equal(t, 2, s.Pending())

	s.Swap()
	assert.Equal(t, 0, s.Pending())

	var kinds []Kind
	assert.Equal(t, 2, s.Drain(func(i Instruction) { kinds = append(kinds, i.Kind()) }))
	assert.Equal(t, []Kind{KindSetOptions, KindRemoveObject}, kinds)

	assert.Equal(t, 0, s.Drain(func(Instruction) { t.Fatal("drained twice") }))
}

func TestStreamPair_PushAfterSwapGoesToNextBatch(t *testing.T) {
	s := NewStreamPair()
	s.Push(removeObject(0, 0))
	s.Swap()
	s.Push(removeObject(0, 1))

	var got []Instruction
	s.Drain(func(i Instruction) { got = append(got, i) })
	require.Len(t, got, 1)
	assert.Equal(t, removeObject(0, 0), got[0])

	s.Swap()
	got = got[:0]
	s.Drain(func(i Instruction) { got = append(got, i) })
	require.Len(t, got, 1)
	assert.Equal(t, removeObject(0, 1), got[0])
}

// Every pushed instruction is drained exactly once and per-producer order is preserved.
func TestStreamPair_LosslessUnderConcurrency(t *testing.T) {
	s := NewStreamPair()
	const producers = 6
	const perProducer = 2000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p uint32) {
			defer wg.Done()
			for i := uint32(0); i < perProducer; i++ {
				s.Push(removeObject(p, i))
			}
		}(uint32(p))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	next := make([]uint32, producers)
	total := 0
	consume := func(i Instruction) {
		h := i.(RemoveObject).Handle.Raw()
		p, seq := h.Generation(), h.Index()
		require.Equal(t, next[p], seq, "producer %d out of order", p)
		next[p]++
		total++
	}

	for running := true; running; {
		select {
		case <-done:
			running = false
		default:
		}
		s.Swap()
		s.Drain(consume)
	}
	// Anything pushed between the last swap and done.
	s.Swap()
	s.Drain(consume)

	assert.Equal(t, producers*perProducer, total)
	for p := range next {
		assert.Equal(t, uint32(perProducer), next[p])
	}
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "AddMesh", KindAddMesh.String())
	assert.Equal(t, "SetOptions", SetOptions{}.Kind().String())
	assert.Equal(t, "UpdateMaterial", UpdateMaterial{}.Kind().String())
	assert.Equal(t, "Unknown", Kind(200).String())
}
