package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPublic struct {
	name string
}

func TestRegistry_AllocateFresh(t *testing.T) {
	r := NewRegistry[int, testPublic]()

	h0 := r.Allocate()
	h1 := r.Allocate()

	assert.Equal(t, uint32(0), h0.Index())
	assert.Equal(t, uint32(1), h1.Index())
	assert.Equal(t, uint32(0), h0.Generation())
	assert.Equal(t, uint32(0), h1.Generation())
	assert.NotEqual(t, h0, h1)
}

func TestRegistry_InsertGetUpdate(t *testing.T) {
	r := NewRegistry[int, testPublic]()
	h := r.Allocate()

	_, err := r.Get(h)
	require.ErrorIs(t, err, ErrUnknownHandle, "allocated but unfilled handles are not live")

	require.NoError(t, r.Insert(h, 7, testPublic{name: "seven"}))
	v, err := r.Get(h)
	require.NoError(t, err)
	assert.Equal(t, 7, v)

	pub, err := r.Public(h)
	require.NoError(t, err)
	assert.Equal(t, "seven", pub.name)

	// Overwrite supports create-then-update flows.
	require.NoError(t, r.Insert(h, 8, testPublic{name: "eight"}))
	assert.Equal(t, 1, r.Len())

	require.NoError(t, r.Update(h, func(v *int) { *v *= 2 }))
	v, _ = r.Get(h)
	assert.Equal(t, 16, v)
}

func TestRegistry_InsertInvalidHandle(t *testing.T) {
	r := NewRegistry[int, testPublic]()

	err := r.Insert(HandleFromParts(3, 0), 1, testPublic{})
	assert.ErrorIs(t, err, ErrInvalidHandle)

	h := r.Allocate()
	err = r.Insert(HandleFromParts(h.Index(), h.Generation()+1), 1, testPublic{})
	assert.ErrorIs(t, err, ErrInvalidHandle, "wrong generation")

	require.NoError(t, r.Remove(h))
	err = r.Insert(h, 1, testPublic{})
	assert.ErrorIs(t, err, ErrInvalidHandle, "pending removal")
}

func TestRegistry_RemoveAndReuse(t *testing.T) {
	r := NewRegistry[int, testPublic]()
	old := r.Allocate()
	require.NoError(t, r.Insert(old, 1, testPublic{name: "one"}))

	require.NoError(t, r.Remove(old))
	_, err := r.Get(old)
	assert.ErrorIs(t, err, ErrUnknownHandle)
	assert.ErrorIs(t, r.Remove(old), ErrUnknownHandle, "double remove")

	var seen []Handle
	n := r.RemoveAllDead(func(h Handle, internal int, public testPublic) {
		seen = append(seen, h)
		assert.Equal(t, 1, internal)
		assert.Equal(t, "one", public.name)
	})
	assert.Equal(t, 1, n)
	assert.Equal(t, []Handle{old}, seen)

	reused := r.Allocate()
	assert.Equal(t, old.Index(), reused.Index())
	assert.Equal(t, old.Generation()+1, reused.Generation())
	assert.NotEqual(t, old, reused)

	require.NoError(t, r.Insert(reused, 2, testPublic{}))
	_, err = r.Get(old)
	assert.ErrorIs(t, err, ErrUnknownHandle, "stale handle must not see the new value")
	assert.ErrorIs(t, r.Update(old, func(*int) {}), ErrUnknownHandle)
}

func TestRegistry_RemoveAllDeadIdempotent(t *testing.T) {
	r := NewRegistry[int, testPublic]()
	for i := 0; i < 4; i++ {
		h := r.Allocate()
		require.NoError(t, r.Insert(h, i, testPublic{}))
		if i%2 == 0 {
			require.NoError(t, r.Remove(h))
		}
	}

	calls := 0
	cb := func(Handle, int, testPublic) { calls++ }
	assert.Equal(t, 2, r.RemoveAllDead(cb))
	assert.Equal(t, 2, calls)

	assert.Equal(t, 0, r.RemoveAllDead(cb))
	assert.Equal(t, 2, calls, "second compaction must not invoke the callback again")
}

func TestRegistry_RemoveUnfilledSkipsCallback(t *testing.T) {
	r := NewRegistry[int, testPublic]()
	h := r.Allocate()
	require.NoError(t, r.Remove(h))

	calls := 0
	assert.Equal(t, 1, r.RemoveAllDead(func(Handle, int, testPublic) { calls++ }))
	assert.Equal(t, 0, calls)
}

func TestRegistry_ValuesOrderStable(t *testing.T) {
	r := NewRegistry[int, testPublic]()
	handles := make([]Handle, 5)
	for i := range handles {
		handles[i] = r.Allocate()
		require.NoError(t, r.Insert(handles[i], i*10, testPublic{}))
	}
	require.NoError(t, r.Remove(handles[1]))
	require.NoError(t, r.Remove(handles[3]))
	r.RemoveAllDead(nil)

	assert.Equal(t, []int{0, 20, 40}, r.Values())

	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, handles[0], entries[0].Handle)
	assert.Equal(t, handles[2], entries[1].Handle)
	assert.Equal(t, handles[4], entries[2].Handle)
}

func TestRegistry_ValuesIsSnapshot(t *testing.T) {
	r := NewRegistry[int, testPublic]()
	h := r.Allocate()
	require.NoError(t, r.Insert(h, 1, testPublic{}))

	values := r.Values()
	require.NoError(t, r.Update(h, func(v *int) { *v = 99 }))
	assert.Equal(t, []int{1}, values)
}

// Live handles never compare equal across arbitrary allocate/remove sequences.
func TestRegistry_HandleUniqueness(t *testing.T) {
	r := NewRegistry[int, testPublic]()
	live := map[Handle]struct{}{}
	everIssued := map[Handle]struct{}{}

	for round := 0; round < 50; round++ {
		for i := 0; i < 7; i++ {
			h := r.Allocate()
			_, dup := live[h]
			require.False(t, dup, "handle %s issued twice while live", h)
			_, reissued := everIssued[h]
			require.False(t, reissued, "handle %s reissued after removal", h)
			live[h] = struct{}{}
			everIssued[h] = struct{}{}
			require.NoError(t, r.Insert(h, i, testPublic{}))
		}
		removed := 0
		for h := range live {
			if removed == 5 {
				break
			}
			require.NoError(t, r.Remove(h))
			delete(live, h)
			removed++
		}
		r.RemoveAllDead(nil)
		assert.Equal(t, len(live), r.Len())
	}
}

func TestRegistry_ConcurrentAllocate(t *testing.T) {
	r := NewRegistry[int, testPublic]()
	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[Handle]struct{}, workers*perWorker)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h := r.Allocate()
				mu.Lock()
				seen[h] = struct{}{}
				mu.Unlock()
			}
		}()
	}

	// Render-side compaction racing with allocation.
	for i := 0; i < 20; i++ {
		r.RemoveAllDead(nil)
		_ = r.Values()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
	assert.Equal(t, workers*perWorker, r.Capacity())
}
