package arena

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	id  int
	buf [64]byte
}

func TestArenaAllocFree(t *testing.T) {
	a := New[thing](2, 4)

	h, v, err := a.Alloc()
	require.NoError(t, err)
	require.NotNil(t, v)
	v.id = 7

	got := a.Get(h)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.id)
	assert.Equal(t, 1, a.Live())

	require.NoError(t, a.Free(h))
	assert.Equal(t, 0, a.Live())
	assert.Nil(t, a.Get(h), "freed handle must not resolve")
}

func TestArenaStaleHandle(t *testing.T) {
	a := New[thing](2, 4)

	h, v, err := a.Alloc()
	require.NoError(t, err)
	v.id = 1
	require.NoError(t, a.Free(h))

	// Double free is rejected.
	assert.ErrorIs(t, a.Free(h), ErrStaleHandle)

	// The slot can be recycled, and the old handle stays dead.
	h2, v2, err := a.Alloc()
	require.NoError(t, err)
	assert.Equal(t, h.Index(), h2.Index(), "slot should be recycled LIFO")
	assert.NotEqual(t, h.Generation(), h2.Generation())
	assert.Nil(t, a.Get(h))
	require.NotNil(t, a.Get(h2))
	assert.Equal(t, 0, v2.id, "recycled slot must be zeroed")
}

func TestArenaFreeZeroHandle(t *testing.T) {
	a := New[thing](1, 2)
	assert.NoError(t, a.Free(Handle{}))
}

func TestArenaExhaustion(t *testing.T) {
	a := New[thing](2, 3)
	assert.Equal(t, 6, a.Cap())

	handles := make([]Handle, 0, 6)
	for i := 0; i < 6; i++ {
		h, _, err := a.Alloc()
		require.NoError(t, err)
		handles = append(handles, h)
	}

	_, _, err := a.Alloc()
	assert.ErrorIs(t, err, ErrExhausted)

	// Freeing one slot makes alloc work again.
	require.NoError(t, a.Free(handles[0]))
	_, _, err = a.Alloc()
	assert.NoError(t, err)
}

func TestArenaHandlePacking(t *testing.T) {
	a := New[thing](1, 4)
	h, _, err := a.Alloc()
	require.NoError(t, err)

	rebuilt := HandleAt(h.Index(), h.Generation())
	assert.Equal(t, h, rebuilt)
	assert.NotNil(t, a.Get(rebuilt))
}

func TestArenaRange(t *testing.T) {
	a := New[thing](2, 4)

	h1, v1, err := a.Alloc()
	require.NoError(t, err)
	v1.id = 1
	h2, v2, err := a.Alloc()
	require.NoError(t, err)
	v2.id = 2
	h3, _, err := a.Alloc()
	require.NoError(t, err)
	require.NoError(t, a.Free(h2))

	seen := map[int]bool{}
	a.Range(func(h Handle, v *thing) bool {
		seen[v.id] = true
		// Freeing inside Range must not deadlock.
		require.NoError(t, a.Free(h))
		return true
	})

	assert.Equal(t, map[int]bool{1: true, 0: true}, seen)
	assert.Equal(t, 0, a.Live())
	_ = h1
	_ = h3
}

// Property: alloc/free roundtrips never double-allocate a live slot and
// never lose one.
func TestArenaRoundtripStress(t *testing.T) {
	a := New[thing](4, 16)

	const goroutines = 8
	const rounds = 2000

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				h, v, err := a.Alloc()
				if err != nil {
					// Arena can run dry with every goroutine holding slots.
					continue
				}
				if v.id != 0 {
					t.Errorf("slot handed out dirty: id=%d", v.id)
				}
				v.id = g*rounds + i + 1
				if got := a.Get(h); got == nil || got.id != v.id {
					t.Errorf("slot mutated while loaned to us")
				}
				v.id = 0
				if err := a.Free(h); err != nil {
					t.Errorf("free of live handle failed: %v", err)
				}
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 0, a.Live(), "all slots returned")
}
