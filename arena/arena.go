// Package arena provides a slab allocator for fixed-size slots with
// generation-tagged handles.
//
// Slots live in slab regions that are allocated lazily and never released, so
// slot addresses are stable for the arena's lifetime and may be registered
// with external systems as opaque tokens. Each slot carries a generation
// counter bumped on free: a handle to a recycled slot goes stale instead of
// aliasing the next tenant.
package arena

import (
	"errors"
	"sync"
)

const (
	// DefaultMaxSlabs caps how many slab regions an arena may create.
	DefaultMaxSlabs = 100
	// DefaultSlotsPerSlab is the number of slots carved out of one region.
	DefaultSlotsPerSlab = 256
)

var (
	// ErrExhausted is returned by Alloc when every slab is created and full.
	ErrExhausted = errors.New("arena: out of capacity")
	// ErrStaleHandle is returned by Free for a handle that is not live.
	ErrStaleHandle = errors.New("arena: stale handle")
)

// Handle identifies one loaned slot. The zero Handle is never issued
// (generations start at 1), so it is safe as a not-a-slot marker.
type Handle struct {
	index uint32
	gen   uint32
}

// Index returns the slot index, for packing into external event tokens.
func (h Handle) Index() uint32 { return h.index }

// Generation returns the handle's generation tag.
func (h Handle) Generation() uint32 { return h.gen }

// HandleAt rebuilds a Handle from its unpacked parts.
func HandleAt(index, gen uint32) Handle {
	return Handle{index: index, gen: gen}
}

type slot[T any] struct {
	gen  uint32
	live bool
	val  T
}

// Arena loans out fixed-size slots of T from lazily grown slab regions.
// A single mutex guards the free list and the slab table.
type Arena[T any] struct {
	mu           sync.Mutex
	maxSlabs     int
	slotsPerSlab int
	slabs        [][]slot[T]
	free         []uint32
}

// New creates an arena bounded by maxSlabs regions of slotsPerSlab slots.
// Zero or negative arguments select the defaults.
func New[T any](maxSlabs, slotsPerSlab int) *Arena[T] {
	if maxSlabs <= 0 {
		maxSlabs = DefaultMaxSlabs
	}
	if slotsPerSlab <= 0 {
		slotsPerSlab = DefaultSlotsPerSlab
	}
	return &Arena[T]{
		maxSlabs:     maxSlabs,
		slotsPerSlab: slotsPerSlab,
	}
}

// Alloc loans out a free slot, creating a new slab region if none is free.
// It returns ErrExhausted when the slab cap is reached and every slot is
// loaned. The returned pointer stays valid until the matching Free.
func (a *Arena[T]) Alloc() (Handle, *T, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.free) == 0 {
		if len(a.slabs) >= a.maxSlabs {
			return Handle{}, nil, ErrExhausted
		}
		base := uint32(len(a.slabs) * a.slotsPerSlab)
		slab := make([]slot[T], a.slotsPerSlab)
		for i := range slab {
			slab[i].gen = 1
			a.free = append(a.free, base+uint32(i))
		}
		a.slabs = append(a.slabs, slab)
	}

	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]

	s := a.slotAt(idx)
	s.live = true
	return Handle{index: idx, gen: s.gen}, &s.val, nil
}

// Free returns the slot behind h to the free list and invalidates every
// outstanding handle to it. Freeing the zero Handle is a no-op; freeing a
// stale or already-freed handle returns ErrStaleHandle.
func (a *Arena[T]) Free(h Handle) error {
	if h == (Handle{}) {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.slotAt(h.index)
	if s == nil || !s.live || s.gen != h.gen {
		return ErrStaleHandle
	}

	s.live = false
	s.gen++
	var zero T
	s.val = zero
	a.free = append(a.free, h.index)
	return nil
}

// Get resolves h to its slot, or nil if h is stale, freed, or out of range.
func (a *Arena[T]) Get(h Handle) *T {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.slotAt(h.index)
	if s == nil || !s.live || s.gen != h.gen {
		return nil
	}
	return &s.val
}

// Range calls f for every live slot until f returns false. The live set is
// snapshotted up front, so f may call Free (or Alloc) without deadlocking;
// slots freed or loaned after the snapshot are not reflected.
func (a *Arena[T]) Range(f func(Handle, *T) bool) {
	a.mu.Lock()
	type live struct {
		h Handle
		v *T
	}
	snapshot := make([]live, 0, len(a.slabs)*a.slotsPerSlab-len(a.free))
	for slabIdx := range a.slabs {
		for i := range a.slabs[slabIdx] {
			s := &a.slabs[slabIdx][i]
			if s.live {
				h := Handle{index: uint32(slabIdx*a.slotsPerSlab + i), gen: s.gen}
				snapshot = append(snapshot, live{h: h, v: &s.val})
			}
		}
	}
	a.mu.Unlock()

	for _, l := range snapshot {
		if !f(l.h, l.v) {
			return
		}
	}
}

// Cap returns the maximum number of slots the arena can ever loan.
func (a *Arena[T]) Cap() int {
	return a.maxSlabs * a.slotsPerSlab
}

// Live returns the number of currently loaned slots.
func (a *Arena[T]) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.slabs)*a.slotsPerSlab - len(a.free)
}

func (a *Arena[T]) slotAt(idx uint32) *slot[T] {
	slabIdx := int(idx) / a.slotsPerSlab
	if slabIdx >= len(a.slabs) {
		return nil
	}
	return &a.slabs[slabIdx][int(idx)%a.slotsPerSlab]
}
