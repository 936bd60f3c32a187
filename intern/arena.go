package intern

import "sync"

// Arena is a fixed-stride slab allocator for float32 vector records. All
// records share one dense backing array, improving locality for
// brute-force scans and avoiding one small allocation per insert.
//
// Slot 0 is never issued; it is reserved so that a zero-valued Slot is
// recognizable as "unallocated".
type Arena struct {
	mu       sync.Mutex
	stride   int
	data     []float32
	freeList []Slot
	next     Slot
}

// Slot identifies a fixed-size record inside an Arena.
type Slot uint32

// NewArena creates an arena for vectors of the given dimension.
func NewArena(dimension int) *Arena {
	a := &Arena{stride: dimension}
	// reserve slot 0
	a.data = make([]float32, dimension)
	a.next = 1
	return a
}

// Alloc reserves a slot and copies vec into it, returning the slot.
// vec must have length equal to the arena's dimension.
func (a *Arena) Alloc(vec []float32) Slot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var slot Slot
	if n := len(a.freeList); n > 0 {
		slot = a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
	} else {
		slot = a.next
		a.next++
		needed := (int(slot) + 1) * a.stride
		if needed > len(a.data) {
			grown := make([]float32, needed)
			copy(grown, a.data)
			a.data = grown
		}
	}
	copy(a.data[int(slot)*a.stride:int(slot+1)*a.stride], vec)
	return slot
}

// Update overwrites the record at slot in place.
func (a *Arena) Update(slot Slot, vec []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	copy(a.data[int(slot)*a.stride:int(slot+1)*a.stride], vec)
}

// Free returns slot to the free list for reuse.
func (a *Arena) Free(slot Slot) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freeList = append(a.freeList, slot)
}

// Get returns a copy of the vector stored at slot.
func (a *Arena) Get(slot Slot) []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float32, a.stride)
	copy(out, a.data[int(slot)*a.stride:int(slot+1)*a.stride])
	return out
}

// View returns the backing slice for slot without copying. Callers must
// not retain the slice past the next mutating call on the arena.
func (a *Arena) View(slot Slot) []float32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.data[int(slot)*a.stride : int(slot+1)*a.stride]
}

// Dimension returns the arena's fixed vector width.
func (a *Arena) Dimension() int {
	return a.stride
}
