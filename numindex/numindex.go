// Package numindex is an ordered multi-map from float64 value to a set
// of interned keys, with a segment tree over the compressed rank space
// giving O(log N) range counts.
package numindex

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/vsdb/vsengine/intern"
)

// Index is a numeric attribute index. All operations are guarded by a
// single mutex: the ordered map and the segment tree must change
// atomically with respect to one another.
type Index struct {
	mu sync.Mutex

	// byValue maps a stored value to the equality posting list (of
	// index-local ordinals) of keys holding it, mirroring tagindex's
	// per-tag posting lists.
	byValue map[float64]*roaring.Bitmap
	// valueOf maps a key to its currently stored value, for modify/remove.
	valueOf map[intern.Handle]float64

	// ordinal/handle form the key<->posting-ordinal bijection roaring
	// bitmaps need; retired on a key's final Remove.
	ordinal map[intern.Handle]uint32
	handle  map[uint32]intern.Handle
	next    uint32

	// untracked holds keys that belong to the schema but have never had
	// this attribute set; needed to answer negated predicates.
	untracked map[intern.Handle]struct{}

	tree *segmentTree
}

// New creates an empty numeric index.
func New() *Index {
	return &Index{
		byValue:   make(map[float64]*roaring.Bitmap),
		valueOf:   make(map[intern.Handle]float64),
		ordinal:   make(map[intern.Handle]uint32),
		handle:    make(map[uint32]intern.Handle),
		untracked: make(map[intern.Handle]struct{}),
		tree:      newSegmentTree(),
	}
}

// ordinalFor returns key's posting-list ordinal, assigning a new one
// on first use. Ordinals are retired only by a final Remove.
func (idx *Index) ordinalFor(key intern.Handle) uint32 {
	if id, ok := idx.ordinal[key]; ok {
		return id
	}
	id := idx.next
	idx.next++
	idx.ordinal[key] = id
	idx.handle[id] = key
	return id
}

// ParseError is returned by Add for a non-finite or unparseable number.
type ParseError struct {
	Value float64
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("numindex: value %v is not finite", e.Value)
}

// NotFoundError is returned by Remove for an unknown (key, value) pair.
type NotFoundError struct {
	Value float64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("numindex: no entry with value %v", e.Value)
}

// Add inserts (key, value). Idempotent for a duplicate (key, value) pair.
func (idx *Index) Add(key intern.Handle, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return &ParseError{Value: value}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	delete(idx.untracked, key)

	if existing, ok := idx.valueOf[key]; ok && existing == value {
		return nil // idempotent duplicate
	} else if ok {
		idx.removeLocked(key, existing)
	}

	idx.addLocked(key, value)
	return nil
}

// Modify moves key from old to new value. oldValue is not checked:
// whatever value key currently holds is replaced by newValue, with no
// error if it differs from oldValue.
func (idx *Index) Modify(key intern.Handle, oldValue, newValue float64) error {
	if math.IsNaN(newValue) || math.IsInf(newValue, 0) {
		return &ParseError{Value: newValue}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if cur, ok := idx.valueOf[key]; ok {
		idx.removeLocked(key, cur)
	} else {
		delete(idx.untracked, key)
		_ = oldValue
	}
	idx.addLocked(key, newValue)
	return nil
}

// Remove deletes (key, value). Returns NotFoundError if absent.
func (idx *Index) Remove(key intern.Handle, value float64) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	cur, ok := idx.valueOf[key]
	if !ok || cur != value {
		return &NotFoundError{Value: value}
	}
	idx.removeLocked(key, value)
	if id, ok := idx.ordinal[key]; ok {
		delete(idx.ordinal, key)
		delete(idx.handle, id)
	}
	return nil
}

// RemoveKey drops key's current value, if any, and marks it untracked.
// Unlike Remove it does not require the caller to know the stored
// value, matching the whole-record deletion / attribute-dropped path.
func (idx *Index) RemoveKey(key intern.Handle) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if value, ok := idx.valueOf[key]; ok {
		idx.removeLocked(key, value)
	}
	if id, ok := idx.ordinal[key]; ok {
		delete(idx.ordinal, key)
		delete(idx.handle, id)
	}
	idx.untracked[key] = struct{}{}
}

// MarkUntracked records that key belongs to the schema but has no value
// for this attribute, so negated predicates can account for it.
func (idx *Index) MarkUntracked(key intern.Handle) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, ok := idx.valueOf[key]; !ok {
		idx.untracked[key] = struct{}{}
	}
}

func (idx *Index) addLocked(key intern.Handle, value float64) {
	bm, ok := idx.byValue[value]
	if !ok {
		bm = roaring.New()
		idx.byValue[value] = bm
		idx.tree.insertValue(value)
	}
	bm.Add(idx.ordinalFor(key))
	idx.valueOf[key] = value
	idx.tree.bump(value, 1)
}

func (idx *Index) removeLocked(key intern.Handle, value float64) {
	bm := idx.byValue[value]
	if id, ok := idx.ordinal[key]; ok {
		bm.Remove(id)
	}
	delete(idx.valueOf, key)
	idx.tree.bump(value, -1)
	if bm.IsEmpty() {
		delete(idx.byValue, value)
	}
}

// CountRange returns the number of keys whose value lies in
// [lo, hi] (bound inclusivity controlled by loInc/hiInc), in O(log N).
func (idx *Index) CountRange(lo, hi float64, loInc, hiInc bool) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.tree.countRange(lo, hi, loInc, hiInc)
}

// IterateRange yields keys with value in [lo, hi] in ascending value
// order; within an equal-value group keys come in ascending posting
// ordinal order (the order in which keys were first given an ordinal).
func (idx *Index) IterateRange(lo, hi float64, loInc, hiInc bool) []intern.Handle {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	values := make([]float64, 0, len(idx.byValue))
	for v := range idx.byValue {
		if inRange(v, lo, hi, loInc, hiInc) {
			values = append(values, v)
		}
	}
	sort.Float64s(values)

	var out []intern.Handle
	for _, v := range values {
		it := idx.byValue[v].Iterator()
		for it.HasNext() {
			if h, ok := idx.handle[it.Next()]; ok {
				out = append(out, h)
			}
		}
	}
	return out
}

// Negated returns the keys outside [lo, hi] unioned with the untracked
// set, i.e. everything a negated range predicate should match.
func (idx *Index) Negated(lo, hi float64, loInc, hiInc bool) []intern.Handle {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]intern.Handle, 0, len(idx.valueOf)+len(idx.untracked))
	for v, bm := range idx.byValue {
		if !inRange(v, lo, hi, loInc, hiInc) {
			it := bm.Iterator()
			for it.HasNext() {
				if h, ok := idx.handle[it.Next()]; ok {
					out = append(out, h)
				}
			}
		}
	}
	for k := range idx.untracked {
		out = append(out, k)
	}
	return out
}

// RangeBitmap unions the equality postings for every distinct value in
// [lo, hi] into one bitmap of index-local ordinals, the same posting
// algebra tagindex.Union performs per tag.
func (idx *Index) RangeBitmap(lo, hi float64, loInc, hiInc bool) *roaring.Bitmap {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := roaring.New()
	for v, bm := range idx.byValue {
		if inRange(v, lo, hi, loInc, hiInc) {
			out.Or(bm)
		}
	}
	return out
}

// KeyForOrdinal resolves a posting-list ordinal back to its key handle.
func (idx *Index) KeyForOrdinal(id uint32) (intern.Handle, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h, ok := idx.handle[id]
	return h, ok
}

// Contains reports whether key's current value lies in [lo, hi]. Keys
// with no stored value (schema-untracked) are never contained in a
// finite range, only reachable via a negated predicate.
func (idx *Index) Contains(key intern.Handle, lo, hi float64, loInc, hiInc bool) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	v, ok := idx.valueOf[key]
	if !ok {
		return false
	}
	return inRange(v, lo, hi, loInc, hiInc)
}

// Total returns the number of tracked entries (not counting untracked).
func (idx *Index) Total() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.valueOf)
}

// Entry is one (key, value) pair as reported by Entries.
type Entry struct {
	Key   intern.Handle
	Value float64
}

// Entries returns every tracked (key, value) pair, for snapshotting.
func (idx *Index) Entries() []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	out := make([]Entry, 0, len(idx.valueOf))
	for k, v := range idx.valueOf {
		out = append(out, Entry{Key: k, Value: v})
	}
	return out
}

func inRange(v, lo, hi float64, loInc, hiInc bool) bool {
	if loInc {
		if v < lo {
			return false
		}
	} else if v <= lo {
		return false
	}
	if hiInc {
		if v > hi {
			return false
		}
	} else if v >= hi {
		return false
	}
	return true
}
