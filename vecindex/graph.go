package vecindex

import (
	"container/heap"
	"math/rand"
	"sort"
	"sync"
)

// GraphOptions configures a Graph index.
type GraphOptions struct {
	Dimension int
	Metric    Metric
	// M is the maximum number of neighbors kept per node.
	M int
	// EF is the default search-time candidate list size (efRuntime).
	EF int
	// EFConstruction is the candidate list size used while inserting.
	EFConstruction int
	// BlockSize is the capacity growth increment. Defaults to 1024.
	BlockSize int
	// Seed makes entry-point selection deterministic for tests.
	Seed int64
}

// Graph is a bounded-degree proximity graph approximate nearest
// neighbor index (a single-layer HNSW-flavored construction). Insert
// builds neighborhoods by greedy beam search from the current entry
// point; search performs the same beam search against the query.
type Graph struct {
	resizeMu sync.RWMutex
	mu       sync.Mutex

	dim            int
	metric         Metric
	dist           distanceFunc
	m              int
	ef             int
	efConstruction int
	blockSize      int
	seed           int64
	rng            *rand.Rand

	capacity   int
	vectors    []float32
	magnitude  []float32
	keys       []string
	slotOf     map[string]int
	neighbors  [][]int // adjacency list per slot
	free       []int
	count      int
	entryPoint int // slot of current entry point, -1 if empty
}

// NewGraph creates an empty Graph index.
func NewGraph(opts GraphOptions) *Graph {
	if opts.M <= 0 {
		opts.M = 8
	}
	if opts.EF <= 0 {
		opts.EF = 64
	}
	if opts.EFConstruction <= 0 {
		opts.EFConstruction = opts.EF
	}
	if opts.BlockSize <= 0 {
		opts.BlockSize = 1024
	}
	seed := opts.Seed
	if seed == 0 {
		seed = 1
	}
	return &Graph{
		dim:            opts.Dimension,
		metric:         opts.Metric,
		dist:           distanceFor(opts.Metric),
		m:              opts.M,
		ef:             opts.EF,
		efConstruction: opts.EFConstruction,
		blockSize:      opts.BlockSize,
		seed:           seed,
		rng:            rand.New(rand.NewSource(seed)),
		slotOf:         make(map[string]int),
		entryPoint:     -1,
	}
}

func (g *Graph) Dimension() int { return g.dim }

// Keys returns every live key currently stored in the index.
func (g *Graph) Keys() []string {
	g.resizeMu.RLock()
	defer g.resizeMu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]string, 0, g.count)
	for _, k := range g.keys {
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

func (g *Graph) RecordCount() int {
	g.resizeMu.RLock()
	defer g.resizeMu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.count
}

func (g *Graph) prepare(vec []float32) (unit []float32, mag float32) {
	if g.metric == Cosine {
		return normalizeL2(vec)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	return cp, -1
}

// AddRecord inserts key with vec, connecting it to its EFConstruction
// nearest existing neighbors (capped at M).
func (g *Graph) AddRecord(key string, vec []float32) (bool, error) {
	if len(vec) != g.dim {
		return false, &ErrDimensionMismatch{Expected: g.dim, Actual: len(vec)}
	}
	unit, mag := g.prepare(vec)

	for {
		g.resizeMu.RLock()
		g.mu.Lock()

		if slot, exists := g.slotOf[key]; exists {
			g.reconnectLocked(slot, unit, mag)
			g.mu.Unlock()
			g.resizeMu.RUnlock()
			return true, nil
		}

		slot, ok := g.allocSlotLocked()
		if !ok {
			g.mu.Unlock()
			g.resizeMu.RUnlock()
			g.growCapacity()
			continue
		}
		g.insertLocked(slot, key, unit, mag)
		g.count++
		g.mu.Unlock()
		g.resizeMu.RUnlock()
		return true, nil
	}
}

func (g *Graph) ModifyRecord(key string, vec []float32) (bool, error) {
	if len(vec) != g.dim {
		return false, &ErrDimensionMismatch{Expected: g.dim, Actual: len(vec)}
	}
	unit, mag := g.prepare(vec)

	g.resizeMu.RLock()
	defer g.resizeMu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	slot, ok := g.slotOf[key]
	if !ok {
		return false, ErrNotFound
	}
	row := g.vectors[slot*g.dim : (slot+1)*g.dim]
	same := true
	for i := range row {
		if row[i] != unit[i] {
			same = false
			break
		}
	}
	if same {
		return false, nil
	}
	g.reconnectLocked(slot, unit, mag)
	return true, nil
}

func (g *Graph) RemoveRecord(key string) error {
	g.resizeMu.RLock()
	defer g.resizeMu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	slot, ok := g.slotOf[key]
	if !ok {
		return ErrNotFound
	}
	for _, n := range g.neighbors[slot] {
		g.neighbors[n] = removeInt(g.neighbors[n], slot)
	}
	g.neighbors[slot] = nil
	delete(g.slotOf, key)
	g.keys[slot] = ""
	g.free = append(g.free, slot)
	g.count--

	if g.entryPoint == slot {
		g.entryPoint = -1
		for s, k := range g.keys {
			if k != "" {
				g.entryPoint = s
				break
			}
		}
	}
	return nil
}

func (g *Graph) ComputeDistance(key string, query []float32) (float32, error) {
	if len(query) != g.dim {
		return 0, &ErrDimensionMismatch{Expected: g.dim, Actual: len(query)}
	}
	q := query
	if g.metric == Cosine {
		q, _ = normalizeL2(query)
	}
	g.resizeMu.RLock()
	defer g.resizeMu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	slot, ok := g.slotOf[key]
	if !ok {
		return 0, ErrNotFound
	}
	row := g.vectors[slot*g.dim : (slot+1)*g.dim]
	return g.dist(row, q), nil
}

func (g *Graph) Magnitude(key string) (float32, bool) {
	g.resizeMu.RLock()
	defer g.resizeMu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()
	slot, ok := g.slotOf[key]
	if !ok {
		return 0, false
	}
	return g.magnitude[slot], true
}

// Search performs a greedy beam search from the entry point, expanding
// via each candidate's neighbors, keeping at most ef candidates.
func (g *Graph) Search(query []float32, k int, filter FilterFunc) ([]SearchResult, error) {
	if len(query) != g.dim {
		return nil, &ErrDimensionMismatch{Expected: g.dim, Actual: len(query)}
	}
	q := query
	if g.metric == Cosine {
		q, _ = normalizeL2(query)
	}

	g.resizeMu.RLock()
	defer g.resizeMu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.entryPoint == -1 || g.count == 0 {
		return nil, nil
	}

	ef := g.ef
	if k > ef {
		ef = k
	}
	candidates := g.beamSearchLocked(q, ef)

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		key := g.keys[c.slot]
		if key == "" {
			continue
		}
		if filter != nil && !filter(key) {
			continue
		}
		results = append(results, SearchResult{Key: key, Distance: c.dist})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Key < results[j].Key
	})
	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

type candidate struct {
	slot int
	dist float32
}

// beamSearchLocked must be called with both locks held. It performs a
// greedy expansion from the entry point, maintaining a visited set and
// a bounded candidate list of size ef.
func (g *Graph) beamSearchLocked(q []float32, ef int) []candidate {
	visited := make(map[int]struct{})
	entryDist := g.dist(g.vectors[g.entryPoint*g.dim:(g.entryPoint+1)*g.dim], q)
	best := &maxHeap{{g.entryPoint, entryDist}}
	heap.Init(best)
	toExplore := &minHeap{{g.entryPoint, entryDist}}
	heap.Init(toExplore)
	visited[g.entryPoint] = struct{}{}

	for toExplore.Len() > 0 {
		cur := heap.Pop(toExplore).(candidate)
		if best.Len() >= ef && cur.dist > (*best)[0].dist {
			break
		}
		for _, n := range g.neighbors[cur.slot] {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			d := g.dist(g.vectors[n*g.dim:(n+1)*g.dim], q)
			if best.Len() < ef || d < (*best)[0].dist {
				heap.Push(toExplore, candidate{n, d})
				heap.Push(best, candidate{n, d})
				if best.Len() > ef {
					heap.Pop(best)
				}
			}
		}
	}

	out := make([]candidate, best.Len())
	copy(out, *best)
	return out
}

func (g *Graph) insertLocked(slot int, key string, unit []float32, mag float32) {
	copy(g.vectors[slot*g.dim:(slot+1)*g.dim], unit)
	g.magnitude[slot] = mag
	g.keys[slot] = key
	g.slotOf[key] = slot
	g.neighbors[slot] = nil

	if g.entryPoint == -1 {
		g.entryPoint = slot
		return
	}

	candidates := g.beamSearchLocked(unit, g.efConstruction)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > g.m {
		candidates = candidates[:g.m]
	}
	for _, c := range candidates {
		if c.slot == slot {
			continue
		}
		g.connectLocked(slot, c.slot)
	}
}

// reconnectLocked removes a node's edges and re-runs insertion at the
// same slot with a new vector, used by ModifyRecord/AddRecord-on-
// existing-key.
func (g *Graph) reconnectLocked(slot int, unit []float32, mag float32) {
	for _, n := range g.neighbors[slot] {
		g.neighbors[n] = removeInt(g.neighbors[n], slot)
	}
	g.neighbors[slot] = nil
	copy(g.vectors[slot*g.dim:(slot+1)*g.dim], unit)
	g.magnitude[slot] = mag

	if g.count <= 1 {
		return
	}
	candidates := g.beamSearchLocked(unit, g.efConstruction)
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })
	if len(candidates) > g.m {
		candidates = candidates[:g.m]
	}
	for _, c := range candidates {
		if c.slot == slot {
			continue
		}
		g.connectLocked(slot, c.slot)
	}
}

func (g *Graph) connectLocked(a, b int) {
	if !containsInt(g.neighbors[a], b) {
		g.neighbors[a] = append(g.neighbors[a], b)
	}
	if !containsInt(g.neighbors[b], a) {
		g.neighbors[b] = append(g.neighbors[b], a)
	}
	g.trimLocked(a)
	g.trimLocked(b)
}

// trimLocked enforces the M-neighbor bound by dropping the farthest
// neighbor (by distance from a's own vector) when over capacity.
func (g *Graph) trimLocked(slot int) {
	if len(g.neighbors[slot]) <= g.m {
		return
	}
	self := g.vectors[slot*g.dim : (slot+1)*g.dim]
	ns := g.neighbors[slot]
	sort.Slice(ns, func(i, j int) bool {
		di := g.dist(self, g.vectors[ns[i]*g.dim:(ns[i]+1)*g.dim])
		dj := g.dist(self, g.vectors[ns[j]*g.dim:(ns[j]+1)*g.dim])
		return di < dj
	})
	dropped := ns[g.m:]
	g.neighbors[slot] = ns[:g.m]
	for _, d := range dropped {
		g.neighbors[d] = removeInt(g.neighbors[d], slot)
	}
}

// storeLocked writes a slot's vector storage without touching adjacency,
// used by LoadGraph to replay a snapshot's key order before the caller
// restores neighbors and entry point directly.
func (g *Graph) storeLocked(slot int, key string, unit []float32, mag float32) {
	copy(g.vectors[slot*g.dim:(slot+1)*g.dim], unit)
	g.magnitude[slot] = mag
	g.keys[slot] = key
	g.slotOf[key] = slot
}

func (g *Graph) allocSlotLocked() (int, bool) {
	if n := len(g.free); n > 0 {
		slot := g.free[n-1]
		g.free = g.free[:n-1]
		return slot, true
	}
	for i, k := range g.keys {
		if k == "" && i < g.capacity {
			return i, true
		}
	}
	return 0, false
}

func (g *Graph) growCapacity() {
	g.resizeMu.Lock()
	defer g.resizeMu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	newCap := g.capacity + g.blockSize
	newVectors := make([]float32, newCap*g.dim)
	copy(newVectors, g.vectors)
	newMag := make([]float32, newCap)
	copy(newMag, g.magnitude)
	newKeys := make([]string, newCap)
	copy(newKeys, g.keys)
	newNeighbors := make([][]int, newCap)
	copy(newNeighbors, g.neighbors)

	g.vectors = newVectors
	g.magnitude = newMag
	g.keys = newKeys
	g.neighbors = newNeighbors
	g.capacity = newCap
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

func removeInt(s []int, v int) []int {
	for i, x := range s {
		if x == v {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// minHeap/maxHeap order candidates by ascending/descending distance.

type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
