package vecindex

import "github.com/vsdb/vsengine/codec"

// flatSnapshot is the opaque kernel blob a Flat index round-trips
// through Save/LoadFlat. It carries the keys and magnitudes alongside
// the unit vectors, so LoadFlat rebuilds the index from this blob alone.
type flatSnapshot struct {
	Dim       int
	Metric    Metric
	BlockSize int
	Keys      []string
	Units     [][]float32
	Magnitude []float32
}

// Save encodes the kernel's keys, unit vectors and magnitudes as an
// opaque blob that LoadFlat reconstructs the index from, independent
// of whatever else the caller stores alongside it.
func (f *Flat) Save() ([]byte, error) {
	f.resizeMu.RLock()
	defer f.resizeMu.RUnlock()
	f.mu.Lock()
	defer f.mu.Unlock()

	snap := flatSnapshot{
		Dim: f.dim, Metric: f.metric, BlockSize: f.blockSize,
	}
	for slot, key := range f.keys {
		if key == "" {
			continue
		}
		row := make([]float32, f.dim)
		copy(row, f.vectors[slot*f.dim:(slot+1)*f.dim])
		snap.Keys = append(snap.Keys, key)
		snap.Units = append(snap.Units, row)
		snap.Magnitude = append(snap.Magnitude, f.magnitude[slot])
	}
	return codec.Default.Marshal(snap)
}

// LoadFlat reconstructs a Flat index from a blob produced by Save.
func LoadFlat(blob []byte) (*Flat, error) {
	var snap flatSnapshot
	if err := codec.Default.Unmarshal(blob, &snap); err != nil {
		return nil, err
	}
	f := NewFlat(FlatOptions{Dimension: snap.Dim, Metric: snap.Metric, BlockSize: snap.BlockSize})
	for i, key := range snap.Keys {
		slot, ok := f.allocSlotLocked()
		if !ok {
			f.growCapacity()
			slot, ok = f.allocSlotLocked()
			if !ok {
				return nil, ErrNotFound
			}
		}
		f.storeLocked(slot, key, snap.Units[i], magnitudeAt(snap.Magnitude, i))
		f.count++
	}
	return f, nil
}

// magnitudeAt returns mags[i], or PendingMagnitude if the snapshot
// predates magnitude tracking and the slice is too short.
func magnitudeAt(mags []float32, i int) float32 {
	if i < len(mags) {
		return mags[i]
	}
	return PendingMagnitude
}

// graphSnapshot is Graph's opaque kernel blob, carrying the beam-search
// adjacency alongside the same key-ordered vector storage as Flat.
type graphSnapshot struct {
	Dim            int
	Metric         Metric
	BlockSize      int
	M, EF, EFConst int
	Seed           int64
	Keys           []string
	Units          [][]float32
	Magnitude      []float32
	Neighbors      [][]int
	EntryPoint     int
}

// Save encodes the graph's adjacency and vector storage as an opaque
// blob, in the same key order LoadGraph expects back.
func (g *Graph) Save() ([]byte, error) {
	g.resizeMu.RLock()
	defer g.resizeMu.RUnlock()
	g.mu.Lock()
	defer g.mu.Unlock()

	snap := graphSnapshot{
		Dim: g.dim, Metric: g.metric, BlockSize: g.blockSize,
		M: g.m, EF: g.ef, EFConst: g.efConstruction, Seed: g.seed,
		EntryPoint: g.entryPoint,
	}
	slotToOrdinal := make(map[int]int)
	for slot, key := range g.keys {
		if key == "" {
			continue
		}
		row := make([]float32, g.dim)
		copy(row, g.vectors[slot*g.dim:(slot+1)*g.dim])
		slotToOrdinal[slot] = len(snap.Keys)
		snap.Keys = append(snap.Keys, key)
		snap.Units = append(snap.Units, row)
		snap.Magnitude = append(snap.Magnitude, g.magnitude[slot])
	}
	snap.Neighbors = make([][]int, len(snap.Keys))
	for slot, ord := range slotToOrdinal {
		remapped := make([]int, 0, len(g.neighbors[slot]))
		for _, n := range g.neighbors[slot] {
			if o, ok := slotToOrdinal[n]; ok {
				remapped = append(remapped, o)
			}
		}
		snap.Neighbors[ord] = remapped
	}
	if ord, ok := slotToOrdinal[g.entryPoint]; ok {
		snap.EntryPoint = ord
	}
	return codec.Default.Marshal(snap)
}

// LoadGraph reconstructs a Graph index from a blob produced by Save.
func LoadGraph(blob []byte) (*Graph, error) {
	var snap graphSnapshot
	if err := codec.Default.Unmarshal(blob, &snap); err != nil {
		return nil, err
	}
	g := NewGraph(GraphOptions{
		Dimension: snap.Dim, Metric: snap.Metric, BlockSize: snap.BlockSize,
		M: snap.M, EF: snap.EF, EFConstruction: snap.EFConst, Seed: snap.Seed,
	})
	ordinalToSlot := make([]int, len(snap.Keys))
	for i, key := range snap.Keys {
		slot, ok := g.allocSlotLocked()
		if !ok {
			g.growCapacity()
			slot, ok = g.allocSlotLocked()
			if !ok {
				return nil, ErrNotFound
			}
		}
		g.storeLocked(slot, key, snap.Units[i], magnitudeAt(snap.Magnitude, i))
		g.count++
		ordinalToSlot[i] = slot
	}
	for ord, slot := range ordinalToSlot {
		neighbors := make([]int, 0, len(snap.Neighbors[ord]))
		for _, n := range snap.Neighbors[ord] {
			neighbors = append(neighbors, ordinalToSlot[n])
		}
		g.neighbors[slot] = neighbors
	}
	if len(ordinalToSlot) > 0 && snap.EntryPoint < len(ordinalToSlot) {
		g.entryPoint = ordinalToSlot[snap.EntryPoint]
	}
	return g, nil
}
