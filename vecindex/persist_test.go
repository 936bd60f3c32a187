package vecindex_test

import (
	"math"
	"testing"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/vecindex"
)

func TestFlatSaveLoadRoundTrips(t *testing.T) {
	idx := vecindex.NewFlat(vecindex.FlatOptions{Dimension: 3, Metric: vecindex.L2})
	_, err := idx.AddRecord("a", []float32{1, 2, 3})
	require.NoError(t, err)
	_, err = idx.AddRecord("b", []float32{4, 5, 6})
	require.NoError(t, err)

	blob, err := idx.Save()
	require.NoError(t, err)

	restored, err := vecindex.LoadFlat(blob)
	require.NoError(t, err)
	require.Equal(t, idx.RecordCount(), restored.RecordCount())

	res, err := restored.Search([]float32{1, 2, 3}, 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "a", res[0].Key)
}

// A snapshot written before magnitude tracking existed has no
// "Magnitude" field at all; LoadFlat must flag those keys as pending
// rather than defaulting them to zero (a valid magnitude for
// non-cosine metrics).
func TestFlatLoadOldSnapshotFlagsPendingMagnitude(t *testing.T) {
	old := map[string]any{
		"Dim": 2, "Metric": vecindex.L2, "BlockSize": 1024,
		"Keys":  []string{"a"},
		"Units": [][]float32{{3, 4}},
	}
	blob, err := gojson.Marshal(old)
	require.NoError(t, err)

	restored, err := vecindex.LoadFlat(blob)
	require.NoError(t, err)
	mag, ok := restored.Magnitude("a")
	require.True(t, ok)
	require.Equal(t, float32(math.Inf(-1)), mag)
	require.Equal(t, vecindex.PendingMagnitude, mag)
}

func TestGraphSaveLoadPreservesSearchResults(t *testing.T) {
	g := vecindex.NewGraph(vecindex.GraphOptions{Dimension: 4, Metric: vecindex.L2, M: 4, EF: 8, Seed: 7})
	vectors := map[string][]float32{
		"a": {0, 0, 0, 0},
		"b": {1, 1, 1, 1},
		"c": {10, 10, 10, 10},
		"d": {2, 2, 2, 2},
	}
	for _, key := range []string{"a", "b", "c", "d"} {
		_, err := g.AddRecord(key, vectors[key])
		require.NoError(t, err)
	}

	blob, err := g.Save()
	require.NoError(t, err)

	restored, err := vecindex.LoadGraph(blob)
	require.NoError(t, err)
	require.Equal(t, g.RecordCount(), restored.RecordCount())

	want, err := g.Search([]float32{0, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	got, err := restored.Search([]float32{0, 0, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestGraphSaveLoadEmptyIndex(t *testing.T) {
	g := vecindex.NewGraph(vecindex.GraphOptions{Dimension: 3, Metric: vecindex.L2})
	blob, err := g.Save()
	require.NoError(t, err)

	restored, err := vecindex.LoadGraph(blob)
	require.NoError(t, err)
	require.Equal(t, 0, restored.RecordCount())

	res, err := restored.Search([]float32{1, 1, 1}, 1, nil)
	require.NoError(t, err)
	require.Empty(t, res)
}
