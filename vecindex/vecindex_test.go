package vecindex_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/vecindex"
)

func TestFlatExactMatch(t *testing.T) {
	idx := vecindex.NewFlat(vecindex.FlatOptions{Dimension: 4, Metric: vecindex.Cosine})
	_, err := idx.AddRecord("a", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	res, err := idx.Search([]float32{1, 0, 0, 0}, 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Equal(t, "a", res[0].Key)
	require.InDelta(t, 0, res[0].Distance, 1e-6)
}

func TestFlatEmptyIndexSearch(t *testing.T) {
	idx := vecindex.NewFlat(vecindex.FlatOptions{Dimension: 4, Metric: vecindex.Cosine})
	res, err := idx.Search([]float32{1, 0, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestFlatAddModifyRemoveRestoresState(t *testing.T) {
	idx := vecindex.NewFlat(vecindex.FlatOptions{Dimension: 4, Metric: vecindex.L2})
	before := idx.RecordCount()

	_, err := idx.AddRecord("k", []float32{1, 2, 3, 4})
	require.NoError(t, err)
	changed, err := idx.ModifyRecord("k", []float32{5, 6, 7, 8})
	require.NoError(t, err)
	require.True(t, changed)
	require.NoError(t, idx.RemoveRecord("k"))

	require.Equal(t, before, idx.RecordCount())
}

func TestFlatModifyNoopWhenSame(t *testing.T) {
	idx := vecindex.NewFlat(vecindex.FlatOptions{Dimension: 2, Metric: vecindex.L2})
	_, _ = idx.AddRecord("k", []float32{1, 2})
	changed, err := idx.ModifyRecord("k", []float32{1, 2})
	require.NoError(t, err)
	require.False(t, changed)
}

func TestFlatDimensionMismatch(t *testing.T) {
	idx := vecindex.NewFlat(vecindex.FlatOptions{Dimension: 4, Metric: vecindex.L2})
	_, err := idx.AddRecord("k", []float32{1, 2})
	require.Error(t, err)
	var dm *vecindex.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
}

func TestFlatGrowsBeyondInitialBlockSize(t *testing.T) {
	idx := vecindex.NewFlat(vecindex.FlatOptions{Dimension: 2, Metric: vecindex.L2, BlockSize: 2})
	for i := 0; i < 10; i++ {
		key := string(rune('a' + i))
		_, err := idx.AddRecord(key, []float32{float32(i), float32(i)})
		require.NoError(t, err)
	}
	require.Equal(t, 10, idx.RecordCount())
}

func TestCosineDenormalizeRoundTrip(t *testing.T) {
	v := []float32{3, 4, 0, 0}
	idx := vecindex.NewFlat(vecindex.FlatOptions{Dimension: 4, Metric: vecindex.Cosine})
	_, err := idx.AddRecord("k", v)
	require.NoError(t, err)

	mag, ok := idx.Magnitude("k")
	require.True(t, ok)

	res, err := idx.Search(v, 1, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)

	// the search above confirms the record is stored; check the
	// denormalize formula directly against the known unit vector.
	unit := []float32{0.6, 0.8, 0, 0}
	got := vecindex.Denormalize(unit, mag)
	for i := range v {
		require.InDelta(t, v[i], got[i], 1e-5)
	}
}

func TestGraphInsertAndSearch(t *testing.T) {
	idx := vecindex.NewGraph(vecindex.GraphOptions{Dimension: 4, Metric: vecindex.L2, M: 4, EF: 16})
	for i := 0; i < 20; i++ {
		key := string(rune('a' + i))
		_, err := idx.AddRecord(key, []float32{float32(i), 0, 0, 0})
		require.NoError(t, err)
	}
	res, err := idx.Search([]float32{5, 0, 0, 0}, 3, nil)
	require.NoError(t, err)
	require.Len(t, res, 3)
	require.Equal(t, string(rune('a'+5)), res[0].Key)
}

func TestGraphRemoveRecord(t *testing.T) {
	idx := vecindex.NewGraph(vecindex.GraphOptions{Dimension: 2, Metric: vecindex.L2, M: 4})
	_, _ = idx.AddRecord("a", []float32{0, 0})
	_, _ = idx.AddRecord("b", []float32{1, 1})
	require.NoError(t, idx.RemoveRecord("a"))
	require.Equal(t, 1, idx.RecordCount())
}
