package planner_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/filter"
	"github.com/vsdb/vsengine/intern"
	"github.com/vsdb/vsengine/planner"
	"github.com/vsdb/vsengine/schema"
	"github.com/vsdb/vsengine/vecindex"
)

func buildHybridSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New("idx")
	require.NoError(t, s.AddAttribute(schema.Attribute{
		Alias: "v", Kind: schema.KindVector, VectorDim: 4, VectorMetric: vecindex.L2,
	}))
	require.NoError(t, s.AddAttribute(schema.Attribute{
		Alias: "price", Kind: schema.KindNumeric,
	}))

	vidx, _ := s.VectorIndex("v")
	nidx, _ := s.NumericIndex("price")
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("k%d", i)
		_, err := vidx.AddRecord(key, []float32{float32(i) / 10, 0, 0, 0})
		require.NoError(t, err)
		require.NoError(t, nidx.Add(intern.Intern(key), float64(i)))
	}
	return s
}

func TestHybridRangeFilterPreFilter(t *testing.T) {
	s := buildHybridSchema(t)
	pred, err := filter.Parse("@price:[3 7]", s)
	require.NoError(t, err)

	reply, err := planner.Execute(context.Background(), planner.Query{
		Schema: s, VectorAttribute: "v", QueryVector: []float32{1, 0, 0, 0}, K: 3,
		Predicate: pred, PreFilterThreshold: 1.0, // force pre-filter path
	})
	require.NoError(t, err)
	require.Len(t, reply.Results, 3)
	require.Equal(t, "k7", reply.Results[0].Key)
	require.Equal(t, "k6", reply.Results[1].Key)
	require.Equal(t, "k5", reply.Results[2].Key)
}

func TestHybridRangeFilterInlineFilterAgrees(t *testing.T) {
	s := buildHybridSchema(t)
	pred, err := filter.Parse("@price:[3 7]", s)
	require.NoError(t, err)

	reply, err := planner.Execute(context.Background(), planner.Query{
		Schema: s, VectorAttribute: "v", QueryVector: []float32{1, 0, 0, 0}, K: 3,
		Predicate: pred, PreFilterThreshold: 0, // 0 selects the default 0.01; est 5 > 0.01*10, so the inline path runs
	})
	require.NoError(t, err)
	require.Len(t, reply.Results, 3)
	require.Equal(t, "k7", reply.Results[0].Key)
}

func TestEmptyIndexSearch(t *testing.T) {
	s := schema.New("idx")
	require.NoError(t, s.AddAttribute(schema.Attribute{Alias: "v", Kind: schema.KindVector, VectorDim: 4, VectorMetric: vecindex.Cosine}))

	reply, err := planner.Execute(context.Background(), planner.Query{
		Schema: s, VectorAttribute: "v", QueryVector: []float32{1, 0, 0, 0}, K: 3,
	})
	require.NoError(t, err)
	require.Equal(t, 0, reply.Total)
	require.Empty(t, reply.Results)
}

func TestLimitWindowing(t *testing.T) {
	s := buildHybridSchema(t)
	reply, err := planner.Execute(context.Background(), planner.Query{
		Schema: s, VectorAttribute: "v", QueryVector: []float32{1, 0, 0, 0}, K: 5,
		Limit: planner.Limit{First: 5, Number: 5},
	})
	require.NoError(t, err)
	require.Empty(t, reply.Results)
	require.Equal(t, 5, reply.Total)
}
