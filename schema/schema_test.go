package schema_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/filter"
	"github.com/vsdb/vsengine/schema"
	"github.com/vsdb/vsengine/vecindex"
)

func newTestSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s := schema.New("idx")
	require.NoError(t, s.AddAttribute(schema.Attribute{
		Alias: "v", Identifier: "v", Kind: schema.KindVector,
		VectorDim: 4, VectorMetric: vecindex.Cosine,
	}))
	require.NoError(t, s.AddAttribute(schema.Attribute{
		Alias: "price", Identifier: "price", Kind: schema.KindNumeric,
	}))
	require.NoError(t, s.AddAttribute(schema.Attribute{
		Alias: "color", Identifier: "color", Kind: schema.KindTag, CaseSensitive: true,
	}))
	return s
}

func TestAddAttributeDuplicate(t *testing.T) {
	s := newTestSchema(t)
	err := s.AddAttribute(schema.Attribute{Alias: "price", Kind: schema.KindNumeric})
	require.Error(t, err)
	var dup *schema.ErrDuplicateAttribute
	require.ErrorAs(t, err, &dup)
}

func TestResolveFieldForFilter(t *testing.T) {
	s := newTestSchema(t)
	ft, ok := s.ResolveField("price")
	require.True(t, ok)
	require.Equal(t, filter.FieldNumeric, ft)

	ft, ok = s.ResolveField("color")
	require.True(t, ok)
	require.Equal(t, filter.FieldTag, ft)

	_, ok = s.ResolveField("nope")
	require.False(t, ok)
}

func TestIndexHandles(t *testing.T) {
	s := newTestSchema(t)
	_, ok := s.VectorIndex("v")
	require.True(t, ok)
	_, ok = s.NumericIndex("price")
	require.True(t, ok)
	_, ok = s.TagIndex("color")
	require.True(t, ok)
}

type fakeKeySource []string

func (f fakeKeySource) Keys(ctx context.Context, yield func(string) bool) error {
	for _, k := range f {
		if !yield(k) {
			break
		}
	}
	return nil
}

func TestBackfillMarksReady(t *testing.T) {
	s := newTestSchema(t)
	require.False(t, s.Ready())

	seen := map[string]bool{}
	err := s.Backfill(context.Background(), fakeKeySource{"a", "b"}, func(ctx context.Context, key string) error {
		seen[key] = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, s.Ready())
	require.Len(t, seen, 2)
}
