package schema_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/intern"
	"github.com/vsdb/vsengine/schema"
)

func TestSnapshotRestoreRoundTrips(t *testing.T) {
	s := newTestSchema(t)

	v, ok := s.VectorIndex("v")
	require.True(t, ok)
	_, err := v.AddRecord("a", []float32{1, 0, 0, 0})
	require.NoError(t, err)

	num, ok := s.NumericIndex("price")
	require.True(t, ok)
	require.NoError(t, num.Add(intern.Intern("a"), 42))

	tag, ok := s.TagIndex("color")
	require.True(t, ok)
	tag.Set(intern.Intern("a"), "red")

	blob, err := s.Snapshot()
	require.NoError(t, err)

	restored := newTestSchema(t)
	require.NoError(t, restored.Restore(blob))

	rv, ok := restored.VectorIndex("v")
	require.True(t, ok)
	require.Equal(t, 1, rv.RecordCount())

	rnum, ok := restored.NumericIndex("price")
	require.True(t, ok)
	require.True(t, rnum.Contains(intern.Intern("a"), 42, 42, true, true))

	rtag, ok := restored.TagIndex("color")
	require.True(t, ok)
	require.True(t, rtag.Matches(intern.Intern("a"), []string{"red"}))
}

func TestRestoreRejectsFingerprintMismatch(t *testing.T) {
	s := newTestSchema(t)
	blob, err := s.Snapshot()
	require.NoError(t, err)

	other := schema.New("idx")
	require.NoError(t, other.AddAttribute(schema.Attribute{
		Alias: "different", Kind: schema.KindNumeric,
	}))

	err = other.Restore(blob)
	require.Error(t, err)
	var fp *schema.ErrFingerprintMismatch
	require.ErrorAs(t, err, &fp)
}

func TestSnapshotEmptySchema(t *testing.T) {
	s := newTestSchema(t)
	blob, err := s.Snapshot()
	require.NoError(t, err)

	restored := newTestSchema(t)
	require.NoError(t, restored.Restore(blob))
	rv, ok := restored.VectorIndex("v")
	require.True(t, ok)
	require.Equal(t, 0, rv.RecordCount())
}
