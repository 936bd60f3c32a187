package intern_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/intern"
)

func TestInternEquality(t *testing.T) {
	a := intern.Intern("hello")
	b := intern.Intern("hello")
	c := intern.Intern("world")

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Equal(t, "hello", intern.Value(a))
}

func TestArenaAllocFreeReuse(t *testing.T) {
	a := intern.NewArena(4)

	s1 := a.Alloc([]float32{1, 2, 3, 4})
	require.Equal(t, []float32{1, 2, 3, 4}, a.Get(s1))

	s2 := a.Alloc([]float32{5, 6, 7, 8})
	require.NotEqual(t, s1, s2)

	a.Free(s1)
	s3 := a.Alloc([]float32{9, 10, 11, 12})
	require.Equal(t, s1, s3, "freed slot should be reused")
	require.Equal(t, []float32{9, 10, 11, 12}, a.Get(s3))

	a.Update(s2, []float32{0, 0, 0, 0})
	require.Equal(t, []float32{0, 0, 0, 0}, a.Get(s2))
}
