package externalize_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/externalize"
)

func TestMaterializeDenormalizes(t *testing.T) {
	c := externalize.New()
	got := c.Materialize("k", "v", []float32{0.6, 0.8, 0, 0}, 5)
	require.InDeltaSlice(t, []float32{3, 4, 0, 0}, got, 1e-5)
}

func TestLRUCapacityEviction(t *testing.T) {
	c := externalize.New()
	for i := 0; i < 150; i++ {
		key := fmt.Sprintf("k%d", i)
		c.Materialize(key, "v", []float32{1, 0}, 1)
	}
	require.Equal(t, 100, c.Len())
}

func TestRemoveEvicts(t *testing.T) {
	c := externalize.New()
	c.Materialize("k", "v", []float32{1, 0}, 1)
	c.Remove("k", "v")
	require.Equal(t, 0, c.Len())
}
