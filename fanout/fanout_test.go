package fanout_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/fanout"
)

type stubClient struct {
	resp    fanout.SearchResponse
	err     error
	failN   int // fail this many times before succeeding
	calls   int
	errCode fanout.Code
}

func (s *stubClient) SearchIndexPartition(ctx context.Context, req fanout.SearchRequest) (fanout.SearchResponse, error) {
	s.calls++
	if s.calls <= s.failN {
		return fanout.SearchResponse{}, &fanout.RPCError{Code: s.errCode, Err: errors.New("transient")}
	}
	if s.err != nil {
		return fanout.SearchResponse{}, s.err
	}
	return s.resp, nil
}

func TestSearchMergesAcrossPartitions(t *testing.T) {
	a := &stubClient{resp: fanout.SearchResponse{Neighbors: []fanout.Neighbor{
		{Key: "a1", Distance: 0.1},
		{Key: "a2", Distance: 0.5},
	}}}
	b := &stubClient{resp: fanout.SearchResponse{Neighbors: []fanout.Neighbor{
		{Key: "b1", Distance: 0.2},
		{Key: "b2", Distance: 0.6},
	}}}

	c := fanout.New([]fanout.PartitionClient{a, b}, 0)
	results, err := c.Search(context.Background(), []float32{1, 0}, 3, nil, time.Second, false)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.Equal(t, "a1", results[0].Key)
	require.Equal(t, "b1", results[1].Key)
	require.Equal(t, "a2", results[2].Key)
}

func TestSearchRetriesTransientFailure(t *testing.T) {
	a := &stubClient{
		failN:   2,
		errCode: fanout.Unavailable,
		resp:    fanout.SearchResponse{Neighbors: []fanout.Neighbor{{Key: "a1", Distance: 0.1}}},
	}
	c := fanout.New([]fanout.PartitionClient{a}, 0)
	results, err := c.Search(context.Background(), []float32{1, 0}, 1, nil, time.Second, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a1", results[0].Key)
	require.Equal(t, 3, a.calls)
}

func TestSearchPartialFailureWithoutLocalOnly(t *testing.T) {
	ok := &stubClient{resp: fanout.SearchResponse{Neighbors: []fanout.Neighbor{{Key: "a1", Distance: 0.1}}}}
	bad := &stubClient{failN: 10, errCode: fanout.Internal}

	c := fanout.New([]fanout.PartitionClient{ok, bad}, 0)
	_, err := c.Search(context.Background(), []float32{1, 0}, 1, nil, time.Second, false)
	require.ErrorIs(t, err, fanout.ErrPartialFailure)
}

func TestSearchLocalOnlyDropsFailedPartition(t *testing.T) {
	ok := &stubClient{resp: fanout.SearchResponse{Neighbors: []fanout.Neighbor{{Key: "a1", Distance: 0.1}}}}
	bad := &stubClient{failN: 10, errCode: fanout.Internal}

	c := fanout.New([]fanout.PartitionClient{ok, bad}, 0)
	results, err := c.Search(context.Background(), []float32{1, 0}, 5, nil, time.Second, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a1", results[0].Key)
}

func TestSearchNonRetryableFailsImmediately(t *testing.T) {
	bad := &stubClient{failN: 10, errCode: fanout.Other}
	c := fanout.New([]fanout.PartitionClient{bad}, 0)
	_, err := c.Search(context.Background(), []float32{1, 0}, 1, nil, time.Second, false)
	require.Error(t, err)
	require.Equal(t, 1, bad.calls)
}
