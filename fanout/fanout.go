// Package fanout implements the fan-out coordinator: partitioned
// search across cluster peers and bounded K-way merge of per-partition
// top-k. It has no metadata broadcast or reconciliation channel.
package fanout

import (
	"container/heap"
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Neighbor is one scored result from a partition.
type Neighbor struct {
	Key        string
	Distance   float32
	Attributes map[string]string
}

// SearchRequest is the local query converted into a partition request.
type SearchRequest struct {
	RequestID       string
	SerializedQuery []byte // the raw predicate as text or structured form
	QueryVector     []float32
	K               int
	Deadline        time.Time
}

// SearchResponse is one partition's ordered top-k.
type SearchResponse struct {
	Neighbors []Neighbor
}

// Code classifies a partition RPC failure for the retry policy.
type Code int

const (
	OK Code = iota
	Unavailable
	Unknown
	ResourceExhausted
	Internal
	DataLoss
	Other
)

// RPCError carries a Code alongside the underlying error.
type RPCError struct {
	Code Code
	Err  error
}

func (e *RPCError) Error() string { return e.Err.Error() }
func (e *RPCError) Unwrap() error { return e.Err }

func retryable(code Code) bool {
	switch code {
	case Unavailable, Unknown, ResourceExhausted, Internal, DataLoss:
		return true
	default:
		return false
	}
}

// PartitionClient is the abstract per-partition RPC surface. No wire
// protocol is specified; a real cluster deployment implements this
// over whatever transport it already uses.
type PartitionClient interface {
	SearchIndexPartition(ctx context.Context, req SearchRequest) (SearchResponse, error)
}

// Retry policy constants (spec §4.I).
const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 1 * time.Second
	backoffMult    = 1.0
	maxAttempts    = 5
)

// ErrPartialFailure is returned when at least one partition exhausted
// its retries and LocalOnly was not requested.
var ErrPartialFailure = errors.New("fanout: partial failure across partitions")

// Coordinator dispatches a query to a fixed set of partitions and
// merges results.
type Coordinator struct {
	partitions []PartitionClient
	sem        *semaphore.Weighted
}

// New creates a Coordinator over partitions, bounding in-flight RPCs
// to maxInFlight (0 means unbounded).
func New(partitions []PartitionClient, maxInFlight int64) *Coordinator {
	c := &Coordinator{partitions: partitions}
	if maxInFlight > 0 {
		c.sem = semaphore.NewWeighted(maxInFlight)
	}
	return c
}

// Search fans a query out to all partitions, retries transient
// failures per policy, and merges the results into the global top-k.
// If localOnly is true, a partition failure after retries is dropped
// instead of failing the whole query.
func (c *Coordinator) Search(ctx context.Context, query []float32, k int, serializedPredicate []byte, timeout time.Duration, localOnly bool) ([]Neighbor, error) {
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	results := make([][]Neighbor, len(c.partitions))
	failed := make([]bool, len(c.partitions))

	for i, client := range c.partitions {
		i, client := i, client
		g.Go(func() error {
			if c.sem != nil {
				if err := c.sem.Acquire(ctx, 1); err != nil {
					return nil
				}
				defer c.sem.Release(1)
			}
			req := SearchRequest{
				RequestID:       uuid.NewString(),
				SerializedQuery: serializedPredicate,
				QueryVector:     query,
				K:               k,
				Deadline:        deadline,
			}
			resp, err := callWithRetry(ctx, client, req)
			if err != nil {
				failed[i] = true
				if localOnly {
					return nil
				}
				return err
			}
			results[i] = resp.Neighbors
			return nil
		})
	}

	waitErr := g.Wait()

	anyFailed := false
	for _, f := range failed {
		if f {
			anyFailed = true
		}
	}
	if anyFailed && !localOnly {
		if waitErr != nil {
			return nil, ErrPartialFailure
		}
		return nil, ErrPartialFailure
	}

	return mergeTopK(results, k), nil
}

func callWithRetry(ctx context.Context, client PartitionClient, req SearchRequest) (SearchResponse, error) {
	backoff := initialBackoff
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := client.SearchIndexPartition(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) || !retryable(rpcErr.Code) {
			return SearchResponse{}, err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return SearchResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
		next := time.Duration(float64(backoff) * backoffMult)
		if next > maxBackoff {
			next = maxBackoff
		}
		backoff = next
	}
	return SearchResponse{}, lastErr
}

// mergeItem tracks a candidate's origin during the K-way merge.
type mergeItem struct {
	Neighbor
	partition, idx int
}

type mergeHeap []mergeItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].Distance != h[j].Distance {
		return h[i].Distance < h[j].Distance
	}
	return h[i].Key < h[j].Key
}
func (h mergeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// mergeTopK performs a bounded K-way merge of per-partition sorted
// result lists, keeping the global top-k by distance (ties broken by
// lexicographically smaller key).
func mergeTopK(perPartition [][]Neighbor, k int) []Neighbor {
	h := &mergeHeap{}
	for p, list := range perPartition {
		if len(list) > 0 {
			heap.Push(h, mergeItem{Neighbor: list[0], partition: p, idx: 0})
		}
	}
	heap.Init(h)

	out := make([]Neighbor, 0, k)
	for h.Len() > 0 && len(out) < k {
		top := heap.Pop(h).(mergeItem)
		out = append(out, top.Neighbor)

		next := top.idx + 1
		if next < len(perPartition[top.partition]) {
			heap.Push(h, mergeItem{Neighbor: perPartition[top.partition][next], partition: top.partition, idx: next})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		return out[i].Key < out[j].Key
	})
	return out
}
