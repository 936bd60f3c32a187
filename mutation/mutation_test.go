package mutation_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vsdb/vsengine/mutation"
)

func TestCoalescingKeepsLastWriterWins(t *testing.T) {
	var mu sync.Mutex
	var applied []string
	gate := make(chan struct{})
	started := make(chan struct{}, 1)

	applier := func(ctx context.Context, rec mutation.Record) error {
		select {
		case started <- struct{}{}:
			<-gate // hold the first application open so later notifies coalesce
		default:
		}
		mu.Lock()
		applied = append(applied, string(rec.Value))
		mu.Unlock()
		return nil
	}

	p := mutation.New(mutation.Config{Workers: 1}, applier)
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		p.Notify(ctx, mutation.Record{SchemaID: "s", Key: "x", Value: []byte{byte(i)}})
	}
	close(gate)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) >= 1 && string(applied[len(applied)-1]) == string([]byte{999 % 256})
	}, 2*time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.LessOrEqual(t, len(applied), 2, "coalescing should collapse most of the 1000 notifications")
	require.Equal(t, byte(999%256), applied[len(applied)-1][0])
}

func TestBatchDeferredDrain(t *testing.T) {
	var mu sync.Mutex
	var applied []string

	applier := func(ctx context.Context, rec mutation.Record) error {
		mu.Lock()
		applied = append(applied, rec.Key)
		mu.Unlock()
		return nil
	}
	p := mutation.New(mutation.Config{Workers: 2}, applier)
	ctx := context.Background()

	p.BeginBatch("s")
	p.Notify(ctx, mutation.Record{SchemaID: "s", Key: "a"})
	p.Notify(ctx, mutation.Record{SchemaID: "s", Key: "b"})

	mu.Lock()
	require.Empty(t, applied, "deferred set should not dispatch until batch ends")
	mu.Unlock()

	p.EndBatch(ctx, "s", func(key string) mutation.Record {
		return mutation.Record{SchemaID: "s", Key: key}
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(applied) == 2
	}, time.Second, time.Millisecond)
}

func TestDeletionAppliesNilValue(t *testing.T) {
	var got *mutation.Record
	var mu sync.Mutex
	applier := func(ctx context.Context, rec mutation.Record) error {
		mu.Lock()
		r := rec
		got = &r
		mu.Unlock()
		return nil
	}
	p := mutation.New(mutation.Config{Workers: 1}, applier)
	p.Notify(context.Background(), mutation.Record{SchemaID: "s", Key: "x", Value: nil})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, time.Second, time.Millisecond)
	require.Nil(t, got.Value)
}
