// Package mutation implements the pipeline that observes key-space
// notifications, coalesces concurrent updates to the same key, and
// dispatches them to a bounded worker pool under optional back-pressure.
package mutation

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Record is the (schema, key) work item. Value is nil for a deletion.
type Record struct {
	SchemaID string
	Key      string
	Value    []byte
}

// Applier applies one record's terminal value to all attribute indices
// for its schema; nil Value means "remove_record".
type Applier func(ctx context.Context, rec Record) error

// slotState tracks a single (schema, key)'s in-flight lifecycle:
// Idle -> Enqueued -> Processing -> {Idle | Enqueued}.
type slotState int

const (
	stateIdle slotState = iota
	stateEnqueued
	stateProcessing
)

type slot struct {
	mu           sync.Mutex
	state        slotState
	pendingAfter *Record // last-writer-wins value awaiting a worker
}

// Config configures a Pipeline.
type Config struct {
	// Workers bounds the writer pool's concurrency.
	Workers int64
	// HighWaterMark, if > 0, enables back-pressure: Notify blocks once
	// the number of enqueued-but-unprocessed slots reaches this count.
	// The default (0) is non-blocking.
	HighWaterMark int64
	// IOLimitPerSec, if > 0, rate-limits the bytes Apply may consume
	// per second (e.g. snapshot-blob writes triggered by mutations),
	// counting each record's Value length; a record larger than one
	// second's allowance is charged one second's allowance.
	IOLimitPerSec int
}

// Pipeline coalesces and dispatches mutation records.
type Pipeline struct {
	apply   Applier
	workers *semaphore.Weighted
	limiter *rate.Limiter

	mu    sync.Mutex
	slots map[string]*slot // key = schemaID + "\x00" + key

	inFlight     int64
	highWater    int64
	backpressure chan struct{}

	// deferred holds per-schema keys collected during a multi-exec
	// batch, drained as a single unit when the batch ends.
	deferredMu sync.Mutex
	deferred   map[string]map[string]struct{} // schemaID -> keys
	inBatch    map[string]bool
}

// New creates a Pipeline bound to apply.
func New(cfg Config, apply Applier) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	p := &Pipeline{
		apply:     apply,
		workers:   semaphore.NewWeighted(cfg.Workers),
		slots:     make(map[string]*slot),
		highWater: cfg.HighWaterMark,
		deferred:  make(map[string]map[string]struct{}),
		inBatch:   make(map[string]bool),
	}
	if cfg.IOLimitPerSec > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.IOLimitPerSec), cfg.IOLimitPerSec)
	}
	if cfg.HighWaterMark > 0 {
		p.backpressure = make(chan struct{}, 1)
	}
	return p
}

func slotKey(schemaID, key string) string {
	return schemaID + "\x00" + key
}

// BeginBatch marks schemaID as inside a multi-exec block: subsequent
// Notify calls for that schema are deferred instead of dispatched
// immediately, preserving the batch's atomicity as observed by indices.
func (p *Pipeline) BeginBatch(schemaID string) {
	p.deferredMu.Lock()
	defer p.deferredMu.Unlock()
	p.inBatch[schemaID] = true
	if p.deferred[schemaID] == nil {
		p.deferred[schemaID] = make(map[string]struct{})
	}
}

// EndBatch drains schemaID's deferred set as a one-shot dispatch.
func (p *Pipeline) EndBatch(ctx context.Context, schemaID string, snapshot func(key string) Record) {
	p.deferredMu.Lock()
	keys := p.deferred[schemaID]
	delete(p.deferred, schemaID)
	delete(p.inBatch, schemaID)
	p.deferredMu.Unlock()

	for key := range keys {
		p.Notify(ctx, snapshot(key))
	}
}

// Notify submits rec for processing, coalescing with any pending value
// already queued for (rec.SchemaID, rec.Key). Runs on the caller's
// thread, matching the "main thread runs the notification handler"
// scheduling model.
func (p *Pipeline) Notify(ctx context.Context, rec Record) {
	p.deferredMu.Lock()
	if p.inBatch[rec.SchemaID] {
		p.deferred[rec.SchemaID][rec.Key] = struct{}{}
		p.deferredMu.Unlock()
		return
	}
	p.deferredMu.Unlock()

	p.dispatch(ctx, rec)
}

func (p *Pipeline) dispatch(ctx context.Context, rec Record) {
	key := slotKey(rec.SchemaID, rec.Key)

	p.mu.Lock()
	s, ok := p.slots[key]
	if !ok {
		s = &slot{}
		p.slots[key] = s
	}
	p.mu.Unlock()

	s.mu.Lock()
	switch s.state {
	case stateIdle:
		s.state = stateEnqueued
		s.pendingAfter = &rec
		s.mu.Unlock()
		go p.runWorker(ctx, key, s)
		p.maybeBlockForBackpressure(ctx)
	default: // Enqueued or Processing: last-writer-wins, no re-enqueue
		s.pendingAfter = &rec
		s.mu.Unlock()
	}
}

func (p *Pipeline) maybeBlockForBackpressure(ctx context.Context) {
	if p.highWater <= 0 {
		return
	}
	// Non-blocking by default; a positive HighWaterMark (a runtime
	// Config value) makes Notify wait until fewer than that many slots
	// are in flight.
	for {
		n := p.currentInFlight()
		if n < p.highWater {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-p.backpressure:
		}
	}
}

func (p *Pipeline) currentInFlight() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	var n int64
	for _, s := range p.slots {
		s.mu.Lock()
		if s.state != stateIdle {
			n++
		}
		s.mu.Unlock()
	}
	return n
}

// runWorker acquires a worker-pool slot, then repeatedly swaps out the
// slot's pendingAfter and applies it, re-processing if a newer value
// arrived while a prior application was in flight.
func (p *Pipeline) runWorker(ctx context.Context, key string, s *slot) {
	if err := p.workers.Acquire(ctx, 1); err != nil {
		s.mu.Lock()
		s.state = stateIdle
		s.mu.Unlock()
		return
	}
	defer p.workers.Release(1)

	for {
		s.mu.Lock()
		s.state = stateProcessing
		rec := s.pendingAfter
		s.pendingAfter = nil
		s.mu.Unlock()

		if rec != nil {
			if p.limiter != nil {
				_ = p.limiter.WaitN(ctx, min(len(rec.Value), p.limiter.Burst()))
			}
			// mutation-pipeline errors are logged by the caller-supplied
			// Applier and do not remove the key from the in-flight slot
			// until this terminal decision is made.
			_ = p.apply(ctx, *rec)
		}

		s.mu.Lock()
		if s.pendingAfter != nil {
			s.mu.Unlock()
			continue // a newer value arrived; re-process
		}
		s.state = stateIdle
		s.mu.Unlock()
		break
	}

	if p.backpressure != nil {
		select {
		case p.backpressure <- struct{}{}:
		default:
		}
	}
}
