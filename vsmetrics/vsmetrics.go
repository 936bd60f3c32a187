// Package vsmetrics defines the operational metrics surface an Engine
// reports through: hybrid search, mutation, and backfill counters.
// Implement Collector to integrate with a monitoring system, or embed
// NoopCollector where metrics are not needed.
package vsmetrics

import "time"

// PlanKind identifies which of the two hybrid-search execution paths
// the planner chose.
type PlanKind int

const (
	PlanInline PlanKind = iota
	PlanPreFilter
)

func (k PlanKind) String() string {
	if k == PlanPreFilter {
		return "pre_filter"
	}
	return "inline"
}

// Collector receives operational events from an Engine. Implementations
// must be safe for concurrent use.
type Collector interface {
	// RecordSearch is called after each hybrid search, whichever plan
	// was chosen.
	RecordSearch(plan PlanKind, matched int, duration time.Duration, err error)

	// RecordMutation is called after a mutation record is applied to
	// all of a schema's attribute indices.
	RecordMutation(duration time.Duration, err error)

	// RecordCoalesce counts a pending mutation overwritten by a newer
	// one before a worker picks it up. Engine does not call it; the
	// mutation pipeline reports no coalescing events.
	RecordCoalesce()

	// RecordBackfill is called once a schema's backfill sweep finishes.
	RecordBackfill(keys int, duration time.Duration, err error)

	// RecordFanout records a completed cross-partition search. Engine
	// does not call it; fan-out searches are reported only through the
	// Logger's LogFanout.
	RecordFanout(partitions, failed int, duration time.Duration)
}

// NoopCollector discards every event.
type NoopCollector struct{}

func (NoopCollector) RecordSearch(PlanKind, int, time.Duration, error) {}
func (NoopCollector) RecordMutation(time.Duration, error)              {}
func (NoopCollector) RecordCoalesce()                                  {}
func (NoopCollector) RecordBackfill(int, time.Duration, error)         {}
func (NoopCollector) RecordFanout(int, int, time.Duration)             {}
