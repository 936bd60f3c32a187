// Package vsengine hosts an in-memory vector search engine as an
// extension living inside a key-value store: schemas describe which
// attributes of a key's value are indexed (vector, numeric, tag), a
// mutation pipeline keeps those indices in sync with the keyspace, and
// a hybrid query planner answers KNN searches filtered by predicates
// over the indexed attributes.
package vsengine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vsdb/vsengine/codec"
	"github.com/vsdb/vsengine/config"
	"github.com/vsdb/vsengine/externalize"
	"github.com/vsdb/vsengine/fanout"
	"github.com/vsdb/vsengine/filter"
	"github.com/vsdb/vsengine/mutation"
	"github.com/vsdb/vsengine/planner"
	"github.com/vsdb/vsengine/schema"
	"github.com/vsdb/vsengine/vsmetrics"
)

// Engine owns every schema registered against one keyspace, the
// mutation pipeline that keeps their indices current, and the ambient
// logger/metrics/externalization-cache singletons a real deployment
// would otherwise reach for as package-level globals.
type Engine struct {
	mu       sync.RWMutex
	cfg      config.Config
	logger   *Logger
	metrics  vsmetrics.Collector
	schemas  map[string]*schema.Schema
	externs  *externalize.Cache
	pipeline *mutation.Pipeline
	fanout   *fanout.Coordinator

	// applyRecord dispatches one mutation record to its schema's
	// attribute indices. Defaults to defaultApply; a host may override
	// it with WithApplier for bookkeeping the schema-attribute dispatch
	// alone can't do.
	applyRecord mutation.Applier
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the default no-op logger.
func WithLogger(l *Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics overrides the default no-op metrics collector.
func WithMetrics(m vsmetrics.Collector) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithFanout enables cross-partition search.
func WithFanout(c *fanout.Coordinator) Option {
	return func(e *Engine) { e.fanout = c }
}

// WithApplier overrides the default per-schema attribute dispatch
// (defaultApply) with a host-supplied function, e.g. to add extra
// bookkeeping around a mutation before or after it reaches the
// schema's indices. Most hosts don't need this: schema.Schema.Apply
// already implements step 4 of the mutation pipeline.
func WithApplier(apply mutation.Applier) Option {
	return func(e *Engine) {
		if apply != nil {
			e.applyRecord = apply
		}
	}
}

// New creates an Engine, defaulting the mutation pipeline's applier to
// resolving each record's schema and calling its Apply.
func New(cfg config.Config, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		logger:  NoopLogger(),
		metrics: vsmetrics.NoopCollector{},
		schemas: make(map[string]*schema.Schema),
		externs: externalize.New(),
	}
	e.applyRecord = e.defaultApply
	for _, opt := range opts {
		opt(e)
	}
	e.pipeline = mutation.New(mutation.Config{
		Workers:       e.cfg.WriterPoolSize,
		HighWaterMark: e.cfg.MutationHighWaterMark,
	}, e.instrumentedApply)
	return e
}

// defaultApply resolves rec's schema and applies its value to every
// attribute index the schema owns.
func (e *Engine) defaultApply(ctx context.Context, rec mutation.Record) error {
	s, err := e.Schema(rec.SchemaID)
	if err != nil {
		return err
	}
	return s.Apply(ctx, rec.Key, rec.Value)
}

func (e *Engine) instrumentedApply(ctx context.Context, rec mutation.Record) error {
	start := time.Now()
	err := e.applyRecord(ctx, rec)
	dur := time.Since(start)
	e.metrics.RecordMutation(dur, err)
	e.logger.LogMutation(ctx, rec.SchemaID, rec.Key, rec.Value == nil, dur, err)
	return err
}

// CreateSchema registers a new named schema. The returned Schema is
// then populated with attributes via AddAttribute.
func (e *Engine) CreateSchema(name string) (*schema.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.schemas[name]; exists {
		return nil, translateError("CreateSchema", &conflictError{msg: fmt.Sprintf("schema %q already exists", name)})
	}
	s := schema.New(name)
	e.schemas[name] = s
	return s, nil
}

// DropSchema removes a schema and its indices.
func (e *Engine) DropSchema(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.schemas[name]; !ok {
		return translateError("DropSchema", &notFoundError{msg: fmt.Sprintf("schema %q not found", name)})
	}
	delete(e.schemas, name)
	return nil
}

// Schema looks up a registered schema by name.
func (e *Engine) Schema(name string) (*schema.Schema, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s, ok := e.schemas[name]
	if !ok {
		return nil, translateError("Schema", &notFoundError{msg: fmt.Sprintf("schema %q not found", name)})
	}
	return s, nil
}

// Schemas lists every registered schema name.
func (e *Engine) Schemas() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.schemas))
	for name := range e.schemas {
		names = append(names, name)
	}
	return names
}

// DefaultIndexer returns a schema.Indexer that reads a key's current
// value via valueOf and applies it through schemaName's attribute
// indices — the same dispatch a live Notify uses. Hosts only need to
// supply how to read a key's raw value from the primary key space;
// everything after that is schema.Schema.Apply.
func (e *Engine) DefaultIndexer(schemaName string, valueOf func(ctx context.Context, key string) ([]byte, error)) (schema.Indexer, error) {
	s, err := e.Schema(schemaName)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, key string) error {
		value, err := valueOf(ctx, key)
		if err != nil {
			return err
		}
		return s.Apply(ctx, key, value)
	}, nil
}

// Backfill runs a schema's initial index population synchronously.
func (e *Engine) Backfill(ctx context.Context, schemaName string, src schema.KeySource, index schema.Indexer) error {
	s, err := e.Schema(schemaName)
	if err != nil {
		return err
	}
	start := time.Now()
	n := 0
	counted := func(ctx context.Context, key string) error {
		n++
		return index(ctx, key)
	}
	err = s.Backfill(ctx, src, counted)
	dur := time.Since(start)
	e.metrics.RecordBackfill(n, dur, err)
	e.logger.LogBackfill(ctx, schemaName, n, dur, err)
	if err != nil {
		return translateError("Backfill", err)
	}
	return nil
}

// Notify submits a key-space change to be applied to schemaName's
// indices. Value nil means the key was deleted.
func (e *Engine) Notify(ctx context.Context, schemaName, key string, value []byte) {
	e.pipeline.Notify(ctx, mutation.Record{SchemaID: schemaName, Key: key, Value: value})
}

// BeginBatch defers Notify dispatch for schemaName until EndBatch,
// coalescing a multi-exec transaction's writes into one pass.
func (e *Engine) BeginBatch(schemaName string) {
	e.pipeline.BeginBatch(schemaName)
}

// EndBatch drains schemaName's deferred keys, resolving each one's
// current value through snapshot.
func (e *Engine) EndBatch(ctx context.Context, schemaName string, snapshot func(key string) []byte) {
	e.pipeline.EndBatch(ctx, schemaName, func(key string) mutation.Record {
		return mutation.Record{SchemaID: schemaName, Key: key, Value: snapshot(key)}
	})
}

// Search executes a hybrid KNN query against a schema's vector
// attribute, resolving an optional filter expression against the
// schema's other indexed attributes.
func (e *Engine) Search(ctx context.Context, schemaName, vectorAttribute string, queryVector []float32, k int, filterExpr string, opts ...QueryOption) (*planner.Reply, error) {
	s, err := e.Schema(schemaName)
	if err != nil {
		return nil, err
	}

	q := planner.Query{
		Schema:             s,
		VectorAttribute:    vectorAttribute,
		QueryVector:        queryVector,
		K:                  k,
		Limit:              planner.Limit{First: 0, Number: k},
		PreFilterThreshold: e.cfg.PreFilterThreshold,
	}
	for _, opt := range opts {
		opt(&q)
	}

	if filterExpr != "" {
		pred, perr := filter.Parse(filterExpr, s)
		if perr != nil {
			return nil, translateError("Search", perr)
		}
		q.Predicate = pred
	}

	start := time.Now()
	reply, err := planner.Execute(ctx, q)
	dur := time.Since(start)

	plan := vsmetrics.PlanInline
	matched := 0
	if reply != nil {
		matched = reply.Total
		if reply.Plan == planner.PlanPreFilter {
			plan = vsmetrics.PlanPreFilter
		}
	}
	e.metrics.RecordSearch(plan, matched, dur, err)
	e.logger.LogSearch(ctx, plan.String(), k, matched, dur, err)

	if err != nil {
		return nil, translateError("Search", err)
	}

	if e.fanout != nil && !q.LocalOnly {
		reply, err = e.mergeRemote(ctx, reply, q, schemaName, vectorAttribute, filterExpr)
		if err != nil {
			return nil, translateError("Search", err)
		}
	}
	return reply, nil
}

// fanoutQuery is the wire shape handed to remote partitions: enough for
// a peer to re-resolve the same schema attribute and predicate locally
// without re-parsing the caller's original request.
type fanoutQuery struct {
	Schema          string
	VectorAttribute string
	FilterExpr      string
}

// mergeRemote fans the query out to remote partitions and merges their
// top-k into the local reply, re-windowing the combined set.
func (e *Engine) mergeRemote(ctx context.Context, local *planner.Reply, q planner.Query, schemaName, vectorAttribute, filterExpr string) (*planner.Reply, error) {
	serialized, err := codec.Default.Marshal(fanoutQuery{Schema: schemaName, VectorAttribute: vectorAttribute, FilterExpr: filterExpr})
	if err != nil {
		return local, nil // degrade to local-only rather than fail the query over an encoding error
	}

	start := time.Now()
	remote, err := e.fanout.Search(ctx, q.QueryVector, q.K, serialized, e.cfg.PartitionTimeout, false)
	dur := time.Since(start)
	e.logger.LogFanout(ctx, 1, 0, dur, err)
	if err != nil {
		return local, nil // degrade to local-only results rather than fail the query
	}

	combined := make([]planner.Result, 0, len(local.Results)+len(remote))
	combined = append(combined, local.Results...)
	for _, n := range remote {
		combined = append(combined, planner.Result{Key: n.Key, Distance: n.Distance})
	}
	sort.Slice(combined, func(i, j int) bool {
		if combined[i].Distance != combined[j].Distance {
			return combined[i].Distance < combined[j].Distance
		}
		return combined[i].Key < combined[j].Key
	})
	if q.K < len(combined) {
		combined = combined[:q.K]
	}
	return &planner.Reply{Total: len(combined), Plan: local.Plan, Results: combined}, nil
}

// QueryOption customizes a single Search call.
type QueryOption func(*planner.Query)

// WithLimit windows the result set the way the host's paging option
// does: skip First results, return up to Number more.
func WithLimit(first, number int) QueryOption {
	return func(q *planner.Query) { q.Limit = planner.Limit{First: first, Number: number} }
}

// WithScoreAs names the synthetic score attribute reported alongside
// each result, mirroring the host's projection surface.
func WithScoreAs(name string) QueryOption {
	return func(q *planner.Query) { q.ScoreAs = name }
}

// WithReturnAttributes limits which attributes are projected back.
func WithReturnAttributes(aliases ...string) QueryOption {
	return func(q *planner.Query) { q.ReturnAttributes = aliases }
}

// WithNoContent suppresses attribute projection entirely.
func WithNoContent() QueryOption {
	return func(q *planner.Query) { q.NoContent = true }
}

// WithLocalOnly restricts a search to this node's partition, skipping
// fan-out even when a Coordinator is configured.
func WithLocalOnly() QueryOption {
	return func(q *planner.Query) { q.LocalOnly = true }
}

// WithPreFilterThreshold overrides the engine default for one query.
func WithPreFilterThreshold(threshold float64) QueryOption {
	return func(q *planner.Query) { q.PreFilterThreshold = threshold }
}

// Materialize denormalizes a cached vector attribute for projection
// into a search reply, going through the shared LRU cache.
func (e *Engine) Materialize(key, attribute string, unit []float32, magnitude float32) []float32 {
	return e.externs.Materialize(key, attribute, unit, magnitude)
}

// Info is a snapshot of the engine's live configuration and state,
// mirroring what a host would expose through an "info"-style command.
type Info struct {
	PreFilterThreshold       float64
	ReaderPoolSize           int64
	WriterPoolSize           int64
	BlockSize                int
	ExternalizationCacheSize int
	DefaultEFRuntime         int
	SchemaCount              int
	ExternalizationCacheLen  int
}

// Info returns a snapshot of the engine's configuration and state.
func (e *Engine) Info() Info {
	e.mu.RLock()
	n := len(e.schemas)
	e.mu.RUnlock()

	return Info{
		PreFilterThreshold:       e.cfg.PreFilterThreshold,
		ReaderPoolSize:           e.cfg.ReaderPoolSize,
		WriterPoolSize:           e.cfg.WriterPoolSize,
		BlockSize:                e.cfg.BlockSize,
		ExternalizationCacheSize: e.cfg.ExternalizationCacheSize,
		DefaultEFRuntime:         e.cfg.DefaultEFRuntime,
		SchemaCount:              n,
		ExternalizationCacheLen:  e.externs.Len(),
	}
}
