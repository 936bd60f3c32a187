// Package planner implements the hybrid query planner and executor:
// it chooses between pre-filtering (enumerate matches, then score) and
// inline filtering (let the vector index consult the predicate per
// candidate) based on an estimated qualified count, then fuses KNN
// with predicate evaluation and applies result windowing.
package planner

import (
	"context"
	"fmt"
	"sort"

	"github.com/vsdb/vsengine/filter"
	"github.com/vsdb/vsengine/intern"
	"github.com/vsdb/vsengine/schema"
	"github.com/vsdb/vsengine/vecindex"
)

// DefaultPreFilterThreshold is the fraction of the total corpus below
// which the planner prefers pre-filtering. Configurable per Query.
const DefaultPreFilterThreshold = 0.01

// Limit windows the sorted result list.
type Limit struct {
	First  int
	Number int
}

// Query is the fully-resolved input to Plan/Execute.
type Query struct {
	Schema            *schema.Schema
	VectorAttribute   string
	QueryVector       []float32
	K                 int
	Predicate         *filter.Predicate // nil or filter.MatchAll means unfiltered
	Limit             Limit
	ScoreAs           string
	ReturnAttributes  []string
	NoContent         bool
	LocalOnly         bool
	PreFilterThreshold float64
}

// Result is one ranked, windowed hit.
type Result struct {
	Key      string
	Distance float32
}

// Plan names which of the two hybrid-search execution paths a query
// took.
type Plan int

const (
	PlanInline Plan = iota
	PlanPreFilter
)

// Reply is the planner's output: the total available neighbor count
// (min(k, matched)) and the windowed result rows.
type Reply struct {
	Total   int
	Plan    Plan
	Results []Result
}

// ErrUnknownVectorAttribute is returned when the query names an alias
// with no vector index.
type ErrUnknownVectorAttribute struct{ Alias string }

func (e *ErrUnknownVectorAttribute) Error() string {
	return fmt.Sprintf("planner: unknown vector attribute %q", e.Alias)
}

// Execute plans and runs q, returning the windowed top-k reply.
func Execute(ctx context.Context, q Query) (*Reply, error) {
	vidx, ok := q.Schema.VectorIndex(q.VectorAttribute)
	if !ok {
		return nil, &ErrUnknownVectorAttribute{Alias: q.VectorAttribute}
	}
	pred := q.Predicate
	if pred == nil {
		pred = filter.MatchAll
	}
	threshold := q.PreFilterThreshold
	if threshold <= 0 {
		threshold = DefaultPreFilterThreshold
	}

	total := vidx.RecordCount()
	var results []Result
	var err error
	plan := PlanInline

	if pred.Kind == filter.KindMatchAll {
		results, err = searchInline(ctx, vidx, q, pred)
	} else {
		est := estimate(pred, q.Schema, total)
		if total > 0 && float64(est) <= threshold*float64(total) {
			plan = PlanPreFilter
			results, err = searchPreFilter(ctx, vidx, q, pred, total)
		} else {
			results, err = searchInline(ctx, vidx, q, pred)
		}
	}
	if err != nil {
		return nil, err
	}

	return windowResults(results, q.K, q.Limit, plan), nil
}

func windowResults(results []Result, k int, limit Limit, plan Plan) *Reply {
	matched := len(results)
	total := matched
	if k < total {
		total = k
	}

	if limit.First >= k {
		return &Reply{Total: total, Plan: plan}
	}
	start := limit.First
	if start > len(results) {
		start = len(results)
	}
	end := start + limit.Number
	if limit.Number <= 0 {
		end = len(results)
	}
	if end > len(results) {
		end = len(results)
	}
	return &Reply{Total: total, Plan: plan, Results: results[start:end]}
}

func sortResults(results []Result) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Key < results[j].Key
	})
}

// searchInline delegates to the vector index's own search with an
// inline evaluator functor consulting the predicate per candidate.
func searchInline(ctx context.Context, vidx vecindex.Index, q Query, pred *filter.Predicate) ([]Result, error) {
	ev := &schemaEvaluator{schema: q.Schema}
	filterFn := func(key string) bool {
		if err := ctx.Err(); err != nil {
			return false
		}
		ev.key = intern.Intern(key)
		return pred.Evaluate(ev)
	}
	if pred.Kind == filter.KindMatchAll {
		filterFn = nil
	}
	raw, err := vidx.Search(q.QueryVector, q.K, filterFn)
	if err != nil {
		return nil, err
	}
	out := make([]Result, len(raw))
	for i, r := range raw {
		out[i] = Result{Key: r.Key, Distance: r.Distance}
	}
	sortResults(out)
	return out, nil
}

// searchPreFilter materializes the predicate's candidate key set, then
// scores each candidate via the vector index's distance function,
// keeping the k best.
func searchPreFilter(ctx context.Context, vidx vecindex.Index, q Query, pred *filter.Predicate, total int) ([]Result, error) {
	universe := universeOf(vidx)
	cand := candidateSet(pred, q.Schema, universe)

	results := make([]Result, 0, len(cand))
	for key := range cand {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		d, err := vidx.ComputeDistance(intern.Value(key), q.QueryVector)
		if err != nil {
			continue // e.g. zero-magnitude cosine vector: no valid distance
		}
		results = append(results, Result{Key: intern.Value(key), Distance: d})
	}
	sortResults(results)
	if q.K < len(results) {
		results = results[:q.K]
	}
	return results, nil
}

func universeOf(vidx vecindex.Index) map[intern.Handle]struct{} {
	keys := vidx.Keys()
	out := make(map[intern.Handle]struct{}, len(keys))
	for _, k := range keys {
		out[intern.Intern(k)] = struct{}{}
	}
	return out
}
