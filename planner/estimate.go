package planner

import (
	"github.com/vsdb/vsengine/filter"
	"github.com/vsdb/vsengine/intern"
	"github.com/vsdb/vsengine/schema"
)

// estimate computes a cheap qualified-count estimate for pred, per the
// composition rules: And -> min(l, r), Or -> min(total, l + r),
// Negate -> total - estimate(inner).
func estimate(pred *filter.Predicate, s *schema.Schema, total int) int {
	switch pred.Kind {
	case filter.KindMatchAll:
		return total
	case filter.KindTag:
		ti, ok := s.TagIndex(pred.Field)
		if !ok {
			return 0
		}
		return int(ti.Union(pred.Tags).GetCardinality())
	case filter.KindNumeric:
		ni, ok := s.NumericIndex(pred.Field)
		if !ok {
			return 0
		}
		return ni.CountRange(pred.Lo, pred.Hi, pred.LoInc, pred.HiInc)
	case filter.KindAnd:
		l := estimate(pred.Left, s, total)
		r := estimate(pred.Right, s, total)
		return min(l, r)
	case filter.KindOr:
		l := estimate(pred.Left, s, total)
		r := estimate(pred.Right, s, total)
		return min(total, l+r)
	case filter.KindNegate:
		return total - estimate(pred.Inner, s, total)
	default:
		return total
	}
}

// candidateSet materializes the exact set of keys satisfying pred,
// used by the pre-filter execution path. universe is the full set of
// live vector-index keys, needed to answer Negate and MatchAll.
func candidateSet(pred *filter.Predicate, s *schema.Schema, universe map[intern.Handle]struct{}) map[intern.Handle]struct{} {
	switch pred.Kind {
	case filter.KindMatchAll:
		return universe
	case filter.KindTag:
		ti, ok := s.TagIndex(pred.Field)
		if !ok {
			return map[intern.Handle]struct{}{}
		}
		bm := ti.Union(pred.Tags)
		out := make(map[intern.Handle]struct{}, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			ord := it.Next()
			if key, ok := ti.KeyForOrdinal(ord); ok {
				out[key] = struct{}{}
			}
		}
		return out
	case filter.KindNumeric:
		ni, ok := s.NumericIndex(pred.Field)
		if !ok {
			return map[intern.Handle]struct{}{}
		}
		bm := ni.RangeBitmap(pred.Lo, pred.Hi, pred.LoInc, pred.HiInc)
		out := make(map[intern.Handle]struct{}, bm.GetCardinality())
		it := bm.Iterator()
		for it.HasNext() {
			ord := it.Next()
			if key, ok := ni.KeyForOrdinal(ord); ok {
				out[key] = struct{}{}
			}
		}
		return out
	case filter.KindAnd:
		l := candidateSet(pred.Left, s, universe)
		r := candidateSet(pred.Right, s, universe)
		return intersect(l, r)
	case filter.KindOr:
		l := candidateSet(pred.Left, s, universe)
		r := candidateSet(pred.Right, s, universe)
		return union(l, r)
	case filter.KindNegate:
		inner := candidateSet(pred.Inner, s, universe)
		return difference(universe, inner)
	default:
		return map[intern.Handle]struct{}{}
	}
}

func intersect(a, b map[intern.Handle]struct{}) map[intern.Handle]struct{} {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make(map[intern.Handle]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	return out
}

func union(a, b map[intern.Handle]struct{}) map[intern.Handle]struct{} {
	out := make(map[intern.Handle]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func difference(universe, exclude map[intern.Handle]struct{}) map[intern.Handle]struct{} {
	out := make(map[intern.Handle]struct{}, len(universe))
	for k := range universe {
		if _, ok := exclude[k]; !ok {
			out[k] = struct{}{}
		}
	}
	return out
}

// schemaEvaluator implements filter.Evaluator against live schema
// indices, for the inline-filter path's per-candidate functor.
type schemaEvaluator struct {
	schema *schema.Schema
	key    intern.Handle
}

func (e *schemaEvaluator) EvaluateTag(field string, tags []string) bool {
	ti, ok := e.schema.TagIndex(field)
	if !ok {
		return false
	}
	return ti.Matches(e.key, tags)
}

func (e *schemaEvaluator) EvaluateNumeric(field string, lo, hi float64, loInf, hiInf, loInc, hiInc bool) bool {
	ni, ok := e.schema.NumericIndex(field)
	if !ok {
		return false
	}
	return ni.Contains(e.key, lo, hi, loInc, hiInc)
}
