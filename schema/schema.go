// Package schema owns the mapping from attribute alias to attribute
// identifier and index handle, and the eager-creation / backfill
// lifecycle of an index schema.
package schema

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/vsdb/vsengine/filter"
	"github.com/vsdb/vsengine/numindex"
	"github.com/vsdb/vsengine/tagindex"
	"github.com/vsdb/vsengine/vecindex"
)

// Kind classifies an attribute's index family.
type Kind int

const (
	KindVector Kind = iota
	KindNumeric
	KindTag
)

// AttributeDataType records whether the host object backing an
// attribute is a flat hash field or a path into a JSON-like document.
// It selects the extraction path Apply uses: a top-level field lookup
// for Hash, a dot-delimited path walk for JSON.
type AttributeDataType int

const (
	Hash AttributeDataType = iota
	JSON
)

// Attribute describes one indexed field.
type Attribute struct {
	Alias      string
	Identifier string
	Kind       Kind
	DataType   AttributeDataType

	// Tag-only.
	CaseSensitive bool
	Separator     string

	// Vector-only.
	VectorDim       int
	VectorMetric    vecindex.Metric
	VectorGraph     bool // true: Graph index, false: Flat index
	GraphM          int
	GraphEF         int
	VectorBlockSize int
}

// Schema owns a fixed set of attributes and their index handles for
// one logical index name. Creation is eager: attributes are added up
// front, then Backfill schedules the initial indexing pass over the
// pre-existing key space.
type Schema struct {
	Name string

	mu    sync.RWMutex
	attrs map[string]*Attribute

	vectorIdx  map[string]vecindex.Index
	numericIdx map[string]*numindex.Index
	tagIdx     map[string]*tagindex.Index

	ready atomic.Bool
}

// New creates an empty schema. Not ready until Backfill completes (or
// is explicitly skipped via MarkReady for an empty key space).
func New(name string) *Schema {
	return &Schema{
		Name:       name,
		attrs:      make(map[string]*Attribute),
		vectorIdx:  make(map[string]vecindex.Index),
		numericIdx: make(map[string]*numindex.Index),
		tagIdx:     make(map[string]*tagindex.Index),
	}
}

// ErrDuplicateAttribute is returned by AddAttribute for a repeated alias.
type ErrDuplicateAttribute struct{ Alias string }

func (e *ErrDuplicateAttribute) Error() string {
	return fmt.Sprintf("schema: duplicate attribute alias %q", e.Alias)
}

// AddAttribute registers attr and creates its backing index.
func (s *Schema) AddAttribute(attr Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.attrs[attr.Alias]; exists {
		return &ErrDuplicateAttribute{Alias: attr.Alias}
	}

	switch attr.Kind {
	case KindVector:
		if attr.VectorGraph {
			s.vectorIdx[attr.Alias] = vecindex.NewGraph(vecindex.GraphOptions{
				Dimension: attr.VectorDim,
				Metric:    attr.VectorMetric,
				M:         attr.GraphM,
				EF:        attr.GraphEF,
				BlockSize: attr.VectorBlockSize,
			})
		} else {
			s.vectorIdx[attr.Alias] = vecindex.NewFlat(vecindex.FlatOptions{
				Dimension: attr.VectorDim,
				Metric:    attr.VectorMetric,
				BlockSize: attr.VectorBlockSize,
			})
		}
	case KindNumeric:
		s.numericIdx[attr.Alias] = numindex.New()
	case KindTag:
		var opts []tagindex.Option
		if attr.Separator != "" {
			opts = append(opts, tagindex.WithSeparator(attr.Separator))
		}
		if !attr.CaseSensitive {
			opts = append(opts, tagindex.CaseInsensitive())
		}
		s.tagIdx[attr.Alias] = tagindex.New(opts...)
	}

	a := attr
	s.attrs[attr.Alias] = &a
	return nil
}

// ResolveField implements filter.FieldResolver: it reports whether an
// alias exists and whether it's a Tag or Numeric field (vector fields
// are addressed by the KNN clause, not the predicate language).
func (s *Schema) ResolveField(alias string) (filter.FieldType, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attrs[alias]
	if !ok {
		return 0, false
	}
	switch a.Kind {
	case KindTag:
		return filter.FieldTag, true
	case KindNumeric:
		return filter.FieldNumeric, true
	default:
		return 0, false
	}
}

// Attribute returns the registered attribute for alias.
func (s *Schema) Attribute(alias string) (*Attribute, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attrs[alias]
	return a, ok
}

// VectorIndex returns the vector index handle for alias.
func (s *Schema) VectorIndex(alias string) (vecindex.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.vectorIdx[alias]
	return idx, ok
}

// NumericIndex returns the numeric index handle for alias.
func (s *Schema) NumericIndex(alias string) (*numindex.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.numericIdx[alias]
	return idx, ok
}

// TagIndex returns the tag index handle for alias.
func (s *Schema) TagIndex(alias string) (*tagindex.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.tagIdx[alias]
	return idx, ok
}

// Aliases returns all registered attribute aliases, sorted, for stable
// iteration (backfill, info, persistence).
func (s *Schema) Aliases() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.attrs))
	for a := range s.attrs {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Ready reports whether the initial backfill pass has completed.
// Queries may be served during backfill but may return partial results.
func (s *Schema) Ready() bool { return s.ready.Load() }

// MarkReady flips the ready bit, called once backfill completes (or
// immediately, for a schema created over an empty key space).
func (s *Schema) MarkReady() { s.ready.Store(true) }

// Info is the snapshot surfaced under the host's `info` command.
type Info struct {
	Name       string
	Ready      bool
	Attributes []string
}

func (s *Schema) Info() Info {
	return Info{Name: s.Name, Ready: s.Ready(), Attributes: s.Aliases()}
}
