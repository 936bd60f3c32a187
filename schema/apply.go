package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/vsdb/vsengine/codec"
	"github.com/vsdb/vsengine/intern"
)

// ErrDecode is returned by Apply when value doesn't decode as a
// document (a JSON-like map of field name to value).
type ErrDecode struct {
	Key string
	Err error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("schema: decoding value for key %q: %v", e.Key, e.Err)
}

func (e *ErrDecode) Unwrap() error { return e.Err }

// ErrFieldDecode is returned by Apply when an attribute's field is
// present but not shaped the way its Kind requires (e.g. a vector
// attribute whose field isn't a numeric array).
type ErrFieldDecode struct {
	Alias string
	Key   string
}

func (e *ErrFieldDecode) Error() string {
	return fmt.Sprintf("schema: attribute %q on key %q has the wrong shape for its kind", e.Alias, e.Key)
}

// Apply materializes value into every attribute index this schema
// owns, the worker-side half of the mutation pipeline's "applies it
// to all attribute indices for that schema" step. A nil value means
// the key was deleted: every attribute drops it. Otherwise value is
// decoded as a document (map of field name to value) and each
// attribute's current field, if present, replaces its prior indexed
// value; if absent, the attribute is dropped for this key the same
// way a deletion would drop it.
func (s *Schema) Apply(ctx context.Context, key string, value []byte) error {
	s.mu.RLock()
	attrs := make([]*Attribute, 0, len(s.attrs))
	for _, a := range s.attrs {
		attrs = append(attrs, a)
	}
	s.mu.RUnlock()

	h := intern.Intern(key)

	if value == nil {
		for _, attr := range attrs {
			s.removeAttribute(h, key, attr)
		}
		return nil
	}

	var doc map[string]any
	if err := codec.Default.Unmarshal(value, &doc); err != nil {
		return &ErrDecode{Key: key, Err: err}
	}

	for _, attr := range attrs {
		field, ok := resolveField(doc, attr)
		if !ok {
			s.removeAttribute(h, key, attr)
			continue
		}
		if err := s.applyAttribute(h, key, attr, field); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) applyAttribute(key intern.Handle, extKey string, attr *Attribute, field any) error {
	switch attr.Kind {
	case KindVector:
		vec, ok := toFloat32Slice(field)
		if !ok {
			return &ErrFieldDecode{Alias: attr.Alias, Key: extKey}
		}
		vidx, ok := s.VectorIndex(attr.Alias)
		if !ok {
			return nil
		}
		_, err := vidx.AddRecord(extKey, vec)
		return err
	case KindNumeric:
		val, ok := toFloat64(field)
		if !ok {
			return &ErrFieldDecode{Alias: attr.Alias, Key: extKey}
		}
		nidx, ok := s.NumericIndex(attr.Alias)
		if !ok {
			return nil
		}
		return nidx.Add(key, val)
	case KindTag:
		raw, ok := toRawTagString(field, attr.Separator)
		if !ok {
			return &ErrFieldDecode{Alias: attr.Alias, Key: extKey}
		}
		tidx, ok := s.TagIndex(attr.Alias)
		if !ok {
			return nil
		}
		tidx.Set(key, raw)
		return nil
	default:
		return nil
	}
}

func (s *Schema) removeAttribute(key intern.Handle, extKey string, attr *Attribute) {
	switch attr.Kind {
	case KindVector:
		if vidx, ok := s.VectorIndex(attr.Alias); ok {
			_ = vidx.RemoveRecord(extKey) // ErrNotFound just means this key never had the attribute
		}
	case KindNumeric:
		if nidx, ok := s.NumericIndex(attr.Alias); ok {
			nidx.RemoveKey(key)
		}
	case KindTag:
		if tidx, ok := s.TagIndex(attr.Alias); ok {
			tidx.Remove(key)
		}
	}
}

// identifierOf resolves the stored-object field name for attr,
// defaulting to its alias when no separate identifier was configured.
func identifierOf(attr *Attribute) string {
	if attr.Identifier == "" {
		return attr.Alias
	}
	return attr.Identifier
}

// resolveField extracts attr's current value from doc: a top-level
// lookup for Hash attributes, a dot-delimited path traversal through
// nested documents for JSON attributes.
func resolveField(doc map[string]any, attr *Attribute) (any, bool) {
	id := identifierOf(attr)
	if attr.DataType != JSON {
		v, ok := doc[id]
		return v, ok
	}

	var cur any = doc
	for _, segment := range strings.Split(id, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toFloat32Slice(v any) ([]float32, bool) {
	arr, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(arr))
	for i, e := range arr {
		f, ok := toFloat64(e)
		if !ok {
			return nil, false
		}
		out[i] = float32(f)
	}
	return out, true
}

// toRawTagString accepts either a single delimited string (parsed by
// the tag index itself) or a JSON array of tag strings, which is
// rejoined with separator before handing it to the tag index.
func toRawTagString(v any, separator string) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []any:
		if separator == "" {
			separator = ","
		}
		parts := make([]string, 0, len(t))
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return "", false
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, separator), true
	default:
		return "", false
	}
}
