// Package tagindex is a set-valued attribute index: each key owns a
// set of tags parsed from a delimited string, looked up via roaring
// bitmap posting lists keyed by (optionally case-folded) tag.
package tagindex

import (
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/vsdb/vsengine/intern"
)

// Index maps folded tag -> posting list of ordinal IDs, and tracks the
// key<->ordinal and ordinal->tag-set bijections needed to remove and
// re-tag a key.
type Index struct {
	mu sync.Mutex

	caseSensitive bool
	separator     string

	postings map[string]*roaring.Bitmap
	ordinal  map[intern.Handle]uint32
	handle   map[uint32]intern.Handle
	tagsOf   map[uint32]map[string]struct{} // folded tags currently held
	next     uint32
}

// Option configures a new Index.
type Option func(*Index)

// WithSeparator overrides the default "," tag separator.
func WithSeparator(sep string) Option {
	return func(idx *Index) { idx.separator = sep }
}

// CaseInsensitive folds tags to lower case at parse time.
func CaseInsensitive() Option {
	return func(idx *Index) { idx.caseSensitive = false }
}

// New creates a tag index. Case-sensitive by default.
func New(opts ...Option) *Index {
	idx := &Index{
		caseSensitive: true,
		separator:     ",",
		postings:      make(map[string]*roaring.Bitmap),
		ordinal:       make(map[intern.Handle]uint32),
		handle:        make(map[uint32]intern.Handle),
		tagsOf:        make(map[uint32]map[string]struct{}),
	}
	for _, o := range opts {
		o(idx)
	}
	return idx
}

// ParseTags splits raw on the index's separator, trims whitespace, and
// case-folds per the index's case sensitivity.
func (idx *Index) ParseTags(raw string) []string {
	parts := strings.Split(raw, idx.separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !idx.caseSensitive {
			p = strings.ToLower(p)
		}
		out = append(out, p)
	}
	return out
}

// fold applies the index's case-sensitivity policy to a single tag,
// e.g. one supplied directly by a parsed predicate.
func (idx *Index) fold(tag string) string {
	if idx.caseSensitive {
		return tag
	}
	return strings.ToLower(tag)
}

// Set replaces key's tag set with the tags parsed from raw.
func (idx *Index) Set(key intern.Handle, raw string) {
	tags := idx.ParseTags(raw)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, ok := idx.ordinal[key]
	if !ok {
		id = idx.next
		idx.next++
		idx.ordinal[key] = id
		idx.handle[id] = key
	} else {
		idx.removeFromPostingsLocked(id)
	}

	set := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		set[tag] = struct{}{}
		bm, ok := idx.postings[tag]
		if !ok {
			bm = roaring.New()
			idx.postings[tag] = bm
		}
		bm.Add(id)
	}
	idx.tagsOf[id] = set
}

// Remove deletes key from the index entirely.
func (idx *Index) Remove(key intern.Handle) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, ok := idx.ordinal[key]
	if !ok {
		return
	}
	idx.removeFromPostingsLocked(id)
	delete(idx.tagsOf, id)
	delete(idx.ordinal, key)
	delete(idx.handle, id)
}

func (idx *Index) removeFromPostingsLocked(id uint32) {
	for tag := range idx.tagsOf[id] {
		if bm, ok := idx.postings[tag]; ok {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(idx.postings, tag)
			}
		}
	}
}

// Posting returns a snapshot (copy-on-write clone) of the posting list
// for a single tag, honoring the index's case-fold policy.
func (idx *Index) Posting(tag string) *roaring.Bitmap {
	tag = idx.fold(tag)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	bm, ok := idx.postings[tag]
	if !ok {
		return roaring.New()
	}
	return bm.Clone()
}

// Union returns the union of the posting lists for the given tags —
// the candidate set for "matches any of these tags".
func (idx *Index) Union(tags []string) *roaring.Bitmap {
	out := roaring.New()
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, tag := range tags {
		if bm, ok := idx.postings[idx.fold(tag)]; ok {
			out.Or(bm)
		}
	}
	return out
}

// Matches reports whether key's tag set intersects tags. Each query
// tag is folded according to the index's case policy before lookup.
func (idx *Index) Matches(key intern.Handle, tags []string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, ok := idx.ordinal[key]
	if !ok {
		return false
	}
	set := idx.tagsOf[id]
	for _, tag := range tags {
		if _, ok := set[idx.fold(tag)]; ok {
			return true
		}
	}
	return false
}

// KeyForOrdinal resolves a posting-list ordinal back to its key handle.
func (idx *Index) KeyForOrdinal(id uint32) (intern.Handle, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	h, ok := idx.handle[id]
	return h, ok
}

// OrdinalOf resolves a key to its posting-list ordinal.
func (idx *Index) OrdinalOf(key intern.Handle) (uint32, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	id, ok := idx.ordinal[key]
	return id, ok
}

// Total returns the number of keys tracked by the index.
func (idx *Index) Total() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.ordinal)
}

// Entry is one key and its tag set rejoined into a delimited string, as
// reported by Entries. The index doesn't retain the exact raw string it
// was Set with, so the rejoined form may differ in whitespace or tag
// order from the original.
type Entry struct {
	Key intern.Handle
	Raw string
}

// Entries returns every tracked key with its tags rejoined by the
// index's separator, for snapshotting.
func (idx *Index) Entries() []Entry {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]Entry, 0, len(idx.ordinal))
	for key, id := range idx.ordinal {
		tags := make([]string, 0, len(idx.tagsOf[id]))
		for tag := range idx.tagsOf[id] {
			tags = append(tags, tag)
		}
		out = append(out, Entry{Key: key, Raw: strings.Join(tags, idx.separator)})
	}
	return out
}
