package tagindex

import (
	"github.com/vsdb/vsengine/codec"
	"github.com/vsdb/vsengine/intern"
)

// record is the wire shape of one (key, raw tag string) pair.
type record struct {
	Key string
	Raw string
}

// Save encodes every tracked key and its rejoined tag string as an
// opaque blob.
func (idx *Index) Save() ([]byte, error) {
	entries := idx.Entries()
	idx.mu.Lock()
	caseSensitive, sep := idx.caseSensitive, idx.separator
	idx.mu.Unlock()

	recs := make([]record, len(entries))
	for i, e := range entries {
		recs[i] = record{Key: intern.Value(e.Key), Raw: e.Raw}
	}
	return codec.Default.Marshal(struct {
		CaseSensitive bool
		Separator     string
		Entries       []record
	}{caseSensitive, sep, recs})
}

// Load reconstructs a tag index from a blob produced by Save.
func Load(blob []byte) (*Index, error) {
	var snap struct {
		CaseSensitive bool
		Separator     string
		Entries       []record
	}
	if err := codec.Default.Unmarshal(blob, &snap); err != nil {
		return nil, err
	}
	opts := []Option{WithSeparator(snap.Separator)}
	if !snap.CaseSensitive {
		opts = append(opts, CaseInsensitive())
	}
	idx := New(opts...)
	for _, r := range snap.Entries {
		idx.Set(intern.Intern(r.Key), r.Raw)
	}
	return idx, nil
}
