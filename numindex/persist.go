package numindex

import (
	"github.com/vsdb/vsengine/codec"
	"github.com/vsdb/vsengine/intern"
)

// record is the wire shape of one (key, value) pair; intern.Handle
// itself isn't serializable, so the key crosses the blob as its
// canonical string.
type record struct {
	Key   string
	Value float64
}

// Save encodes every tracked (key, value) pair as an opaque blob.
func (idx *Index) Save() ([]byte, error) {
	entries := idx.Entries()
	recs := make([]record, len(entries))
	for i, e := range entries {
		recs[i] = record{Key: intern.Value(e.Key), Value: e.Value}
	}
	return codec.Default.Marshal(recs)
}

// Load reconstructs a numeric index from a blob produced by Save.
func Load(blob []byte) (*Index, error) {
	var recs []record
	if err := codec.Default.Unmarshal(blob, &recs); err != nil {
		return nil, err
	}
	idx := New()
	for _, r := range recs {
		if err := idx.Add(intern.Intern(r.Key), r.Value); err != nil {
			return nil, err
		}
	}
	return idx, nil
}
