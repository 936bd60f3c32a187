package schema

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/vsdb/vsengine/codec"
	"github.com/vsdb/vsengine/numindex"
	"github.com/vsdb/vsengine/tagindex"
	"github.com/vsdb/vsengine/vecindex"
)

// schemaVersion/encodingVersion are bumped independently: schemaVersion
// tracks the Attribute shape, encodingVersion the wire layout of the
// blob itself. A restore whose versions don't match this build's is
// rejected rather than guessed at.
const (
	schemaVersion   = 1
	encodingVersion = 1
)

// ErrVersionMismatch is returned by Restore for a blob written by an
// incompatible schema or encoding version.
type ErrVersionMismatch struct {
	Field    string
	Got      int
	Expected int
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("schema: %s mismatch: blob has %d, expected %d", e.Field, e.Got, e.Expected)
}

// ErrFingerprintMismatch is returned by Restore when the blob's
// attribute set doesn't match the schema it's being restored into.
type ErrFingerprintMismatch struct{}

func (e *ErrFingerprintMismatch) Error() string {
	return "schema: fingerprint mismatch: blob attributes don't match schema"
}

type attributeSnapshot struct {
	Attribute Attribute
	Kernel    []byte // vector: kernel blob from Save (dim, metric, block size, keys, unit vectors, magnitudes; graph adds its parameters and adjacency)
	Entries   []byte // numeric/tag: (key, value) or (key, raw tag string) pairs
}

type snapshot struct {
	SchemaVersion   int
	EncodingVersion int
	Fingerprint     uint64
	Name            string
	Attributes      []attributeSnapshot
}

// fingerprint hashes the schema's attribute set (alias and kind, not
// live data) so Restore can refuse a blob that belongs to a
// structurally different schema. Callers must hold s.mu (shared or
// exclusive).
func (s *Schema) fingerprint() uint64 {
	aliases := make([]string, 0, len(s.attrs))
	for a := range s.attrs {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)
	h := fnv.New64a()
	for _, alias := range aliases {
		fmt.Fprintf(h, "%s:%d;", alias, s.attrs[alias].Kind)
	}
	return h.Sum64()
}

// Snapshot encodes the schema's live index contents into a compressed
// blob: a header naming the schema/encoding versions and a fingerprint
// of the attribute set, followed by each attribute's index dump. Vector
// attributes delegate to their kernel's own Save; numeric and tag
// attributes are dumped as (key, value) and (key, raw tag) pairs.
func (s *Schema) Snapshot() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	aliases := make([]string, 0, len(s.attrs))
	for a := range s.attrs {
		aliases = append(aliases, a)
	}
	sort.Strings(aliases)

	snap := snapshot{
		SchemaVersion:   schemaVersion,
		EncodingVersion: encodingVersion,
		Fingerprint:     s.fingerprint(),
		Name:            s.Name,
	}
	for _, alias := range aliases {
		attr := *s.attrs[alias]
		entry := attributeSnapshot{Attribute: attr}
		switch attr.Kind {
		case KindVector:
			blob, err := s.vectorIdx[alias].Save()
			if err != nil {
				return nil, fmt.Errorf("schema: save vector attribute %q: %w", alias, err)
			}
			entry.Kernel = blob
		case KindNumeric:
			blob, err := s.numericIdx[alias].Save()
			if err != nil {
				return nil, fmt.Errorf("schema: save numeric attribute %q: %w", alias, err)
			}
			entry.Entries = blob
		case KindTag:
			blob, err := s.tagIdx[alias].Save()
			if err != nil {
				return nil, fmt.Errorf("schema: save tag attribute %q: %w", alias, err)
			}
			entry.Entries = blob
		}
		snap.Attributes = append(snap.Attributes, entry)
	}

	raw, err := codec.Default.Marshal(snap)
	if err != nil {
		return nil, err
	}
	return compress(raw)
}

// Restore replaces every live attribute index with the contents of
// blob, which must have been produced by Snapshot against a
// structurally identical schema (same attribute aliases and kinds,
// registered via AddAttribute before calling Restore). The fingerprint
// is checked before any index is touched; each vector index is then
// rebuilt from its kernel blob, which carries the keys and magnitudes
// itself. Magnitudes absent from an older snapshot are flagged with
// vecindex.PendingMagnitude and recomputed the next time that key is
// written.
func (s *Schema) Restore(blob []byte) error {
	raw, err := decompress(blob)
	if err != nil {
		return err
	}
	var snap snapshot
	if err := codec.Default.Unmarshal(raw, &snap); err != nil {
		return err
	}
	if snap.SchemaVersion != schemaVersion {
		return &ErrVersionMismatch{Field: "schema_version", Got: snap.SchemaVersion, Expected: schemaVersion}
	}
	if snap.EncodingVersion != encodingVersion {
		return &ErrVersionMismatch{Field: "encoding_version", Got: snap.EncodingVersion, Expected: encodingVersion}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Fingerprint != s.fingerprint() {
		return &ErrFingerprintMismatch{}
	}

	for _, entry := range snap.Attributes {
		alias := entry.Attribute.Alias
		switch entry.Attribute.Kind {
		case KindVector:
			idx, err := loadVectorKernel(entry.Attribute, entry.Kernel)
			if err != nil {
				return fmt.Errorf("schema: restore vector attribute %q: %w", alias, err)
			}
			s.vectorIdx[alias] = idx
		case KindNumeric:
			idx, err := numindex.Load(entry.Entries)
			if err != nil {
				return fmt.Errorf("schema: restore numeric attribute %q: %w", alias, err)
			}
			s.numericIdx[alias] = idx
		case KindTag:
			idx, err := tagindex.Load(entry.Entries)
			if err != nil {
				return fmt.Errorf("schema: restore tag attribute %q: %w", alias, err)
			}
			s.tagIdx[alias] = idx
		}
	}
	return nil
}

func loadVectorKernel(attr Attribute, blob []byte) (vecindex.Index, error) {
	if attr.VectorGraph {
		return vecindex.LoadGraph(blob)
	}
	return vecindex.LoadFlat(blob)
}

func compress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

func decompress(blob []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(blob, nil)
}
