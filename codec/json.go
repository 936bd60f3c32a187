package codec

import (
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Notes:
// - For metadata (map-like structures), JSON is stable and portable.
// - For arbitrary user payloads, JSON works for typical structs/maps/slices.
// - Time, complex numbers, funcs, channels, etc may not be supported.
//
// If you need custom encoding (e.g. protobuf/msgpack), implement Codec and set
// it wherever a schema snapshot is written.
//
// Performance note:
//   - If you need the most portable/lowest-dependency option, use JSON.
//   - Persisted snapshots do not record the codec name; they are always
//     decoded with Default.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the default codec used by the library.
//
// NOTE: Schema snapshots and index blobs are both written and read with
// Default; they do not store the codec name, so a blob written under one
// Default is decoded with whatever Default is at load time.
var Default Codec = GoJSON{}
