// Package intern deduplicates strings and provides a fixed-stride slab
// allocator for vector payloads shared by the indices.
package intern

import "unique"

// Handle is a cheap, comparable reference to an interned string. Two
// handles compare equal iff the underlying strings are equal.
type Handle = unique.Handle[string]

// Intern returns the canonical handle for s. Safe for concurrent use;
// the underlying unique package shards its own locking.
func Intern(s string) Handle {
	return unique.Make(s)
}

// Value returns the string held by h.
func Value(h Handle) string {
	return h.Value()
}
