package schema

import "context"

// KeySource enumerates the pre-existing key space at schema creation
// time, so the schema can schedule an initial indexing pass over keys
// written before the schema existed.
type KeySource interface {
	// Keys streams every key currently in the primary key space. The
	// callback returns false to stop iteration early (e.g. deadline).
	Keys(ctx context.Context, yield func(key string) bool) error
}

// Indexer applies one key's current field values to this schema's
// indices; it is the same code path a live mutation uses.
type Indexer func(ctx context.Context, key string) error

// Backfill walks src and applies index to every key, then marks the
// schema ready. Queries are servable throughout — callers decide how
// to reflect partial results while Ready() is false.
func (s *Schema) Backfill(ctx context.Context, src KeySource, index Indexer) error {
	var indexErr error
	walkErr := src.Keys(ctx, func(key string) bool {
		if err := index(ctx, key); err != nil {
			indexErr = err
			return false
		}
		return ctx.Err() == nil
	})
	if indexErr != nil {
		return indexErr
	}
	if walkErr != nil {
		return walkErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.MarkReady()
	return nil
}
