// Package config holds the tunables that shape an Engine's runtime
// behavior: pool sizes, block sizing, and the hybrid query planner's
// pre-filter threshold. It follows the functional-options pattern
// throughout this codebase's constructors.
package config

import "time"

// Config collects the environment-level knobs an Engine reads at
// construction time. Zero value is not valid; use New.
type Config struct {
	// PreFilterThreshold is the fraction of the total record count
	// below which the planner materializes an exact candidate set
	// before scoring, rather than filtering inline during the search.
	PreFilterThreshold float64

	// ReaderPoolSize is the configured reader pool size. Engine.Info
	// reports it; Engine.Search does not bound concurrent queries by it.
	ReaderPoolSize int64

	// WriterPoolSize bounds the mutation pipeline's worker pool.
	WriterPoolSize int64

	// MutationHighWaterMark, if > 0, makes Notify block once this many
	// (schema, key) slots are enqueued but not yet applied.
	MutationHighWaterMark int64

	// BlockSize is the configured vector-index growth increment.
	// Engine.Info reports it; vector indices take their growth
	// increment from each attribute's VectorBlockSize, not from here.
	BlockSize int

	// ExternalizationCacheSize is the configured LRU capacity for
	// denormalized vector materialization. Engine.Info reports it; the
	// Engine's externalization cache has a fixed capacity of 100
	// regardless of this value.
	ExternalizationCacheSize int

	// DefaultEFRuntime is the configured graph search beam width.
	// Engine.Info reports it; graph indices take their beam width from
	// each attribute's GraphEF, not from here.
	DefaultEFRuntime int

	// PartitionTimeout bounds a single fan-out round trip.
	PartitionTimeout time.Duration
}

// Option mutates a Config during construction.
type Option func(*Config)

// New builds a Config from defaults, applying opts in order.
func New(opts ...Option) Config {
	c := Config{
		PreFilterThreshold:       0.01,
		ReaderPoolSize:           0, // 0 means unbounded
		WriterPoolSize:           4,
		MutationHighWaterMark:    0,
		BlockSize:                1024,
		ExternalizationCacheSize: 100,
		DefaultEFRuntime:         64,
		PartitionTimeout:         5 * time.Second,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithPreFilterThreshold overrides the planner's default pre-filter
// threshold. Values outside (0, 1] fall back to the default.
func WithPreFilterThreshold(threshold float64) Option {
	return func(c *Config) {
		if threshold <= 0 || threshold > 1 {
			return
		}
		c.PreFilterThreshold = threshold
	}
}

// WithReaderPoolSize sets ReaderPoolSize (0 means unbounded).
func WithReaderPoolSize(n int64) Option {
	return func(c *Config) { c.ReaderPoolSize = n }
}

// WithWriterPoolSize bounds the mutation pipeline's worker pool.
func WithWriterPoolSize(n int64) Option {
	return func(c *Config) {
		if n <= 0 {
			n = 1
		}
		c.WriterPoolSize = n
	}
}

// WithMutationHighWaterMark enables back-pressure on the mutation
// pipeline once n slots are in flight.
func WithMutationHighWaterMark(n int64) Option {
	return func(c *Config) { c.MutationHighWaterMark = n }
}

// WithBlockSize sets BlockSize.
func WithBlockSize(n int) Option {
	return func(c *Config) {
		if n <= 0 {
			return
		}
		c.BlockSize = n
	}
}

// WithExternalizationCacheSize sets ExternalizationCacheSize.
func WithExternalizationCacheSize(n int) Option {
	return func(c *Config) {
		if n <= 0 {
			return
		}
		c.ExternalizationCacheSize = n
	}
}

// WithDefaultEFRuntime sets DefaultEFRuntime.
func WithDefaultEFRuntime(n int) Option {
	return func(c *Config) {
		if n <= 0 {
			return
		}
		c.DefaultEFRuntime = n
	}
}

// WithPartitionTimeout bounds a fan-out round trip.
func WithPartitionTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d <= 0 {
			return
		}
		c.PartitionTimeout = d
	}
}
