package cache

import (
	"time"

	"github.com/agentuity/go-memocache/logger"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrTypeMismatch is returned by Get when the stored value cannot be
// converted to the requested type.
var ErrTypeMismatch = errors.New("cache: type mismatch")

// Cache is the engine contract: string keys, opaque values, TTL and tag
// based invalidation. Every operation is non-blocking.
type Cache interface {
	// Get returns the stored value and true if the key is present and not
	// expired. Hit and miss counters are updated.
	Get(key string) (bool, any)
	// Peek is Get without touching the hit and miss counters.
	Peek(key string) (bool, any)
	// Set stores val under key, replacing any previous entry and its tags.
	Set(key string, val any, opts ...SetOption) error
	// Has reports whether Get would succeed, without updating statistics.
	Has(key string) bool
	// Delete removes key. It reports whether an entry was removed.
	Delete(key string) bool
	// Clear removes every entry and resets the statistics.
	Clear()
	// InvalidateByTag removes every entry tagged with tag.
	InvalidateByTag(tag string) int
	// InvalidateByPrefix removes every entry whose key starts with prefix.
	InvalidateByPrefix(prefix string) int
	// Keys returns the keys of all unexpired entries.
	Keys() []string
	// Cleanup removes all expired entries.
	Cleanup() int
	// Stats returns a snapshot of the hit and miss counters.
	Stats() Stats
}

// Stats is a point in time snapshot of cache statistics.
type Stats struct {
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	Size    int     `json:"size"`
	HitRate float64 `json:"hit_rate"`
}

func newStats(hits, misses uint64, size int) Stats {
	s := Stats{Hits: hits, Misses: misses, Size: size}
	if total := hits + misses; total > 0 {
		s.HitRate = float64(hits) / float64(total)
	}
	return s
}

// SetOptions are the per-entry options accepted by Set.
type SetOptions struct {
	// TTL is how long the entry stays readable. Zero falls back to the
	// cache default, which itself defaults to never expiring.
	TTL time.Duration
	// Tags group the entry for InvalidateByTag.
	Tags []string
}

// SetOption configures a single Set call.
type SetOption func(*SetOptions)

// WithTTL sets the entry time-to-live.
func WithTTL(d time.Duration) SetOption {
	return func(o *SetOptions) { o.TTL = d }
}

// WithTags adds tags to the entry.
func WithTags(tags ...string) SetOption {
	return func(o *SetOptions) { o.Tags = append(o.Tags, tags...) }
}

// Encoded is a msgpack payload as returned by a cache created with
// WithSerialization. Use the generic Get to decode it.
type Encoded []byte

// Get retrieves a typed value from the cache.
// Live values are converted with a type assertion, Encoded values are
// decoded with msgpack. A stored nil yields the zero value of T with
// found set to true.
func Get[T any](c Cache, key string) (bool, T, error) {
	var zero T
	found, val := c.Get(key)
	if !found {
		return false, zero, nil
	}
	return convert[T](val)
}

func convert[T any](val any) (bool, T, error) {
	var zero T
	switch v := val.(type) {
	case nil:
		return true, zero, nil
	case Encoded:
		var result T
		if err := msgpack.Unmarshal(v, &result); err != nil {
			return false, zero, errors.Wrap(err, "cache: failed to unmarshal value")
		}
		return true, result, nil
	case T:
		return true, v, nil
	}
	return false, zero, errors.Wrapf(ErrTypeMismatch, "cannot convert value of type %T to %T", val, zero)
}

// Peek is the generic form of Cache.Peek.
func Peek[T any](c Cache, key string) (bool, T, error) {
	var zero T
	found, val := c.Peek(key)
	if !found {
		return false, zero, nil
	}
	return convert[T](val)
}

// config holds the resolved configuration for a MemoryCache.
type config struct {
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
	serialize       bool
	logger          logger.Logger
}

// Option configures a MemoryCache.
type Option func(*config)

func defaultConfig() config {
	return config{
		now: time.Now,
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.defaultTTL < 0 {
		cfg.defaultTTL = 0
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return cfg
}

// WithDefaultTTL sets the TTL used when Set is called without one.
// Defaults to zero, meaning entries never expire by time.
func WithDefaultTTL(d time.Duration) Option {
	return func(c *config) { c.defaultTTL = d }
}

// WithCleanupInterval starts a background goroutine that calls Cleanup
// every d. Zero (the default) leaves sweeping to the caller.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *config) { c.cleanupInterval = d }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *config) { c.now = now }
}

// WithSerialization stores values msgpack encoded so that later mutation
// of the caller's object does not change the cached copy. Get then returns
// Encoded values.
func WithSerialization() Option {
	return func(c *config) { c.serialize = true }
}

// WithLogger sets the logger used by the background sweeper.
func WithLogger(l logger.Logger) Option {
	return func(c *config) { c.logger = l }
}
