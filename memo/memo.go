package memo

import (
	"context"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentuity/go-memocache/cache"
	"github.com/agentuity/go-memocache/logger"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// ErrProducerPanic marks the error returned when a producer panics.
var ErrProducerPanic = errors.New("memo: producer panicked")

const tracerName = "github.com/agentuity/go-memocache/memo"

// Producer computes the value for a key. It should honour ctx cancellation.
type Producer[T any] func(ctx context.Context) (T, error)

// SyncProducer computes the value for a key without a context.
type SyncProducer[T any] func() (T, error)

// Options control how a single Wrap or WrapSync call uses the cache.
type Options struct {
	// Enabled turns caching on. When false the producer is always called
	// and the cache is neither read nor written.
	Enabled bool
	// TTL of stored results. Zero uses the cache default.
	TTL time.Duration
	// Tags attached to stored results.
	Tags []string
	// AllowNull stores nil results. By default a nil result is returned
	// but not cached.
	AllowNull bool
	// Debug logs every hit, miss, store and invalidation.
	Debug bool
}

// DefaultOptions returns the options a Decorator starts from.
func DefaultOptions() Options {
	return Options{Enabled: true}
}

// Option adjusts Options.
type Option func(*Options)

func Enabled(enabled bool) Option {
	return func(o *Options) { o.Enabled = enabled }
}

func TTL(d time.Duration) Option {
	return func(o *Options) { o.TTL = d }
}

// Tags replaces the tags attached to stored results.
func Tags(tags ...string) Option {
	return func(o *Options) { o.Tags = slices.Clone(tags) }
}

func AllowNull(allow bool) Option {
	return func(o *Options) { o.AllowNull = allow }
}

func Debug(debug bool) Option {
	return func(o *Options) { o.Debug = debug }
}

// Decorator adds cache-aside behaviour to producer functions on top of a
// cache.Cache. Concurrent Wrap calls that miss on the same key share one
// producer invocation.
type Decorator struct {
	cache       cache.Cache
	defaults    Options
	flights     singleflight.Group
	logger      logger.Logger
	tracer      trace.Tracer
	invocations atomic.Uint64

	// generation counts invalidations made through the Decorator. A
	// producer result is only stored if no invalidation happened while it
	// was being computed.
	mu         sync.RWMutex
	generation uint64
}

// DecoratorOption configures a Decorator.
type DecoratorOption func(*Decorator)

// WithDefaults sets the options every call starts from. Call options are
// applied on top of them.
func WithDefaults(opts ...Option) DecoratorOption {
	return func(d *Decorator) {
		for _, opt := range opts {
			opt(&d.defaults)
		}
	}
}

// WithLogger sets the logger used for debug traces and store failures.
func WithLogger(l logger.Logger) DecoratorOption {
	return func(d *Decorator) { d.logger = l }
}

// WithTracer sets the tracer used to record producer invocations. The
// global OpenTelemetry tracer is used otherwise.
func WithTracer(t trace.Tracer) DecoratorOption {
	return func(d *Decorator) { d.tracer = t }
}

// New returns a Decorator backed by c.
func New(c cache.Cache, opts ...DecoratorOption) *Decorator {
	d := &Decorator{
		cache:    c,
		defaults: DefaultOptions(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.NewConsoleLogger(logger.LevelDebug)
	}
	d.logger = d.logger.WithPrefix("[memo]")
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	return d
}

func (d *Decorator) resolve(opts []Option) Options {
	o := d.defaults
	o.Tags = slices.Clone(o.Tags)
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// trace logs a cache event when debug is on. Debug traces are written at
// info level when the logger would drop debug output, so turning debug on
// is enough to see them.
func (d *Decorator) trace(o Options, op string, key string) {
	if !o.Debug {
		return
	}
	if d.logger.IsLevelEnabled(logger.LevelDebug) {
		d.logger.Debug("%s key=%s", op, key)
		return
	}
	d.logger.Info("%s key=%s", op, key)
}

// currentGeneration returns the invalidation generation a producer call
// starts from.
func (d *Decorator) currentGeneration() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.generation
}

// invalidated bumps the generation and runs fn while no result can be
// stored.
func (d *Decorator) invalidated(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.generation++
	fn()
}

// store writes a successful result unless it is nil and nil results are
// not allowed, or an invalidation happened since generation gen. Store
// failures are logged and otherwise ignored. It reports whether the value
// was written.
func (d *Decorator) store(key string, val any, o Options, gen uint64) bool {
	if !o.AllowNull && isNil(val) {
		d.trace(o, "skip-store", key)
		return false
	}
	var setOpts []cache.SetOption
	if o.TTL > 0 {
		setOpts = append(setOpts, cache.WithTTL(o.TTL))
	}
	if len(o.Tags) > 0 {
		setOpts = append(setOpts, cache.WithTags(o.Tags...))
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.generation != gen {
		d.trace(o, "stale", key)
		return false
	}
	if err := d.cache.Set(key, val, setOpts...); err != nil {
		d.logger.Warn("failed to store key=%s: %v", key, err)
		return false
	}
	d.trace(o, "store", key)
	return true
}

// Invalidate removes key from the cache. Producer calls already running
// when it is called will not store their results.
func (d *Decorator) Invalidate(key string) bool {
	d.trace(d.defaults, "invalidate", key)
	var removed bool
	d.invalidated(func() { removed = d.cache.Delete(key) })
	return removed
}

// InvalidateByTag removes every entry carrying tag.
func (d *Decorator) InvalidateByTag(tag string) int {
	d.trace(d.defaults, "invalidate-tag", tag)
	var n int
	d.invalidated(func() { n = d.cache.InvalidateByTag(tag) })
	return n
}

// InvalidateByPrefix removes every entry whose key starts with prefix.
func (d *Decorator) InvalidateByPrefix(prefix string) int {
	d.trace(d.defaults, "invalidate-prefix", prefix)
	var n int
	d.invalidated(func() { n = d.cache.InvalidateByPrefix(prefix) })
	return n
}

// Clear empties the cache and resets its statistics.
func (d *Decorator) Clear() {
	d.trace(d.defaults, "clear", "*")
	d.invalidated(d.cache.Clear)
}

func (d *Decorator) Stats() cache.Stats {
	return d.cache.Stats()
}

// Invocations returns how many times a producer has been called through
// this decorator.
func (d *Decorator) Invocations() uint64 {
	return d.invocations.Load()
}

// isNil reports whether v is nil or a nil pointer, map, slice, channel,
// func or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return rv.IsNil()
	}
	return false
}
