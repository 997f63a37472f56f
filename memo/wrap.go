package memo

import (
	"context"

	"github.com/agentuity/go-memocache/cache"
	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Wrap returns the cached value for key, or calls fn and caches its result.
//
// Concurrent calls that miss on the same key are coalesced: fn runs once,
// with the context of the call that started it, and every waiting caller
// receives its result or its error. Errors are never cached. A caller whose
// own ctx ends while waiting returns ctx.Err() and leaves the shared call
// running for the others.
//
// A result is not stored if any invalidation or Clear goes through d while
// fn runs; the callers still receive it. Invalidations made directly on the
// underlying cache are not tracked.
func Wrap[T any](ctx context.Context, d *Decorator, key string, fn Producer[T], opts ...Option) (T, error) {
	var zero T
	o := d.resolve(opts)
	if !o.Enabled {
		d.trace(o, "bypass", key)
		return invoke(ctx, d, key, fn)
	}
	if val, ok := lookup[T](d, key, o); ok {
		return val, nil
	}
	ch := d.flights.DoChan(key, func() (any, error) {
		// A call for the same key may have stored the value after our miss.
		if found, val, err := cache.Peek[T](d.cache, key); err == nil && found {
			d.trace(o, "hit", key)
			return flight{val: val, stored: true}, nil
		}
		gen := d.currentGeneration()
		val, err := invoke(ctx, d, key, fn)
		if err != nil {
			d.trace(o, "error", key)
			return nil, err
		}
		return flight{val: val, stored: d.store(key, val, o, gen)}, nil
	})
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		f := res.Val.(flight)
		if f.stored {
			// Each caller reads its own copy so serialized entries are
			// not shared between callers.
			if found, val, err := cache.Peek[T](d.cache, key); err == nil && found {
				return val, nil
			}
		}
		if f.val == nil {
			return zero, nil
		}
		val, ok := f.val.(T)
		if !ok {
			return zero, errors.Wrapf(cache.ErrTypeMismatch, "shared result for key %q is %T, not %T", key, f.val, zero)
		}
		return val, nil
	}
}

// flight is the result shared by the callers of one coalesced Wrap.
type flight struct {
	val    any
	stored bool
}

// WrapSync is Wrap for synchronous producers. Calls are not coalesced:
// concurrent misses on the same key each run fn.
func WrapSync[T any](d *Decorator, key string, fn SyncProducer[T], opts ...Option) (T, error) {
	var zero T
	var produce Producer[T] = func(context.Context) (T, error) { return fn() }
	o := d.resolve(opts)
	if !o.Enabled {
		d.trace(o, "bypass", key)
		return invoke(context.Background(), d, key, produce)
	}
	if val, ok := lookup[T](d, key, o); ok {
		return val, nil
	}
	gen := d.currentGeneration()
	val, err := invoke(context.Background(), d, key, produce)
	if err != nil {
		d.trace(o, "error", key)
		return zero, err
	}
	d.store(key, val, o, gen)
	return val, nil
}

// WithCache is a one-shot Wrap using a throwaway Decorator over c. Calls do
// not share an in-flight table with each other.
func WithCache[T any](ctx context.Context, c cache.Cache, key string, fn Producer[T], opts ...Option) (T, error) {
	return Wrap(ctx, New(c), key, fn, opts...)
}

// WithCacheSync is a one-shot WrapSync using a throwaway Decorator over c.
func WithCacheSync[T any](c cache.Cache, key string, fn SyncProducer[T], opts ...Option) (T, error) {
	return WrapSync(New(c), key, fn, opts...)
}

// lookup reads key from the cache. A value that cannot be converted to T
// is treated as a miss so the producer's result replaces it.
func lookup[T any](d *Decorator, key string, o Options) (T, bool) {
	found, val, err := cache.Get[T](d.cache, key)
	if err != nil {
		d.logger.Warn("ignoring unreadable entry key=%s: %v", key, err)
		return val, false
	}
	if !found {
		d.trace(o, "miss", key)
		return val, false
	}
	d.trace(o, "hit", key)
	return val, true
}

// invoke runs fn inside a span, counting the call and turning a panic into
// an error marked with ErrProducerPanic.
func invoke[T any](ctx context.Context, d *Decorator, key string, fn Producer[T]) (val T, err error) {
	ctx, span := d.tracer.Start(ctx, "memo.produce", trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			var zero T
			val = zero
			err = errors.Mark(errors.Newf("memo: producer for key %q panicked: %v", key, r), ErrProducerPanic)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	d.invocations.Add(1)
	return fn(ctx)
}
