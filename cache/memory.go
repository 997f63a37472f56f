package cache

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

type entry struct {
	value    any
	storedAt time.Time
	ttl      time.Duration
	tags     []string
	present  bool
}

// expired reports whether the entry is no longer readable at now. The
// deadline itself counts as expired.
func (e *entry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.storedAt) >= e.ttl
}

// MemoryCache is an in-process Cache guarded by a single mutex. Values are
// held by reference unless the cache was created WithSerialization.
type MemoryCache struct {
	ctx       context.Context
	cancel    context.CancelFunc
	entries   map[string]*entry
	tagIndex  map[string]map[string]struct{}
	hits      uint64
	misses    uint64
	mutex     sync.Mutex
	waitGroup sync.WaitGroup
	once      sync.Once
	cfg       config
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache returns an empty MemoryCache. The background sweeper, if
// enabled with WithCleanupInterval, stops when parent is cancelled or the
// cache is closed.
func NewMemoryCache(parent context.Context, opts ...Option) *MemoryCache {
	cfg := applyOptions(opts)
	ctx, cancel := context.WithCancel(parent)
	c := &MemoryCache{
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
		tagIndex: make(map[string]map[string]struct{}),
		cfg:      cfg,
	}
	if cfg.cleanupInterval > 0 {
		c.waitGroup.Add(1)
		go c.run()
	}
	return c
}

func (c *MemoryCache) lookup(key string, now time.Time) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok || !e.present {
		return nil, false
	}
	if e.expired(now) {
		c.removeLocked(key, e)
		return nil, false
	}
	return e, true
}

func (c *MemoryCache) Get(key string) (bool, any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.lookup(key, c.cfg.now())
	if !ok {
		c.misses++
		return false, nil
	}
	c.hits++
	return true, e.value
}

func (c *MemoryCache) Peek(key string) (bool, any) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.lookup(key, c.cfg.now())
	if !ok {
		return false, nil
	}
	return true, e.value
}

func (c *MemoryCache) Has(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	_, ok := c.lookup(key, c.cfg.now())
	return ok
}

// Set stores val under key. The only possible error is a msgpack encoding
// failure when the cache serializes values; the previous entry is then kept.
func (c *MemoryCache) Set(key string, val any, opts ...SetOption) error {
	var o SetOptions
	for _, opt := range opts {
		opt(&o)
	}
	ttl := o.TTL
	if ttl <= 0 {
		ttl = c.cfg.defaultTTL
	}
	if c.cfg.serialize && val != nil {
		data, err := msgpack.Marshal(val)
		if err != nil {
			return errors.Wrapf(err, "cache: failed to marshal value for key %q", key)
		}
		val = Encoded(data)
	}
	e := &entry{
		value:   val,
		ttl:     ttl,
		tags:    dedupe(o.Tags),
		present: true,
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if old, ok := c.entries[key]; ok {
		c.removeLocked(key, old)
	}
	e.storedAt = c.cfg.now()
	c.entries[key] = e
	for _, tag := range e.tags {
		keys, ok := c.tagIndex[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tagIndex[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (c *MemoryCache) Delete(key string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	e, ok := c.entries[key]
	if ok {
		c.removeLocked(key, e)
	}
	return ok
}

func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	c.entries = make(map[string]*entry)
	c.tagIndex = make(map[string]map[string]struct{})
	c.hits = 0
	c.misses = 0
	c.mutex.Unlock()
}

func (c *MemoryCache) InvalidateByTag(tag string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	indexed, ok := c.tagIndex[tag]
	if !ok {
		return 0
	}
	keys := make([]string, 0, len(indexed))
	for key := range indexed {
		keys = append(keys, key)
	}
	for _, key := range keys {
		if e, ok := c.entries[key]; ok {
			c.removeLocked(key, e)
		}
	}
	return len(keys)
}

func (c *MemoryCache) InvalidateByPrefix(prefix string) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	var removed int
	for key, e := range c.entries {
		if strings.HasPrefix(key, prefix) {
			c.removeLocked(key, e)
			removed++
		}
	}
	return removed
}

// Keys returns the sorted keys of every unexpired entry. Expired entries
// that have not been swept yet are left out, matching Get.
func (c *MemoryCache) Keys() []string {
	c.mutex.Lock()
	now := c.cfg.now()
	keys := make([]string, 0, len(c.entries))
	for key, e := range c.entries {
		if e.present && !e.expired(now) {
			keys = append(keys, key)
		}
	}
	c.mutex.Unlock()
	slices.Sort(keys)
	return keys
}

func (c *MemoryCache) Cleanup() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	now := c.cfg.now()
	var removed int
	for key, e := range c.entries {
		if e.expired(now) {
			c.removeLocked(key, e)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Stats() Stats {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return newStats(c.hits, c.misses, len(c.entries))
}

// Close stops the background sweeper. It is safe to call more than once.
func (c *MemoryCache) Close() error {
	c.once.Do(func() {
		c.cancel()
		c.waitGroup.Wait()
	})
	return nil
}

// removeLocked drops the entry and every tag index reference to it.
// Callers must hold the mutex.
func (c *MemoryCache) removeLocked(key string, e *entry) {
	delete(c.entries, key)
	for _, tag := range e.tags {
		keys, ok := c.tagIndex[tag]
		if !ok {
			continue
		}
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.tagIndex, tag)
		}
	}
}

func (c *MemoryCache) run() {
	defer c.waitGroup.Done()
	ticker := time.NewTicker(c.cfg.cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if removed := c.Cleanup(); removed > 0 && c.cfg.logger != nil {
				c.cfg.logger.Trace("swept %d expired entries", removed)
			}
		}
	}
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := slices.Clone(tags)
	slices.Sort(out)
	return slices.Compact(out)
}
