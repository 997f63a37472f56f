// Package cache provides an in-process key/value cache with per-entry TTLs,
// tag based invalidation and hit/miss statistics.
//
// # Engine
//
// [MemoryCache] keeps every entry in a map guarded by a single mutex, so each
// operation is one atomic step for concurrent callers. Entries may carry a
// TTL (measured from the moment they were stored) and any number of tags:
//
//	c := cache.NewMemoryCache(ctx)
//	defer c.Close()
//	c.Set("user:1", user, cache.WithTTL(5*time.Minute), cache.WithTags("users"))
//
// A secondary index maps every tag to the keys carrying it. Overwriting a
// key detaches the old tags before attaching the new ones, and deleting or
// expiring an entry prunes its index references, so [MemoryCache.InvalidateByTag]
// only ever removes entries that currently carry the tag.
// [MemoryCache.InvalidateByPrefix] groups keys without tags: "user:" matches
// "user:1" but not "users".
//
// # Presence
//
// [MemoryCache.Get] returns a found flag next to the value. A stored nil,
// zero or empty string is a hit; only the flag distinguishes "nothing stored"
// from "stored an empty value".
//
// # Expiry
//
// An entry stored with TTL d is readable while less than d has elapsed; at
// exactly d it is expired. Expired entries are dropped lazily when read and
// eagerly by [MemoryCache.Cleanup], which callers may run on a schedule or
// have run by a background goroutine with [WithCleanupInterval]. There is no
// capacity bound or LRU eviction: pair unbounded key spaces with TTLs.
//
// # Typed access
//
// The interface works on [any] because Go has no generic methods. The
// package-level [Get] adds type safety and transparently decodes values
// stored by a cache created [WithSerialization]:
//
//	found, user, err := cache.Get[User](c, "user:1")
package cache
