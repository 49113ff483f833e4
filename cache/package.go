/*
Package cache provides a read-through page cache. Content is read from a
shared Store (memcache in production) and, on a miss, fetched exactly once per
key no matter how many callers ask for it at the same time. Every call is
counted against the key regardless of whether it was served from cache.

Entries carry their own expiry so that an entry is never returned once it has
expired, even if the Store has not yet evicted it.
*/
package cache
