package cache

import (
	"context"
	"time"
)

// Store is the key-value backend shared by every Coordinator. Each call must
// be atomic on its own; nothing here spans more than one key.
type Store interface {
	// Increment adds one to the integer held at key, creating it at 1 if it
	// does not exist, and returns the new value
	Increment(ctx context.Context, key string) (uint64, error)

	// Get returns the value at key. A missing key is not an error, ok is
	// false instead.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// SetWithExpiry stores value at key for ttl
	SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Locker provides a mutual exclusion primitive that is visible to every
// process sharing the Store. Locks expire after ttl so that a crashed owner
// cannot wedge a key forever.
type Locker interface {
	// TryLock acquires key if nobody holds it and reports whether it did.
	// The returned token identifies this holder to Unlock.
	TryLock(ctx context.Context, key string, ttl time.Duration) (token string, ok bool, err error)

	// Unlock releases key only if it is still held with token. A lock that
	// expired and was taken by someone else is left alone.
	Unlock(ctx context.Context, key string, token string) error
}

// Fetcher supplies fresh content for a key on a cache miss
type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// FetcherFunc adapts an ordinary function to the Fetcher interface
type FetcherFunc func(ctx context.Context, key string) ([]byte, error)

// Fetch calls f(ctx, key)
func (f FetcherFunc) Fetch(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// Page is fetched content and the media type it was served with
type Page struct {
	Content     []byte
	ContentType string
}

// PageFetcher is a Fetcher that also knows the media type of what it fetched.
// The Coordinator prefers FetchPage when the Fetcher implements it.
type PageFetcher interface {
	Fetcher
	FetchPage(ctx context.Context, key string) (Page, error)
}
