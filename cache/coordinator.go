package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/singleflight"

	e "github.com/microcosm-cc/pagecache/errors"
)

// Defaults applied to zero fields of Options
const (
	DefaultTTL          = 10 * time.Second
	DefaultLockTTL      = 30 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Options configures a Coordinator
type Options struct {
	// DefaultTTL is used when FetchCached is called with a ttl <= 0
	DefaultTTL time.Duration

	// Locker extends coalescing to every process sharing the store. When nil
	// only callers within this process are coalesced.
	Locker Locker

	// LockTTL bounds how long a fetch round may hold the lock, and how long
	// a failed round is visible to waiters in other processes
	LockTTL time.Duration

	// PollInterval is how often a process waiting on another process's fetch
	// round checks the store
	PollInterval time.Duration

	Metrics Metrics

	// Now is the clock used to stamp and check entry expiry
	Now func() time.Time
}

// Result describes the outcome of a single Lookup
type Result struct {
	Content []byte

	// Hit is true when Content came from a fresh entry in the store
	Hit bool

	// ContentType is the media type the content was fetched with, empty
	// when the Fetcher does not report one
	ContentType string

	// Shared is true when Content (or the error) came from a fetch round
	// started by another caller, in this process or another
	Shared bool

	// Count is the access counter for the key after this call's increment
	Count uint64
}

// Coordinator is a read-through cache in front of a Fetcher. It counts every
// access, serves fresh entries from the Store, and on a miss ensures at most
// one fetch per key is in flight.
type Coordinator struct {
	store   Store
	fetcher Fetcher
	opts    Options

	// in-process coalescing, keyed by cache key
	group singleflight.Group
}

// NewCoordinator returns a Coordinator using store for counters and entries
// and fetcher to fill misses
func NewCoordinator(store Store, fetcher Fetcher, opts Options) *Coordinator {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultLockTTL
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Metrics == nil {
		opts.Metrics = NoopMetrics{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Coordinator{
		store:   store,
		fetcher: fetcher,
		opts:    opts,
	}
}

// DefaultTTL returns the ttl applied when callers do not supply one
func (c *Coordinator) DefaultTTL() time.Duration {
	return c.opts.DefaultTTL
}

// FetchCached returns the content for key, from the store if a fresh entry
// exists and from the Fetcher otherwise. A ttl <= 0 selects the default.
func (c *Coordinator) FetchCached(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	res, err := c.Lookup(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return res.Content, nil
}

// Lookup is FetchCached with details of how the content was obtained
func (c *Coordinator) Lookup(ctx context.Context, key string, ttl time.Duration) (Result, error) {
	var res Result

	if key == "" {
		return res, e.ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = c.opts.DefaultTTL
	}

	// Counted exactly once per call, whatever happens next
	count, err := c.store.Increment(ctx, countKey(key))
	if err != nil {
		return res, c.storeError("incr", key, err)
	}
	res.Count = count

	ent, ok, err := c.read(ctx, key)
	if err != nil {
		return res, err
	}
	if ok {
		c.opts.Metrics.Hit()
		res.Content = ent.Value
		res.ContentType = ent.ContentType
		res.Hit = true
		return res, nil
	}
	c.opts.Metrics.Miss()

	// The first caller's context drives the round. If that caller gives up
	// the round fails for everyone attached to it; any other caller giving
	// up simply detaches.
	owner := false
	ch := c.group.DoChan(key, func() (interface{}, error) {
		owner = true
		return c.fill(ctx, key, ttl)
	})

	select {
	case r := <-ch:
		f, _ := r.Val.(*filled)
		res.Shared = !owner || (f != nil && f.remote)
		if res.Shared {
			c.opts.Metrics.Coalesced()
		}
		if r.Err != nil {
			return res, r.Err
		}

		content := f.ent.Value
		if !owner {
			// Each caller gets its own copy of a shared result
			content = append([]byte(nil), content...)
		}
		res.Content = content
		res.ContentType = f.ent.ContentType
		res.Hit = f.hit
		return res, nil

	case <-ctx.Done():
		return res, ctx.Err()
	}
}

// AccessCount returns how many times key has been requested
func (c *Coordinator) AccessCount(ctx context.Context, key string) (uint64, error) {
	if key == "" {
		return 0, e.ErrInvalidKey
	}

	val, ok, err := c.store.Get(ctx, countKey(key))
	if err != nil {
		return 0, c.storeError("get", countKey(key), err)
	}
	if !ok {
		return 0, nil
	}

	n, err := strconv.ParseUint(string(val), 10, 64)
	if err != nil {
		return 0, c.storeError("get", countKey(key), err)
	}
	return n, nil
}

// Invalidate removes any cached content for key. The access counter is not
// touched.
func (c *Coordinator) Invalidate(ctx context.Context, key string) error {
	if key == "" {
		return e.ErrInvalidKey
	}

	err := c.store.Delete(ctx, contentKey(key))
	if err != nil {
		return c.storeError("delete", contentKey(key), err)
	}
	return nil
}

// read returns the entry for key if it exists and is fresh. Entries that
// cannot be decoded are treated as absent so the next fetch replaces them.
func (c *Coordinator) read(ctx context.Context, key string) (CacheEntry, bool, error) {
	raw, ok, err := c.store.Get(ctx, contentKey(key))
	if err != nil {
		return CacheEntry{}, false, c.storeError("get", contentKey(key), err)
	}
	if !ok {
		return CacheEntry{}, false, nil
	}

	ent, err := decodeEntry(raw)
	if err != nil {
		glog.Warningf("decodeEntry(%s) %+v", key, err)
		return CacheEntry{}, false, nil
	}
	if ent.Key != key || !ent.Fresh(c.opts.Now()) {
		return CacheEntry{}, false, nil
	}

	return ent, true, nil
}

// filled is the outcome of a fill round
type filled struct {
	ent CacheEntry

	// hit is set when the entry was already in the store
	hit bool

	// remote is set when the round waited on another process's fetch
	remote bool
}

// fill runs once per in-process round. It re-checks the store, as a round
// that finished between the caller's read and joining the group will already
// have written the entry.
func (c *Coordinator) fill(ctx context.Context, key string, ttl time.Duration) (*filled, error) {
	ent, ok, err := c.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return &filled{ent: ent, hit: true}, nil
	}

	if c.opts.Locker == nil {
		return c.fetchAndStore(ctx, key, ttl)
	}

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	for {
		token, acquired, err := c.opts.Locker.TryLock(ctx, lockKey(key), c.opts.LockTTL)
		if err != nil {
			return nil, c.storeError("lock", lockKey(key), err)
		}
		if acquired {
			return c.fetchLocked(ctx, key, ttl, token)
		}

		if glog.V(2) {
			glog.Infof("%s is being fetched elsewhere, waiting", key)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		ent, ok, err := c.read(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return &filled{ent: ent, remote: true}, nil
		}

		msg, failed, err := c.store.Get(ctx, failedKey(key))
		if err != nil {
			return nil, c.storeError("get", failedKey(key), err)
		}
		if failed {
			return &filled{remote: true}, &e.FetchError{Key: key, Remote: true, Err: errors.New(string(msg))}
		}

		// Lock still held, or released without a result (the owner died or
		// the marker expired): try to take it ourselves
	}
}

// fetchLocked fetches while holding the store lock for key, publishing a
// failure marker for waiters in other processes if the fetch fails
func (c *Coordinator) fetchLocked(ctx context.Context, key string, ttl time.Duration, token string) (*filled, error) {
	// The lock must be released even if the owner's context is cancelled
	bg := context.WithoutCancel(ctx)
	defer func() {
		if err := c.opts.Locker.Unlock(bg, lockKey(key), token); err != nil {
			glog.Warningf("Unlock(%s) %+v", key, err)
		}
	}()

	// A marker from a previous round must not fail this one
	if err := c.store.Delete(ctx, failedKey(key)); err != nil {
		return nil, c.storeError("delete", failedKey(key), err)
	}

	// Another process may have completed a round between our read and
	// acquiring the lock
	ent, ok, err := c.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return &filled{ent: ent, hit: true}, nil
	}

	f, err := c.fetchAndStore(ctx, key, ttl)
	if err != nil {
		var fe *e.FetchError
		if errors.As(err, &fe) {
			merr := c.store.SetWithExpiry(bg, failedKey(key), []byte(fe.Error()), c.opts.LockTTL)
			if merr != nil {
				glog.Warningf("SetWithExpiry(%s) %+v", failedKey(key), merr)
			}
		}
		return nil, err
	}

	return f, nil
}

// fetchAndStore calls the Fetcher and writes the result with expiry now+ttl.
// Failures are never cached.
func (c *Coordinator) fetchAndStore(ctx context.Context, key string, ttl time.Duration) (*filled, error) {
	if glog.V(2) {
		glog.Infof("Fetching %s", key)
	}

	start := time.Now()
	page, err := c.fetch(ctx, key)
	c.opts.Metrics.Fetched(time.Since(start), err)
	if err != nil {
		var fe *e.FetchError
		if !errors.As(err, &fe) {
			err = &e.FetchError{Key: key, Err: err}
		}
		glog.Errorf("Fetch(%s) %+v", key, err)
		return nil, err
	}

	ent := CacheEntry{
		Key:         key,
		Value:       page.Content,
		ContentType: page.ContentType,
		ExpiresAt:   c.opts.Now().Add(ttl),
	}
	data, err := encodeEntry(ent)
	if err != nil {
		return nil, fmt.Errorf("encodeEntry(%s): %w", key, err)
	}

	err = c.store.SetWithExpiry(ctx, contentKey(key), data, ttl)
	if err != nil {
		return nil, c.storeError("set", contentKey(key), err)
	}

	return &filled{ent: ent}, nil
}

func (c *Coordinator) fetch(ctx context.Context, key string) (Page, error) {
	if pf, ok := c.fetcher.(PageFetcher); ok {
		return pf.FetchPage(ctx, key)
	}
	content, err := c.fetcher.Fetch(ctx, key)
	return Page{Content: content}, err
}

func (c *Coordinator) storeError(op string, key string, err error) error {
	c.opts.Metrics.StoreFailed()
	glog.Errorf("store %s(%s) %+v", op, key, err)
	return &e.StoreError{Op: op, Key: key, Err: err}
}
