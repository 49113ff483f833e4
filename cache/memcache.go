package cache

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"github.com/golang/glog"

	h "github.com/microcosm-cc/pagecache/helpers"
)

// memcached treats any expiration above 30 days as an absolute unix time
const maxRelativeExpiration = 60 * 60 * 24 * 30

// MemcacheStore is a Store and Locker backed by one or more memcached servers.
// Locks are taken with memcached's add, which only succeeds when the key does
// not yet exist, so they hold across every process sharing the servers.
type MemcacheStore struct {
	mc *memcache.Client
}

// NewMemcacheStore creates the memcache client. servers are host:port pairs.
func NewMemcacheStore(timeout time.Duration, servers ...string) *MemcacheStore {
	mc := memcache.New(servers...)
	if timeout > 0 {
		mc.Timeout = timeout
	}
	return &MemcacheStore{mc: mc}
}

// Ping checks that all of the servers are reachable
func (s *MemcacheStore) Ping() error {
	return s.mc.Ping()
}

// Increment implements Store. memcached's incr does not create missing keys,
// so a miss is followed by an add of "1"; losing that race to another process
// means the key now exists and incr is retried.
func (s *MemcacheStore) Increment(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	k := memcacheKey(key)
	n, err := s.mc.Increment(k, 1)
	if err == nil {
		return n, nil
	}
	if !errors.Is(err, memcache.ErrCacheMiss) {
		return 0, err
	}

	err = s.mc.Add(&memcache.Item{Key: k, Value: []byte("1")})
	if err == nil {
		return 1, nil
	}
	if !errors.Is(err, memcache.ErrNotStored) {
		return 0, err
	}

	return s.mc.Increment(k, 1)
}

// Get implements Store
func (s *MemcacheStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	item, err := s.mc.Get(memcacheKey(key))
	if err != nil {
		// Cache misses are expected
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, false, nil
		}
		return nil, false, err
	}

	// incr pads values with trailing spaces when the digit count shrinks
	if strings.HasPrefix(key, countPrefix) {
		return []byte(strings.TrimSpace(string(item.Value))), true, nil
	}

	return item.Value, true, nil
}

// SetWithExpiry implements Store
func (s *MemcacheStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.mc.Set(&memcache.Item{
		Key:        memcacheKey(key),
		Value:      value,
		Expiration: expiration(ttl, time.Now()),
	})
}

// Delete implements Store
func (s *MemcacheStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.mc.Delete(memcacheKey(key))
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}

// TryLock implements Locker
func (s *MemcacheStore) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	token := strconv.FormatInt(time.Now().UnixNano(), 10)
	err := s.mc.Add(&memcache.Item{
		Key:        memcacheKey(key),
		Value:      []byte(token),
		Expiration: expiration(ttl, time.Now()),
	})
	if err == nil {
		return token, true, nil
	}
	if errors.Is(err, memcache.ErrNotStored) {
		return "", false, nil
	}
	return "", false, err
}

// Unlock implements Locker. The lock is expired with a cas against the item
// read, so a lock that changed hands after our read is not released.
func (s *MemcacheStore) Unlock(ctx context.Context, key string, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	item, err := s.mc.Get(memcacheKey(key))
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil
		}
		glog.Warningf("mc.Get(%s) %+v", key, err)
		return err
	}
	if !ownsLock(item.Value, token) {
		if glog.V(2) {
			glog.Infof("%s is held by another owner, not unlocking", key)
		}
		return nil
	}

	// A negative expiration expires the item immediately
	item.Expiration = -1
	err = s.mc.CompareAndSwap(item)
	switch {
	case err == nil,
		errors.Is(err, memcache.ErrCASConflict),
		errors.Is(err, memcache.ErrCacheMiss),
		errors.Is(err, memcache.ErrNotStored):
		return nil
	}
	glog.Warningf("mc.CompareAndSwap(%s) %+v", key, err)
	return err
}

func ownsLock(value []byte, token string) bool {
	return token != "" && string(value) == token
}

// expiration converts a ttl into memcached's expiration field: whole seconds
// rounded up, never 0 (which would mean "never expire"), and an absolute unix
// time beyond 30 days.
func expiration(ttl time.Duration, now time.Time) int32 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if secs > maxRelativeExpiration {
		return int32(now.Unix() + secs)
	}
	return int32(secs)
}

// memcacheKey returns key if memcached will accept it, otherwise the prefix
// followed by the SHA1 of the key. Keys are limited to 250 bytes and may not
// contain whitespace or control characters, both of which URLs can break.
func memcacheKey(key string) string {
	if legalKey(key) {
		return key
	}

	prefix := ""
	if i := strings.IndexByte(key, ':'); i >= 0 && i < 16 {
		prefix = key[:i+1]
	}
	return prefix + h.Sha1([]byte(key))
}

func legalKey(key string) bool {
	if len(key) == 0 || len(key) > 250 {
		return false
	}
	for i := 0; i < len(key); i++ {
		if key[i] <= ' ' || key[i] == 0x7f {
			return false
		}
	}
	return true
}
