package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

type memoryItem struct {
	value    []byte
	expireAt time.Time // zero => no TTL
}

// MemoryStore is a Store and Locker held in process memory. It is used when
// no memcached is configured, in which case coalescing only spans the one
// process.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time

	// source of lock tokens, guarded by mu
	lockSeq uint64
}

// NewMemoryStore returns an empty MemoryStore. now may be nil, in which case
// time.Now is used.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		items: make(map[string]memoryItem),
		now:   now,
	}
}

// get must be called with s.mu held
func (s *MemoryStore) get(key string) (memoryItem, bool) {
	item, ok := s.items[key]
	if !ok {
		return item, false
	}
	if !item.expireAt.IsZero() && !s.now().Before(item.expireAt) {
		delete(s.items, key)
		return item, false
	}
	return item, true
}

// Increment implements Store
func (s *MemoryStore) Increment(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n uint64
	item, ok := s.get(key)
	if ok {
		var err error
		n, err = strconv.ParseUint(string(item.value), 10, 64)
		if err != nil {
			return 0, err
		}
	}
	n++
	item.value = []byte(strconv.FormatUint(n, 10))
	s.items[key] = item

	return n, nil
}

// Get implements Store
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.get(key)
	if !ok {
		return nil, false, nil
	}

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, true, nil
}

// SetWithExpiry implements Store
func (s *MemoryStore) SetWithExpiry(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	v := make([]byte, len(value))
	copy(v, value)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[key] = memoryItem{value: v, expireAt: s.now().Add(ttl)}
	return nil
}

// Delete implements Store
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// TryLock implements Locker
func (s *MemoryStore) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.get(key); held {
		return "", false, nil
	}
	s.lockSeq++
	token := strconv.FormatUint(s.lockSeq, 10)
	s.items[key] = memoryItem{value: []byte(token), expireAt: s.now().Add(ttl)}
	return token, true, nil
}

// Unlock implements Locker
func (s *MemoryStore) Unlock(ctx context.Context, key string, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	item, held := s.get(key)
	if held && string(item.value) == token {
		delete(s.items, key)
	}
	return nil
}
