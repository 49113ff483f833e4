package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestMemoryStoreIncrement(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	for i := uint64(1); i <= 3; i++ {
		n, err := s.Increment(ctx, "count:a")
		if err != nil {
			t.Fatalf("Increment() %+v", err)
		}
		if n != i {
			t.Errorf("Increment() = %d should be %d", n, i)
		}
	}

	val, ok, _ := s.Get(ctx, "count:a")
	if !ok || string(val) != "3" {
		t.Errorf("Get() = %q, %t should be \"3\", true", val, ok)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s := NewMemoryStore(clock.Now)

	s.SetWithExpiry(ctx, "k", []byte("v"), time.Second)

	clock.Advance(999 * time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); !ok {
		t.Error("key should be present before expiry")
	}

	clock.Advance(time.Millisecond)
	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("key should be absent at expiry")
	}
}

func TestMemoryStoreLock(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s := NewMemoryStore(clock.Now)

	token, ok, _ := s.TryLock(ctx, "lock:a", time.Second)
	if !ok {
		t.Fatal("first TryLock() should succeed")
	}
	if _, ok, _ := s.TryLock(ctx, "lock:a", time.Second); ok {
		t.Error("second TryLock() should fail while held")
	}

	s.Unlock(ctx, "lock:a", token)
	token, ok, _ = s.TryLock(ctx, "lock:a", time.Second)
	if !ok {
		t.Error("TryLock() should succeed after Unlock()")
	}

	// An abandoned lock expires
	clock.Advance(time.Second)
	next, ok, _ := s.TryLock(ctx, "lock:a", time.Second)
	if !ok {
		t.Error("TryLock() should succeed once the lock has expired")
	}

	// The expired holder cannot release the new holder's lock
	s.Unlock(ctx, "lock:a", token)
	if _, ok, _ := s.TryLock(ctx, "lock:a", time.Second); ok {
		t.Error("Unlock() with a stale token should not release the lock")
	}

	s.Unlock(ctx, "lock:a", next)
	if _, ok, _ := s.TryLock(ctx, "lock:a", time.Second); !ok {
		t.Error("Unlock() by the current holder should release the lock")
	}
}

func TestOwnsLock(t *testing.T) {
	message := "ownsLock(%q, %q) = %t should be %t"
	tests := []struct {
		value    string
		token    string
		expected bool
	}{
		{"1700000000000000001", "1700000000000000001", true},
		{"1700000000000000002", "1700000000000000001", false},
		{"", "", false},
	}

	for _, tt := range tests {
		if got := ownsLock([]byte(tt.value), tt.token); got != tt.expected {
			t.Errorf(message, tt.value, tt.token, got, tt.expected)
		}
	}
}

func TestMemcacheKey(t *testing.T) {
	short := "content:http://example.com/"
	if got := memcacheKey(short); got != short {
		t.Errorf("memcacheKey(%q) = %q should be unchanged", short, got)
	}

	long := "content:http://example.com/" + strings.Repeat("a", 300)
	got := memcacheKey(long)
	if !strings.HasPrefix(got, "content:") || len(got) != len("content:")+40 {
		t.Errorf("memcacheKey(long) = %q should be the prefix and a SHA1", got)
	}

	spaced := "count:http://example.com/a b"
	got = memcacheKey(spaced)
	if !legalKey(got) || !strings.HasPrefix(got, "count:") {
		t.Errorf("memcacheKey(%q) = %q should be a legal key", spaced, got)
	}
}

func TestExpiration(t *testing.T) {
	now := time.Unix(1700000000, 0)

	message := "expiration(%s) = %d should be %d"
	tests := []struct {
		ttl      time.Duration
		expected int32
	}{
		{100 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{10 * time.Second, 10},
		{31 * 24 * time.Hour, int32(now.Unix() + 31*24*60*60)},
	}

	for _, tt := range tests {
		if got := expiration(tt.ttl, now); got != tt.expected {
			t.Errorf(message, tt.ttl, got, tt.expected)
		}
	}
}
