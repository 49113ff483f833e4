package blob

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/microcosm-cc/pagecache/cache"
)

func TestPointer(t *testing.T) {
	name := objectName("content:http://example.com/", []byte("page"))
	if !strings.HasPrefix(name, "pages/") {
		t.Errorf("objectName() = %q should be under pages/", name)
	}

	got, ok := decodePointer(encodePointer(name))
	if !ok || got != name {
		t.Errorf("decodePointer() = %q, %t should be %q, true", got, ok, name)
	}

	if _, ok := decodePointer([]byte("ordinary value")); ok {
		t.Error("an ordinary value must not decode as a pointer")
	}
}

func TestSmallValuesStayInStore(t *testing.T) {
	ctx := context.Background()
	inner := cache.NewMemoryStore(nil)

	// No bucket is reachable; values under the threshold never touch it
	s, err := NewOverflowStore(inner, Config{Endpoint: "127.0.0.1:1", Bucket: "pages", Threshold: 16})
	if err != nil {
		t.Fatalf("NewOverflowStore() %+v", err)
	}

	if err := s.SetWithExpiry(ctx, "k", []byte("small"), time.Minute); err != nil {
		t.Fatalf("SetWithExpiry() %+v", err)
	}

	val, ok, err := s.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(val, []byte("small")) {
		t.Errorf("Get() = %q, %t, %v should be small, true, nil", val, ok, err)
	}

	n, err := s.Increment(ctx, "count:k")
	if err != nil || n != 1 {
		t.Errorf("Increment() = %d, %v should pass through to the store", n, err)
	}
}
