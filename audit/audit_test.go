package audit

import (
	"net"
	"testing"
	"time"
)

func TestRecordBuffersUpToLimit(t *testing.T) {
	r := NewRecorder(nil, 3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		r.Record(Access{URL: "http://example.com/", Outcome: Hit, Seen: now, IP: net.ParseIP("127.0.0.1")})
	}
	r.Record(Access{Outcome: Miss, Seen: now})

	if got := r.Pending(); got != 3 {
		t.Errorf("Pending() = %d should be 3", got)
	}

	batch, dropped := r.take()
	if len(batch) != 3 || dropped != 2 {
		t.Errorf("take() = %d, %d should be 3, 2", len(batch), dropped)
	}
	if r.Pending() != 0 {
		t.Errorf("take() should empty the buffer")
	}
}

func TestFlushWithoutDatabase(t *testing.T) {
	r := NewRecorder(nil, 0)

	if err := r.Flush(); err != nil {
		t.Errorf("Flush() of an empty buffer should not fail: %v", err)
	}

	r.Record(Access{URL: "http://example.com/", Outcome: Error, Seen: time.Now()})
	if err := r.Flush(); err == nil {
		t.Error("Flush() without a database should fail")
	}
	if r.Pending() != 0 {
		t.Error("a failed batch is discarded")
	}
}
