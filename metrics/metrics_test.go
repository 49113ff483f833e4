package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/microcosm-cc/pagecache/cache"
)

var _ cache.Metrics = (*Metrics)(nil)

func TestMetrics(t *testing.T) {
	m := NewMetrics("pagecache")

	m.Hit()
	m.Hit()
	m.Miss()
	m.Coalesced()
	m.StoreFailed()
	m.Fetched(time.Millisecond, nil)
	m.Fetched(time.Millisecond, errors.New("timeout"))
	m.Fetched(time.Millisecond, errors.New("timeout"))

	message := "%s = %v should be %v"
	if got := testutil.ToFloat64(m.Hits); got != 2 {
		t.Errorf(message, "hits", got, 2)
	}
	if got := testutil.ToFloat64(m.Misses); got != 1 {
		t.Errorf(message, "misses", got, 1)
	}
	if got := testutil.ToFloat64(m.CoalescedWaits); got != 1 {
		t.Errorf(message, "coalesced", got, 1)
	}
	if got := testutil.ToFloat64(m.Fetches.WithLabelValues("ok")); got != 1 {
		t.Errorf(message, "ok fetches", got, 1)
	}
	if got := testutil.ToFloat64(m.Fetches.WithLabelValues("error")); got != 2 {
		t.Errorf(message, "failed fetches", got, 2)
	}

	expected := Stats{Hits: 2, Misses: 1, Coalesced: 1, Fetches: 1, FetchErrors: 2, StoreErrors: 1}
	if got := m.Snapshot(); got != expected {
		t.Errorf(message, "snapshot", got, expected)
	}
	m.LogStats()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "pagecache_cache_hits_total 2") {
		t.Errorf("scrape output is missing pagecache_cache_hits_total")
	}
}
