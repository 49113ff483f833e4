// Package metrics provides Prometheus metrics for the page cache.
package metrics

import (
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Metrics implements cache.Metrics
type Metrics struct {
	Hits           prometheus.Counter
	Misses         prometheus.Counter
	CoalescedWaits prometheus.Counter
	StoreErrors    prometheus.Counter

	Fetches       *prometheus.CounterVec
	FetchDuration prometheus.Histogram

	registry *prometheus.Registry
}

// NewMetrics creates the metrics under namespace in their own registry
func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Requests served from a fresh cache entry",
		}),
		Misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Requests that found no fresh cache entry",
		}),
		CoalescedWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_coalesced_total",
			Help:      "Misses satisfied by a fetch started by another caller",
		}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Errors returned by the cache store",
		}),
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Fetches from the content source by result",
		}, []string{"result"}),
		FetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching from the content source",
			Buckets:   prometheus.DefBuckets,
		}),
		registry: reg,
	}
}

// Handler serves the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Hit()         { m.Hits.Inc() }
func (m *Metrics) Miss()        { m.Misses.Inc() }
func (m *Metrics) Coalesced()   { m.CoalescedWaits.Inc() }
func (m *Metrics) StoreFailed() { m.StoreErrors.Inc() }

// Fetched records the duration and outcome of a fetch
func (m *Metrics) Fetched(d time.Duration, err error) {
	m.FetchDuration.Observe(d.Seconds())
	if err != nil {
		m.Fetches.WithLabelValues("error").Inc()
		return
	}
	m.Fetches.WithLabelValues("ok").Inc()
}

// Stats is a snapshot of the counters since start up
type Stats struct {
	Hits        uint64
	Misses      uint64
	Coalesced   uint64
	Fetches     uint64
	FetchErrors uint64
	StoreErrors uint64
}

// Snapshot reads the current value of every counter
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Hits:        counterValue(m.Hits),
		Misses:      counterValue(m.Misses),
		Coalesced:   counterValue(m.CoalescedWaits),
		Fetches:     counterValue(m.Fetches.WithLabelValues("ok")),
		FetchErrors: counterValue(m.Fetches.WithLabelValues("error")),
		StoreErrors: counterValue(m.StoreErrors),
	}
}

// LogStats writes a one line summary of the counters, run from the cron table
func (m *Metrics) LogStats() {
	s := m.Snapshot()
	glog.Infof(
		"cache stats: hits=%d misses=%d coalesced=%d fetches=%d fetch_errors=%d store_errors=%d",
		s.Hits, s.Misses, s.Coalesced, s.Fetches, s.FetchErrors, s.StoreErrors,
	)
}

func counterValue(c prometheus.Counter) uint64 {
	var pb dto.Metric
	if err := c.Write(&pb); err != nil {
		glog.Warningf("counter.Write() %+v", err)
		return 0
	}
	return uint64(pb.GetCounter().GetValue())
}
