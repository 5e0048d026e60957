// Package metrics is a thin abstraction over Prometheus so Core can be used
// with or without metrics: a Sink interface with a noop implementation and
// a Prometheus-backed one, tracking this module's own counters and gauges.
//
// © 2025 trustedcell authors. MIT License.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink is the internal interface abstracting the concrete backend. Core and
// its subordinate packages only know these methods.
type Sink interface {
	IncCacheHit(shard int)
	IncCacheMiss(shard int)
	IncCacheEviction(shard int, n int)
	SetQueueDepth(n int)
	SetPendingCount(n int)
	ObserveHostRoundTrip(seconds float64)
	IncHostParseError()
}

/* ---------------- No-op implementation ---------------- */

type noop struct{}

func (noop) IncCacheHit(int)              {}
func (noop) IncCacheMiss(int)             {}
func (noop) IncCacheEviction(int, int)    {}
func (noop) SetQueueDepth(int)            {}
func (noop) SetPendingCount(int)          {}
func (noop) ObserveHostRoundTrip(float64) {}
func (noop) IncHostParseError()           {}

/* ---------------- Prometheus implementation ---------------- */

type prom struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	queueDepth     prometheus.Gauge
	pendingCount   prometheus.Gauge
	hostRoundTrip  prometheus.Histogram
	hostParseErr   prometheus.Counter
}

func newProm(reg *prometheus.Registry) *prom {
	label := []string{"shard"}
	p := &prom{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trustedcell", Name: "cache_hits_total", Help: "Number of decision cache hits.",
		}, label),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trustedcell", Name: "cache_misses_total", Help: "Number of decision cache misses.",
		}, label),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trustedcell", Name: "cache_evictions_total", Help: "Number of cache entries evicted by popularity sweep.",
		}, label),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trustedcell", Name: "queue_depth", Help: "Outstanding requests in the outbound FIFO.",
		}),
		pendingCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "trustedcell", Name: "pending_responses", Help: "Requests awaiting a host response.",
		}),
		hostRoundTrip: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trustedcell", Name: "host_round_trip_seconds", Help: "Latency of a full decide() host round trip.",
			Buckets: prometheus.DefBuckets,
		}),
		hostParseErr: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "trustedcell", Name: "host_parse_errors_total", Help: "Malformed lines written to the host file.",
		}),
	}
	reg.MustRegister(p.cacheHits, p.cacheMisses, p.cacheEvictions, p.queueDepth,
		p.pendingCount, p.hostRoundTrip, p.hostParseErr)
	return p
}

func (p *prom) IncCacheHit(shard int) {
	p.cacheHits.WithLabelValues(strconv.Itoa(shard)).Inc()
}
func (p *prom) IncCacheMiss(shard int) {
	p.cacheMisses.WithLabelValues(strconv.Itoa(shard)).Inc()
}
func (p *prom) IncCacheEviction(shard int, n int) {
	p.cacheEvictions.WithLabelValues(strconv.Itoa(shard)).Add(float64(n))
}
func (p *prom) SetQueueDepth(n int)            { p.queueDepth.Set(float64(n)) }
func (p *prom) SetPendingCount(n int)          { p.pendingCount.Set(float64(n)) }
func (p *prom) ObserveHostRoundTrip(s float64) { p.hostRoundTrip.Observe(s) }
func (p *prom) IncHostParseError()             { p.hostParseErr.Inc() }

// New returns a noop sink if reg is nil, otherwise a Prometheus-backed sink
// registered against reg.
func New(reg *prometheus.Registry) Sink {
	if reg == nil {
		return noop{}
	}
	return newProm(reg)
}
