// Package metrics exposes Prometheus collectors for the lookup cache and
// the upstream client.
package metrics

import (
	"time"

	"github.com/Keksclan/ipcache/cache"
	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/status"
)

const namespace = "ipcache"

// Cache implements [cache.Recorder] on top of Prometheus counters.
type Cache struct {
	requests *prometheus.CounterVec
	sets     *prometheus.CounterVec
	clears   prometheus.Counter
}

var _ cache.Recorder = (*Cache)(nil)

// NewCache registers the cache collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewCache(reg prometheus.Registerer) *Cache {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Cache{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "requests_total",
			Help:      "Cache reads by key space and result (hit, miss, stale).",
		}, []string{"space", "result"}),
		sets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "sets_total",
			Help:      "Cache writes by key space.",
		}, []string{"space"}),
		clears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "clears_total",
			Help:      "Number of times the whole cache was cleared.",
		}),
	}
	reg.MustRegister(c.requests, c.sets, c.clears)
	return c
}

func (c *Cache) Hit(sp cache.Space)   { c.requests.WithLabelValues(string(sp), "hit").Inc() }
func (c *Cache) Miss(sp cache.Space)  { c.requests.WithLabelValues(string(sp), "miss").Inc() }
func (c *Cache) Stale(sp cache.Space) { c.requests.WithLabelValues(string(sp), "stale").Inc() }
func (c *Cache) Set(sp cache.Space)   { c.sets.WithLabelValues(string(sp)).Inc() }
func (c *Cache) Clear()               { c.clears.Inc() }

// Upstream records outbound lookups. A nil *Upstream is valid and records
// nothing.
type Upstream struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewUpstream registers the upstream collectors with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func NewUpstream(reg prometheus.Registerer) *Upstream {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	u := &Upstream{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream lookups by kind and resulting gRPC code.",
		}, []string{"kind", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Latency of upstream lookups, retries included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
	}
	reg.MustRegister(u.requests, u.duration)
	return u
}

// Observe records one upstream lookup of the given kind ("ip", "asn",
// "field") that finished with err after d.
func (u *Upstream) Observe(kind string, err error, d time.Duration) {
	if u == nil {
		return
	}
	u.requests.WithLabelValues(kind, status.Code(err).String()).Inc()
	u.duration.WithLabelValues(kind).Observe(d.Seconds())
}
