package metric

import "github.com/prometheus/client_golang/prometheus"

// StorageSnapshot is the point-in-time state sampled at scrape time.
type StorageSnapshot struct {
	Backend  string
	Degraded bool

	CacheSize        int
	CacheCapacity    int
	CacheHits        uint64
	CacheMisses      uint64
	CacheEvictions   uint64
	CacheExpirations uint64

	AuditWritten    uint64
	AuditFailed     uint64
	AuditSuppressed uint64
}

// StorageSource provides snapshots to the Collector.
type StorageSource interface {
	MetricsSnapshot() StorageSnapshot
}

// Collector is a prometheus.Collector over a StorageSource.
type Collector struct {
	src StorageSource

	degraded      *prometheus.Desc
	cacheSize     *prometheus.Desc
	cacheCapacity *prometheus.Desc
	cacheEvents   *prometheus.Desc
	auditWrites   *prometheus.Desc
}

// NewCollector creates a collector that samples src.
func NewCollector(src StorageSource) *Collector {
	fq := func(name string) string {
		return prometheus.BuildFQName(Namespace, "storage", name)
	}
	return &Collector{
		src: src,
		degraded: prometheus.NewDesc(fq("degraded"),
			"1 when the ephemeral fallback backend is serving requests.", []string{"backend"}, nil),
		cacheSize: prometheus.NewDesc(fq("cache_entries"),
			"Sessions currently held in the hot cache.", nil, nil),
		cacheCapacity: prometheus.NewDesc(fq("cache_capacity"),
			"Maximum sessions held in the hot cache.", nil, nil),
		cacheEvents: prometheus.NewDesc(fq("cache_events_total"),
			"Hot cache lookups and removals by event.", []string{"event"}, nil),
		auditWrites: prometheus.NewDesc(fq("audit_writes_total"),
			"Audit write attempts by outcome.", []string{"outcome"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.degraded
	ch <- c.cacheSize
	ch <- c.cacheCapacity
	ch <- c.cacheEvents
	ch <- c.auditWrites
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.MetricsSnapshot()

	degraded := 0.0
	if s.Degraded {
		degraded = 1
	}
	ch <- prometheus.MustNewConstMetric(c.degraded, prometheus.GaugeValue, degraded, s.Backend)
	ch <- prometheus.MustNewConstMetric(c.cacheSize, prometheus.GaugeValue, float64(s.CacheSize))
	ch <- prometheus.MustNewConstMetric(c.cacheCapacity, prometheus.GaugeValue, float64(s.CacheCapacity))

	for event, v := range map[string]uint64{
		"hit":        s.CacheHits,
		"miss":       s.CacheMisses,
		"eviction":   s.CacheEvictions,
		"expiration": s.CacheExpirations,
	} {
		ch <- prometheus.MustNewConstMetric(c.cacheEvents, prometheus.CounterValue, float64(v), event)
	}

	for outcome, v := range map[string]uint64{
		"written":    s.AuditWritten,
		"failed":     s.AuditFailed,
		"suppressed": s.AuditSuppressed,
	} {
		ch <- prometheus.MustNewConstMetric(c.auditWrites, prometheus.CounterValue, float64(v), outcome)
	}
}
