package stats

import "github.com/prometheus/client_golang/prometheus"

// Collector exports a Tracker's counters to Prometheus. Counters are read
// on scrape, so the hot path keeps its plain atomics.
type Collector struct {
	tracker *Tracker
	desc    *prometheus.Desc
}

// NewCollector creates a collector for t. Metrics are named
// <namespace>_stream_events_total with labels stream and outcome.
func NewCollector(t *Tracker, namespace string) *Collector {
	return &Collector{
		tracker: t,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "stream", "events_total"),
			"Events per stream and outcome (received, accepted, dropped, failed).",
			[]string{"stream", "outcome"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for name, s := range c.tracker.Snapshot() {
		for outcome, v := range map[string]int64{
			"received": s.Received,
			"accepted": s.Accepted,
			"dropped":  s.Dropped,
			"failed":   s.Failures,
		} {
			ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(v), name, outcome)
		}
	}
}
