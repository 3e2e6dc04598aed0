package session

import "github.com/prometheus/client_golang/prometheus"

// metricsSet is the optional Prometheus wiring for a Core: active buffer
// occupancy, flush counts, throttle counts, and pending error count,
// mirroring the Error Collector's GaugeFunc hook.
type metricsSet struct {
	activeBufferOps   prometheus.Gauge
	flushesTotal      prometheus.Counter
	throttledApplies  prometheus.Counter
	pendingErrorsFunc prometheus.GaugeFunc
}

// EnableMetrics registers a metricsSet on reg, labeled with labels, and
// wires pendingErrorsFunc to the Core's Error Collector. Safe to call at
// most once per Core; a nil reg disables metrics (the default).
func (c *Core) EnableMetrics(reg prometheus.Registerer, labels prometheus.Labels) error {
	if reg == nil {
		return nil
	}

	ms := &metricsSet{
		activeBufferOps: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "sabledb_session_active_buffer_operations",
			Help:        "Number of operations buffered in the currently active buffer.",
			ConstLabels: labels,
		}),
		flushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "sabledb_session_flushes_total",
			Help:        "Total number of buffer flushes dispatched.",
			ConstLabels: labels,
		}),
		throttledApplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "sabledb_session_throttled_applies_total",
			Help:        "Total number of apply calls that failed with ServiceUnavailable.",
			ConstLabels: labels,
		}),
		pendingErrorsFunc: c.collector.PendingErrorsGaugeFunc(labels),
	}

	for _, coll := range []prometheus.Collector{ms.activeBufferOps, ms.flushesTotal, ms.throttledApplies, ms.pendingErrorsFunc} {
		if err := reg.Register(coll); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.metrics = ms
	c.mu.Unlock()
	return nil
}

func (c *Core) observeActiveBufferLen(n int) {
	if c.metrics != nil {
		c.metrics.activeBufferOps.Set(float64(n))
	}
}

func (c *Core) observeFlush() {
	if c.metrics != nil {
		c.metrics.flushesTotal.Inc()
	}
}

func (c *Core) observeThrottle() {
	if c.metrics != nil {
		c.metrics.throttledApplies.Inc()
	}
}
