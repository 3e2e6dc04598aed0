package errcollector

import "github.com/prometheus/client_golang/prometheus"

// PendingErrorsGaugeFunc returns a prometheus.GaugeFunc collector reporting
// the collector's current queue depth. The Session wires this into its own
// metrics registration (see session.Core.EnableMetrics) rather than
// this package depending on prometheus registration directly, keeping the
// collector's own dependency surface to measurement only.
func (c *Collector) PendingErrorsGaugeFunc(labels prometheus.Labels) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name:        "sabledb_session_pending_errors",
		Help:        "Number of row errors currently queued in the session's error collector.",
		ConstLabels: labels,
	}, func() float64 {
		return float64(c.Count())
	})
}
