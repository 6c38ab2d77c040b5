// Package metrics exports the outcome of fleet cycles as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eluv-io/tsaudit/fleet"
)

var _ fleet.Observer = (*Collector)(nil)

// Collector records every published fleet snapshot.
type Collector struct {
	// Per endpoint gauges, labelled by endpoint ID
	bitrate          *prometheus.GaugeVec
	problemPrograms  *prometheus.GaugeVec
	continuityErrors *prometheus.GaugeVec
	packets          *prometheus.GaugeVec
	probeFailures    *prometheus.CounterVec

	// Counters
	cycles prometheus.Counter
	faults prometheus.Gauge

	// Histograms
	cycleDuration prometheus.Histogram
}

// NewCollector creates the collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		bitrate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tsaudit_endpoint_bitrate_kbps",
			Help: "Average bitrate over the last observation window",
		}, []string{"endpoint"}),

		problemPrograms: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tsaudit_endpoint_problematic_programs",
			Help: "Programs marked problematic in the last cycle",
		}, []string{"endpoint"}),

		continuityErrors: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tsaudit_endpoint_continuity_errors",
			Help: "Continuity counter errors in the last observation window",
		}, []string{"endpoint"}),

		packets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tsaudit_endpoint_packets",
			Help: "TS packets received in the last observation window",
		}, []string{"endpoint"}),

		probeFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tsaudit_probe_failures_total",
			Help: "Probe runs that ended on an error",
		}, []string{"endpoint"}),

		cycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "tsaudit_cycles_total",
			Help: "Completed fleet cycles",
		}),

		faults: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tsaudit_faults",
			Help: "Fault descriptions published in the last cycle",
		}),

		cycleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tsaudit_cycle_duration_seconds",
			Help:    "Wall time of a fleet cycle",
			Buckets: []float64{1, 5, 10, 15, 20, 30, 60, 120},
		}),
	}
}

// ObserveCycle implements fleet.Observer.
func (c *Collector) ObserveCycle(s *fleet.Snapshot) {
	c.cycles.Inc()
	c.cycleDuration.Observe(s.Elapsed.Seconds())
	c.faults.Set(float64(len(s.Faults)))

	for _, res := range s.Results {
		ep := res.Endpoint
		c.bitrate.WithLabelValues(ep).Set(res.BitrateKbps)
		c.problemPrograms.WithLabelValues(ep).Set(float64(len(res.ProblematicPrograms)))
		c.continuityErrors.WithLabelValues(ep).Set(float64(res.ContinuityErrors))
		c.packets.WithLabelValues(ep).Set(float64(res.TotalPackets))
		if res.Err != "" {
			c.probeFailures.WithLabelValues(ep).Inc()
		}
	}
}
