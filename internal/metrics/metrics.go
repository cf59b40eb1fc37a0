// Package metrics records service outcomes in a Prometheus registry that the
// console dumps for the node-exporter textfile collector.
//
// campctl runs one command per process, so operation counters and latencies
// cover a single invocation and every dump replaces the previous one. The
// gauges are recomputed from the store on each dump and always describe the
// whole camp.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/camp-logistics/internal/application"
)

const namespace = "camp"

// Recorder implements application.MetricsRecorder.
type Recorder struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	presence   prometheus.Gauge
	beds       *prometheus.GaugeVec
	attendees  prometheus.Gauge
	unassigned prometheus.Gauge
}

// NewRecorder registers the console collectors on a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Service operations by outcome during the last campctl invocation.",
		}, []string{"operation", "outcome"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Service operation latency during the last campctl invocation, persistence included.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5},
		}, []string{"operation"}),
		presence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "presence_ratio",
			Help:      "Share of attendees checked in.",
		}),
		beds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "room_beds",
			Help:      "Beds by state.",
		}, []string{"state"}),
		attendees: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attendees",
			Help:      "Attendees in the directory snapshot.",
		}),
		unassigned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "unassigned_attendees",
			Help:      "Attendees without a room.",
		}),
	}
	r.registry.MustRegister(r.operations, r.durations, r.presence, r.beds, r.attendees, r.unassigned)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe counts the operation and records its latency.
func (r *Recorder) Observe(ctx context.Context, operation, outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.operations.WithLabelValues(operation, outcome).Inc()
	r.durations.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetDashboard refreshes the gauges from a dashboard.
func (r *Recorder) SetDashboard(d application.Dashboard) {
	if r == nil {
		return
	}
	r.presence.Set(d.PresenceRate)
	r.attendees.Set(float64(d.Attendees))
	r.unassigned.Set(float64(d.Unassigned))
	r.beds.WithLabelValues("used").Set(float64(d.Occupancy.UsedBeds))
	r.beds.WithLabelValues("free").Set(float64(d.Occupancy.FreeBeds()))
}

// WriteTextfile writes the registry atomically to path, replacing the
// samples of any earlier invocation.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
