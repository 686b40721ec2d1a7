package monitor

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "fleetwatch"

// Metrics are the collector's own Prometheus series. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	cycles          prometheus.Counter
	skippedTicks    prometheus.Counter
	cycleDuration   prometheus.Histogram
	commandDuration *prometheus.HistogramVec
	commandFailures *prometheus.CounterVec
	hosts           *prometheus.GaugeVec
	pollersInFlight prometheus.Gauge
	lastPublish     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on registry.
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cycles_total",
			Help:      "Completed poll cycles.",
		}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "skipped_ticks_total",
			Help:      "Ticks dropped because a cycle was still running.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a poll cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Remote execution time per command.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"command"}),
		commandFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "command_failures_total",
			Help:      "Command failures by kind.",
		}, []string{"command", "kind"}),
		hosts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "hosts",
			Help:      "Hosts per state in the last published snapshot.",
		}, []string{"state"}),
		pollersInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pollers_in_flight",
			Help:      "Host pollers currently running.",
		}),
		lastPublish: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_publish_timestamp_seconds",
			Help:      "Unix time of the last published snapshot.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.cycles, m.skippedTicks, m.cycleDuration, m.commandDuration,
		m.commandFailures, m.hosts, m.pollersInFlight, m.lastPublish,
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register metric: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) observeCommand(name string, d time.Duration, failure *Failure) {
	if m == nil {
		return
	}
	if d > 0 {
		m.commandDuration.WithLabelValues(name).Observe(d.Seconds())
	}
	if failure != nil {
		m.commandFailures.WithLabelValues(name, failure.Kind).Inc()
	}
}

func (m *Metrics) pollerStarted() {
	if m != nil {
		m.pollersInFlight.Inc()
	}
}

func (m *Metrics) pollerDone() {
	if m != nil {
		m.pollersInFlight.Dec()
	}
}

func (m *Metrics) tickSkipped() {
	if m != nil {
		m.skippedTicks.Inc()
	}
}

func (m *Metrics) cyclePublished(snap *FleetSnapshot) {
	if m == nil {
		return
	}
	m.cycles.Inc()
	m.cycleDuration.Observe(snap.Duration.Seconds())
	m.lastPublish.Set(float64(snap.Timestamp.Unix()))

	healthy, degraded, down := snap.Counts()
	m.hosts.WithLabelValues("healthy").Set(float64(healthy))
	m.hosts.WithLabelValues("degraded").Set(float64(degraded))
	m.hosts.WithLabelValues("down").Set(float64(down))
}
