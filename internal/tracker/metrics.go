package tracker

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "abble"

// Record outcomes for the records counter.
const (
	resultSeen      = "seen"
	resultIgnored   = "ignored"
	resultMalformed = "malformed"
	resultTruncated = "truncated"
	resultOK        = "ok"
)

// Metrics holds the tracker's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	messages       *prometheus.CounterVec
	records        *prometheus.CounterVec
	seen           *prometheus.CounterVec
	sinkErrors     prometheus.Counter
	discovered     prometheus.Counter
	trackedDevices *prometheus.GaugeVec
}

// NewMetrics creates unregistered collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "messages_total",
			Help:      "Gateway messages received, by result.",
		}, []string{"result"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "records_total",
			Help:      "Advertisement records processed, by result.",
		}, []string{"result"}),
		seen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "seen_total",
			Help:      "Seen events emitted, by identifier encoding.",
		}, []string{"vendor"}),
		sinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "sink_errors_total",
			Help:      "Seen events that at least one sink failed to deliver.",
		}),
		discovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "discovered_total",
			Help:      "Identifiers added to the tracked set by auto-discovery.",
		}),
		trackedDevices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tracked_devices",
			Help:      "Identifiers in the tracking set, by set.",
		}, []string{"set"}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.messages, m.records, m.seen, m.sinkErrors, m.discovered, m.trackedDevices,
	}
	var errs []error
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegisterMetrics creates the tracker collectors and registers them with reg.
func RegisterMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := NewMetrics()
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) message(result string) {
	if m != nil {
		m.messages.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) record(result string) {
	if m != nil {
		m.records.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) seenEvent(vendor string) {
	if m != nil {
		m.seen.WithLabelValues(vendor).Inc()
	}
}

func (m *Metrics) sinkError() {
	if m != nil {
		m.sinkErrors.Inc()
	}
}

func (m *Metrics) discoveredDevice() {
	if m != nil {
		m.discovered.Inc()
	}
}

func (m *Metrics) setSizes(tracked, untracked int) {
	if m != nil {
		m.trackedDevices.WithLabelValues("tracked").Set(float64(tracked))
		m.trackedDevices.WithLabelValues("untracked").Set(float64(untracked))
	}
}
