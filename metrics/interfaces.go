// Package metrics provides the metric interfaces used by the refresh orchestrator
// and collector, with one implementation per way the program runs.
//
// The server registers metrics with a Prometheus registry and serves them on
// /metrics. The CLI records values during a single refresh and pushes them to a
// VictoriaMetrics (Prometheus remote write) endpoint when it exits. Nop discards
// everything and is used when monitoring is not configured.
//
// Metric names are given without the program prefix; each Registry adds it.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Gauge interface {
	Set(float64)
}

// Counter only goes up. Add panics on a negative value.
type Counter interface {
	Inc()
	Add(float64)
}

type GaugeVec interface {
	With(prometheus.Labels) Gauge
}

type CounterVec interface {
	With(prometheus.Labels) Counter
}

// Registry creates metrics. Creating two metrics with the same name is an error
// for registries that export by name.
type Registry interface {
	NewGauge(opts prometheus.GaugeOpts) (Gauge, error)
	NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error)
	NewCounter(opts prometheus.CounterOpts) (Counter, error)
	NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error)
}
