package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScrapeRegistry is the Registry of the long-running server. It also collects
// Go runtime and process metrics and reports the server start time.
type ScrapeRegistry struct {
	prom   *prometheus.Registry
	prefix string
}

// ScrapeOption configures a ScrapeRegistry.
type ScrapeOption func(*ScrapeRegistry)

// WithPrefix sets the namespace of metrics that do not set one, so names match
// the ones pushed by the CLI.
func WithPrefix(prefix string) ScrapeOption {
	return func(r *ScrapeRegistry) {
		r.prefix = prefix
	}
}

func NewScrapeRegistry(opts ...ScrapeOption) (*ScrapeRegistry, error) {
	r := &ScrapeRegistry{prom: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(r)
	}

	r.prom.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	started, err := r.NewGauge(prometheus.GaugeOpts{
		Name: "server_start_time_seconds",
		Help: "Unix time the server started",
	})
	if err != nil {
		return nil, err
	}
	started.Set(float64(time.Now().Unix()))
	return r, nil
}

// Handler serves the registry in the Prometheus or OpenMetrics text format.
func (r *ScrapeRegistry) Handler() http.Handler {
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (r *ScrapeRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	opts.Namespace = r.namespace(opts.Namespace)
	return register(r.prom, opts.Name, prometheus.NewGauge(opts))
}

func (r *ScrapeRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	opts.Namespace = r.namespace(opts.Namespace)
	v, err := register(r.prom, opts.Name, prometheus.NewGaugeVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return labeled[Gauge](func(l prometheus.Labels) Gauge { return v.With(l) }), nil
}

func (r *ScrapeRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	opts.Namespace = r.namespace(opts.Namespace)
	return register(r.prom, opts.Name, prometheus.NewCounter(opts))
}

func (r *ScrapeRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	opts.Namespace = r.namespace(opts.Namespace)
	v, err := register(r.prom, opts.Name, prometheus.NewCounterVec(opts, labels))
	if err != nil {
		return nil, err
	}
	return labeled[Counter](func(l prometheus.Labels) Counter { return v.With(l) }), nil
}

func (r *ScrapeRegistry) namespace(ns string) string {
	if ns != "" {
		return ns
	}
	return r.prefix
}

func register[C prometheus.Collector](reg *prometheus.Registry, name string, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var zero C
		return zero, fmt.Errorf("registering metric %q: %w", name, err)
	}
	return c, nil
}

// labeled adapts a prometheus vector's With to GaugeVec or CounterVec.
type labeled[M any] func(prometheus.Labels) M

func (f labeled[M]) With(l prometheus.Labels) M { return f(l) }
