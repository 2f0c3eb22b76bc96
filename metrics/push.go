package metrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/golang/protobuf/proto"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 30 * time.Second
)

// PushRegistry implements Registry for a short-lived process. Values are kept in
// memory and sent in a single remote write request by Flush.
type PushRegistry struct {
	url        string
	httpClient *http.Client
	prefix     string
	job        string
	instance   string
	now        func() time.Time

	mu     sync.Mutex
	series map[string]*series
}

// PushConfig configures a PushRegistry.
type PushConfig struct {
	// URL is the base URL of the remote write endpoint (e.g., "http://localhost:8428").
	URL string
	// Prefix is prepended to every metric name, followed by an underscore.
	Prefix string
	// Job is the job label for all metrics.
	Job string
	// Instance is the instance label for all metrics.
	Instance string
	// Timeout is the HTTP client timeout. Defaults to DefaultTimeout.
	Timeout time.Duration
}

type series struct {
	name   string
	labels map[string]string
	value  float64
}

// NewPushRegistry creates a registry that pushes to cfg.URL + "/api/v1/write".
func NewPushRegistry(cfg PushConfig) *PushRegistry {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &PushRegistry{
		url:        strings.TrimRight(cfg.URL, "/") + "/api/v1/write",
		httpClient: &http.Client{Timeout: timeout},
		prefix:     cfg.Prefix,
		job:        cfg.Job,
		instance:   cfg.Instance,
		now:        time.Now,
		series:     make(map[string]*series),
	}
}

// NewGauge creates a new push-based Gauge.
func (r *PushRegistry) NewGauge(opts prometheus.GaugeOpts) (Gauge, error) {
	return &pushGauge{reg: r, name: opts.Name}, nil
}

// NewGaugeVec creates a new push-based GaugeVec.
func (r *PushRegistry) NewGaugeVec(opts prometheus.GaugeOpts, labels []string) (GaugeVec, error) {
	return &pushGaugeVec{reg: r, name: opts.Name}, nil
}

// NewCounter creates a new push-based Counter.
func (r *PushRegistry) NewCounter(opts prometheus.CounterOpts) (Counter, error) {
	return &pushCounter{reg: r, name: opts.Name}, nil
}

// NewCounterVec creates a new push-based CounterVec.
func (r *PushRegistry) NewCounterVec(opts prometheus.CounterOpts, labels []string) (CounterVec, error) {
	return &pushCounterVec{reg: r, name: opts.Name}, nil
}

// set records the current value of a series.
func (r *PushRegistry) set(name string, labels map[string]string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seriesKey(name, labels)
	if s, ok := r.series[key]; ok {
		s.value = value
		return
	}
	r.series[key] = &series{name: name, labels: maps.Clone(labels), value: value}
}

// add increments a series by v.
func (r *PushRegistry) add(name string, labels map[string]string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := seriesKey(name, labels)
	if s, ok := r.series[key]; ok {
		s.value += v
		return
	}
	r.series[key] = &series{name: name, labels: maps.Clone(labels), value: v}
}

// Flush sends every recorded series with the current timestamp. Nothing is sent
// when no values were recorded.
func (r *PushRegistry) Flush(ctx context.Context) error {
	r.mu.Lock()
	timestamp := r.now().UnixMilli()
	keys := slices.Sorted(maps.Keys(r.series))
	timeseries := make([]prompb.TimeSeries, 0, len(keys))
	for _, k := range keys {
		s := r.series[k]
		timeseries = append(timeseries, r.toTimeSeries(s, timestamp))
	}
	r.mu.Unlock()

	if len(timeseries) == 0 {
		return nil
	}

	data, err := proto.Marshal(&prompb.WriteRequest{Timeseries: timeseries})
	if err != nil {
		return fmt.Errorf("marshaling write request: %w", err)
	}
	compressed := snappy.Encode(nil, data)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(compressed))
	if err != nil {
		return fmt.Errorf("creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

func (r *PushRegistry) toTimeSeries(s *series, timestamp int64) prompb.TimeSeries {
	name := s.name
	if r.prefix != "" {
		name = r.prefix + "_" + name
	}
	labels := make([]prompb.Label, 0, len(s.labels)+3)
	labels = append(labels, prompb.Label{Name: "__name__", Value: name})
	if r.job != "" {
		labels = append(labels, prompb.Label{Name: "job", Value: r.job})
	}
	if r.instance != "" {
		labels = append(labels, prompb.Label{Name: "instance", Value: r.instance})
	}
	for _, k := range slices.Sorted(maps.Keys(s.labels)) {
		labels = append(labels, prompb.Label{Name: k, Value: s.labels[k]})
	}
	return prompb.TimeSeries{
		Labels:  labels,
		Samples: []prompb.Sample{{Value: s.value, Timestamp: timestamp}},
	}
}

// seriesKey identifies a series independently of label map ordering.
func seriesKey(name string, labels map[string]string) string {
	var b strings.Builder
	b.WriteString(name)
	for _, k := range slices.Sorted(maps.Keys(labels)) {
		b.WriteString("," + k + "=" + labels[k])
	}
	return b.String()
}

type pushGauge struct {
	reg    *PushRegistry
	name   string
	labels map[string]string
}

func (g *pushGauge) Set(v float64) {
	g.reg.set(g.name, g.labels, v)
}

type pushGaugeVec struct {
	reg  *PushRegistry
	name string
}

func (g *pushGaugeVec) With(labels prometheus.Labels) Gauge {
	return &pushGauge{reg: g.reg, name: g.name, labels: labels}
}

type pushCounter struct {
	reg    *PushRegistry
	name   string
	labels map[string]string
}

func (c *pushCounter) Inc() {
	c.Add(1)
}

func (c *pushCounter) Add(v float64) {
	if v < 0 {
		panic("counter cannot decrease in value")
	}
	c.reg.add(c.name, c.labels, v)
}

type pushCounterVec struct {
	reg  *PushRegistry
	name string
}

func (c *pushCounterVec) With(labels prometheus.Labels) Counter {
	return &pushCounter{reg: c.reg, name: c.name, labels: labels}
}
