package orchestrator

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamiurg/mountaineers-assistant-sub000/metrics"
)

// Metrics are the refresh metrics. A nil *Metrics records nothing.
type Metrics struct {
	runs          metrics.CounterVec
	newActivities metrics.Counter
	duration      metrics.Gauge
	activities    metrics.Gauge
}

// NewMetrics registers the refresh metrics with reg.
func NewMetrics(reg metrics.Registry) (*Metrics, error) {
	runs, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "refresh_runs_total",
		Help: "Refresh runs by result (success, failure, timeout)",
	}, []string{"result"})
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}
	newActivities, err := reg.NewCounter(prometheus.CounterOpts{
		Name: "refresh_new_activities_total",
		Help: "Activities added to the cache by refresh runs",
	})
	if err != nil {
		return nil, fmt.Errorf("creating new activities counter: %w", err)
	}
	duration, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "refresh_duration_seconds",
		Help: "Duration of the most recent refresh run",
	})
	if err != nil {
		return nil, fmt.Errorf("creating duration gauge: %w", err)
	}
	activities, err := reg.NewGauge(prometheus.GaugeOpts{
		Name: "cached_activities",
		Help: "Activities in the cache after the most recent successful refresh",
	})
	if err != nil {
		return nil, fmt.Errorf("creating cached activities gauge: %w", err)
	}
	return &Metrics{
		runs:          runs,
		newActivities: newActivities,
		duration:      duration,
		activities:    activities,
	}, nil
}

func (m *Metrics) observe(result string, seconds float64, summary *summaryCounts) {
	if m == nil {
		return
	}
	m.runs.With(prometheus.Labels{"result": result}).Inc()
	m.duration.Set(seconds)
	if summary != nil {
		m.newActivities.Add(float64(summary.newActivities))
		m.activities.Set(float64(summary.activityCount))
	}
}

type summaryCounts struct {
	newActivities int
	activityCount int
}
