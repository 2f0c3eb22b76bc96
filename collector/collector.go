// Package collector harvests the signed-in user's completed activities, their
// classification and rosters from the activity site.
//
// A collection run discovers the activities page, reads the history feed, keeps
// successful activities that are not already cached and enriches each one with
// its detail page and roster. Progress is reported after every activity with a
// delta holding that activity's data, so a caller can persist partial results.
package collector

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/clients/siteclient"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/metrics"
)

// Origin identifies progress messages sent by the collector.
const Origin = "collector"

// Site is the subset of the site client used by the collector.
type Site interface {
	Get(ctx context.Context, rawURL string, header http.Header) (*siteclient.Response, error)
	BaseURL() *url.URL
}

// Collector runs collection passes against one site session.
type Collector struct {
	site     Site
	logger   *slog.Logger
	now      func() time.Time
	failures metrics.CounterVec
	hook     logging.LoggerHook
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Collector) {
		c.logger = logger.With("component", "collector")
	}
}

// WithClock overrides the time source used for progress timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		c.now = now
	}
}

// WithFailureCounter counts enrichment failures by kind ("detail" or "roster").
func WithFailureCounter(cv metrics.CounterVec) Option {
	return func(c *Collector) {
		c.failures = cv
	}
}

// WithLoggerHook wraps the logger of each run, keyed by the run ID.
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(c *Collector) {
		c.hook = hook
	}
}

// New creates a collector reading from site.
func New(site Site, opts ...Option) *Collector {
	c := &Collector{
		site:   site,
		logger: slog.Default().With("component", "collector"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Collect performs one collection run. Progress messages are passed to emit as
// the run advances; the returned result is the run's terminal message.
func (c *Collector) Collect(ctx context.Context, req bus.CollectRequest, emit func(bus.Progress)) bus.Result {
	if c.hook != nil {
		run := *c
		run.logger = c.hook.LoggerForRun(c.logger, req.RunID)
		run.hook = nil
		return run.Collect(ctx, req, emit)
	}

	logger := c.logger.With("run_id", req.RunID)
	send := func(p bus.Progress) {
		p.RunID = req.RunID
		p.Origin = Origin
		p.Timestamp = c.now()
		emit(p)
	}

	data, err := c.collect(ctx, req, logger, send)
	if err != nil {
		logger.Error("collection failed", "error", err)
		send(bus.Progress{Stage: cache.StageError, Error: err.Error()})
		return bus.Result{RunID: req.RunID, Error: err.Error()}
	}
	return bus.Result{RunID: req.RunID, Success: true, Data: data}
}

func (c *Collector) collect(ctx context.Context, req bus.CollectRequest, logger *slog.Logger, send func(bus.Progress)) (*cache.Delta, error) {
	send(bus.Progress{Stage: cache.StageFetchingActivities})

	session, err := c.Discover(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := c.FetchHistory(ctx, session.ActivitiesURL)
	if err != nil {
		return nil, err
	}

	limit := 0
	if req.FetchLimit != nil {
		limit = *req.FetchLimit
	}
	activities := Normalize(raw, c.site.BaseURL(), req.ExistingUIDs, limit)
	total := len(activities)
	logger.Info("activities selected for enrichment",
		"feed_records", len(raw),
		"known", len(req.ExistingUIDs),
		"new", total,
	)

	if total == 0 {
		send(bus.Progress{Stage: cache.StageNoNewActivities, Total: intPtr(0), Completed: intPtr(0)})
	} else {
		send(bus.Progress{Stage: cache.StageActivitiesCollected, Total: intPtr(total), Completed: intPtr(0)})
	}

	result := &cache.Delta{
		Activities:     make([]cache.ActivityRecord, 0, total),
		People:         []cache.PersonRecord{},
		RosterEntries:  []cache.RosterEntryRecord{},
		CurrentUserUID: session.CurrentUserUID,
	}
	people := make(map[string]int)

	for i, activity := range activities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step := bus.Progress{
			Total:         intPtr(total),
			Completed:     intPtr(i),
			ActivityUID:   activity.UID,
			ActivityTitle: activity.Title,
		}
		step.Stage = cache.StageLoadingDetails
		send(step)
		step.Stage = cache.StageLoadingRoster
		send(step)

		e := c.Enrich(ctx, activity)

		delta := &cache.Delta{
			Activities:    []cache.ActivityRecord{e.Activity},
			People:        make([]cache.PersonRecord, 0, len(e.People)),
			RosterEntries: append([]cache.RosterEntryRecord{}, e.Roster...),
		}
		for _, p := range e.People {
			if j, ok := people[p.UID]; ok {
				result.People[j] = cache.FillForward(result.People[j], p)
				delta.People = append(delta.People, result.People[j])
				continue
			}
			people[p.UID] = len(result.People)
			result.People = append(result.People, p)
			delta.People = append(delta.People, p)
		}
		result.Activities = append(result.Activities, e.Activity)
		result.RosterEntries = append(result.RosterEntries, e.Roster...)

		step.Stage = cache.StageProcessing
		step.Completed = intPtr(i + 1)
		step.Delta = delta
		send(step)
	}

	send(bus.Progress{Stage: cache.StageFinalizing, Total: intPtr(total), Completed: intPtr(total)})
	logger.Info("collection finished",
		"activities", len(result.Activities),
		"people", len(result.People),
		"roster_entries", len(result.RosterEntries),
	)
	return result, nil
}

func (c *Collector) countFailure(kind string) {
	if c.failures != nil {
		c.failures.With(prometheus.Labels{"kind": kind}).Inc()
	}
}

func intPtr(n int) *int { return &n }
