package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/diagnostics"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

const (
	// DefaultTimeout bounds a refresh from request to result.
	DefaultTimeout = 5 * time.Minute

	diagnosticsOperation = "refresh"
	persistTimeout       = 10 * time.Second
	watcherBuffer        = 32
)

// CollectorHost starts the collection context on demand.
type CollectorHost interface {
	Ensure(ctx context.Context) error
}

// Orchestrator runs refreshes one at a time.
type Orchestrator struct {
	bus      *bus.Bus
	host     CollectorHost
	records  *store.Records
	logger   *slog.Logger
	recorder diagnostics.Recorder
	warnings *logging.WarningHook
	metrics  *Metrics
	now      func() time.Time
	newRunID func() string

	mu           sync.Mutex
	timeout      time.Duration
	defaultLimit *int
	state        State
	runID        string
	startedAt    time.Time
	progress     *cache.RefreshProgress
	working      *cache.ExtensionCache
	lastRunID    string
	lastSummary  *cache.RefreshSummary
	lastError    string
	watchers     map[int]chan Update
	nextWatcher  int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "orchestrator")
	}
}

// WithTimeout sets how long a refresh may take before it fails.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithDefaultFetchLimit sets the fetch limit used when the saved settings do
// not set one.
func WithDefaultFetchLimit(limit *int) Option {
	return func(o *Orchestrator) {
		o.defaultLimit = limit
	}
}

// WithRecorder sets the diagnostics recorder notified of failed runs.
func WithRecorder(r diagnostics.Recorder) Option {
	return func(o *Orchestrator) {
		o.recorder = r
	}
}

// WithWarningHook exposes the warnings captured by hook for each run.
func WithWarningHook(hook *logging.WarningHook) Option {
	return func(o *Orchestrator) {
		o.warnings = hook
	}
}

// WithMetrics records refresh metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithRunIDs overrides run ID generation.
func WithRunIDs(next func() string) Option {
	return func(o *Orchestrator) {
		o.newRunID = next
	}
}

// New creates an orchestrator that talks to the collector over b.
func New(b *bus.Bus, host CollectorHost, records *store.Records, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		bus:      b,
		host:     host,
		records:  records,
		logger:   slog.Default().With("component", "orchestrator"),
		timeout:  DefaultTimeout,
		now:      time.Now,
		newRunID: uuid.NewString,
		state:    StateIdle,
		watchers: make(map[int]chan Update),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.recorder == nil {
		o.recorder = diagnostics.NewLogRecorder(o.logger, 0)
	}
	return o
}

// Refresh runs a refresh and waits for it to finish. It returns an
// *AlreadyRunningError if another refresh is in flight.
func (o *Orchestrator) Refresh(ctx context.Context) (cache.RefreshSummary, error) {
	runID, err := o.tryStart()
	if err != nil {
		return cache.RefreshSummary{}, err
	}
	summary, err := o.execute(ctx, runID)
	o.finish(runID, summary, err)
	return summary, err
}

// Start runs a refresh in the background and returns its run ID.
func (o *Orchestrator) Start() (string, error) {
	runID, err := o.tryStart()
	if err != nil {
		return "", err
	}
	go func() {
		summary, err := o.execute(context.Background(), runID)
		o.finish(runID, summary, err)
	}()
	return runID, nil
}

// Run implements the cron Runnable interface. A refresh already in flight is
// not an error.
func (o *Orchestrator) Run() error {
	_, err := o.Start()
	if errors.Is(err, ErrRefreshInProgress) {
		o.logger.Info("scheduled refresh skipped, refresh already in progress")
		return nil
	}
	return err
}

// Status reports whether a refresh is in flight and its latest progress.
func (o *Orchestrator) Status() bus.StatusResponse {
	o.mu.Lock()
	defer o.mu.Unlock()
	return bus.StatusResponse{
		Success:    true,
		InProgress: o.state.Active(),
		Progress:   copyProgress(o.progress),
	}
}

// Reconfigure changes the timeout and default fetch limit used by later runs.
// A run already in flight keeps the values it started with.
func (o *Orchestrator) Reconfigure(timeout time.Duration, defaultLimit *int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if timeout > 0 {
		o.timeout = timeout
	}
	o.defaultLimit = defaultLimit
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// HandleMessage answers messages addressed to the orchestrator. Only status
// requests are supported.
func (o *Orchestrator) HandleMessage(m bus.Message) (bus.Message, error) {
	switch m.(type) {
	case bus.StatusRequest:
		return o.Status(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMessage, m.Kind())
	}
}

// LastSummary returns the summary of the most recent successful run.
func (o *Orchestrator) LastSummary() (cache.RefreshSummary, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastSummary == nil {
		return cache.RefreshSummary{}, false
	}
	return *o.lastSummary, true
}

// LastError returns the error of the most recent run, or "" if it succeeded.
func (o *Orchestrator) LastError() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastError
}

// Warnings returns the warnings logged during the current run, or during the
// most recent run when idle.
func (o *Orchestrator) Warnings() []logging.LogEntry {
	if o.warnings == nil {
		return nil
	}
	o.mu.Lock()
	runID := o.runID
	if runID == "" {
		runID = o.lastRunID
	}
	o.mu.Unlock()
	if runID == "" {
		return nil
	}
	return o.warnings.Warnings(runID)
}

// Watch registers a listener for updates. Updates are dropped for a listener
// whose buffer is full. The returned function unregisters it.
func (o *Orchestrator) Watch() (<-chan Update, func()) {
	ch := make(chan Update, watcherBuffer)

	o.mu.Lock()
	id := o.nextWatcher
	o.nextWatcher++
	o.watchers[id] = ch
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			delete(o.watchers, id)
			o.mu.Unlock()
		})
	}
}

// tryStart claims the orchestrator for a new run. The guard is checked and set
// under one lock before any blocking work.
func (o *Orchestrator) tryStart() (string, error) {
	o.mu.Lock()
	if o.state.Active() {
		err := &AlreadyRunningError{RunID: o.runID, Progress: copyProgress(o.progress)}
		o.mu.Unlock()
		return "", err
	}
	runID := o.newRunID()
	o.state = StateRequested
	o.runID = runID
	o.startedAt = o.now()
	o.progress = nil
	update := Update{RunID: runID, State: StateRequested}
	o.mu.Unlock()

	o.logger.Info("refresh requested", "run_id", runID)
	o.broadcast(update)
	return runID, nil
}

func (o *Orchestrator) execute(parent context.Context, runID string) (cache.RefreshSummary, error) {
	o.mu.Lock()
	timeout := o.timeout
	limit := o.defaultLimit
	o.mu.Unlock()

	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()
	logger := o.logger.With("run_id", runID)
	timeoutErr := func(err error) error { return contextError(ctx, timeout, err) }

	if err := o.host.Ensure(ctx); err != nil {
		return cache.RefreshSummary{}, timeoutErr(fmt.Errorf("starting collector: %w", err))
	}

	base, err := o.records.LoadCache(ctx)
	if err != nil {
		return cache.RefreshSummary{}, err
	}
	settings, err := o.records.LoadSettings(ctx)
	if err != nil {
		logger.Warn("using default settings", "error", err)
		settings = store.DefaultSettings()
	}
	if settings.FetchLimit != nil {
		limit = settings.FetchLimit
	}

	working := base.Clone()
	o.mu.Lock()
	o.state = StateInProgress
	o.working = &working
	o.mu.Unlock()
	o.broadcast(Update{RunID: runID, State: StateInProgress})

	sub := o.bus.Subscribe(bus.KindProgress, bus.KindResult)
	defer sub.Close()

	req := bus.CollectRequest{
		RunID:        runID,
		ExistingUIDs: base.UIDs(),
		FetchLimit:   limit,
	}
	if deadline, ok := ctx.Deadline(); ok {
		req.Deadline = &deadline
	}
	if err := o.bus.Publish(ctx, req); err != nil {
		return cache.RefreshSummary{}, timeoutErr(fmt.Errorf("sending collect request: %w", err))
	}
	logger.Info("collect request sent", "known_activities", len(req.ExistingUIDs))

	for {
		select {
		case <-ctx.Done():
			return cache.RefreshSummary{}, timeoutErr(ctx.Err())
		case m := <-sub.C():
			switch msg := m.(type) {
			case bus.Progress:
				if msg.RunID != runID {
					continue
				}
				o.applyProgress(ctx, logger, msg)
			case bus.Result:
				if msg.RunID != runID {
					continue
				}
				if !msg.Success {
					return cache.RefreshSummary{}, &CollectionError{Message: msg.Error}
				}
				summary, err := o.complete(ctx, base, msg.Data)
				if err != nil {
					return summary, timeoutErr(err)
				}
				return summary, nil
			}
		}
	}
}

// contextError maps an expired deadline to ErrRefreshTimeout.
func contextError(ctx context.Context, timeout time.Duration, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrRefreshTimeout, timeout)
	}
	return err
}

func (o *Orchestrator) applyProgress(ctx context.Context, logger *slog.Logger, msg bus.Progress) {
	o.mu.Lock()
	next := cache.NormalizeProgress(o.progress, msg.Update())
	o.progress = &next
	var snapshot *cache.ExtensionCache
	if msg.Delta != nil && o.working != nil {
		merged, _ := cache.Merge(*o.working, *msg.Delta, o.now())
		o.working = &merged
		snap := merged.Clone()
		snapshot = &snap
	}
	update := Update{RunID: msg.RunID, State: o.state, Progress: copyProgress(&next)}
	o.mu.Unlock()

	logger.Debug("refresh progress",
		"stage", next.Stage,
		"completed", next.Completed,
		"total", next.Total,
		"activity", next.ActivityUID,
	)
	o.broadcast(update)

	if snapshot != nil {
		if err := o.records.SaveCache(ctx, *snapshot); err != nil {
			logger.Warn("persisting partial cache failed", "error", err)
		}
	}
}

func (o *Orchestrator) complete(ctx context.Context, base cache.ExtensionCache, data *cache.Delta) (cache.RefreshSummary, error) {
	var payload cache.Delta
	if data != nil {
		payload = *data
	}
	final, added := cache.Merge(base, payload, o.now())
	if err := o.records.SaveCache(ctx, final); err != nil {
		return cache.RefreshSummary{}, err
	}
	return final.Summary(added), nil
}

// finish records the outcome of a run and returns the orchestrator to idle.
// The guard is released only after the failed run's partial data is persisted.
func (o *Orchestrator) finish(runID string, summary cache.RefreshSummary, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	logger := o.logger.With("run_id", runID)

	o.mu.Lock()
	working := o.working
	progress := copyProgress(o.progress)
	startedAt := o.startedAt
	o.mu.Unlock()

	ended := o.now()
	elapsed := ended.Sub(startedAt)
	record := store.RunRecord{
		ID:        runID,
		StartedAt: startedAt,
		EndedAt:   ended,
		Warnings:  len(o.runWarnings(runID)),
	}
	final := Update{RunID: runID}

	if runErr == nil {
		logger.Info("refresh completed",
			"new_activities", summary.NewActivities,
			"activities", summary.ActivityCount,
			"duration", elapsed,
		)
		record.State = string(StateCompleted)
		record.NewActivities = summary.NewActivities
		record.ActivityCount = summary.ActivityCount
		final.State = StateCompleted
		final.Summary = &summary
		o.metrics.observe("success", elapsed.Seconds(), &summaryCounts{
			newActivities: summary.NewActivities,
			activityCount: summary.ActivityCount,
		})
	} else {
		logger.Error("refresh failed", "error", runErr, "duration", elapsed)
		if working != nil {
			if err := o.records.SaveCache(ctx, *working); err != nil {
				logger.Warn("persisting partial cache failed", "error", err)
			}
		}
		details := map[string]any{"runId": runID, "stage": "", "progress": progress}
		if progress != nil {
			details["stage"] = string(progress.Stage)
		}
		o.recorder.Record(ctx, runErr.Error(), diagnosticsOperation, details)

		record.State = string(StateFailed)
		record.Error = runErr.Error()
		final.State = StateFailed
		final.Error = runErr.Error()
		final.Progress = progress
		result := "failure"
		if errors.Is(runErr, ErrRefreshTimeout) {
			result = "timeout"
		}
		o.metrics.observe(result, elapsed.Seconds(), nil)
	}

	if err := o.records.AppendHistory(ctx, record); err != nil {
		logger.Warn("saving run history failed", "error", err)
	}

	o.mu.Lock()
	o.state = StateIdle
	o.working = nil
	o.progress = nil
	o.runID = ""
	o.lastRunID = runID
	if runErr == nil {
		o.lastSummary = &summary
		o.lastError = ""
	} else {
		o.lastError = runErr.Error()
	}
	o.mu.Unlock()

	o.broadcast(final)
	o.broadcast(Update{RunID: runID, State: StateIdle})
}

func (o *Orchestrator) runWarnings(runID string) []logging.LogEntry {
	if o.warnings == nil {
		return nil
	}
	return o.warnings.Warnings(runID)
}

func (o *Orchestrator) broadcast(u Update) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, ch := range o.watchers {
		select {
		case ch <- u:
		default:
			o.logger.Debug("dropping update for slow watcher", "watcher", id, "state", u.State)
		}
	}
}

func copyProgress(p *cache.RefreshProgress) *cache.RefreshProgress {
	if p == nil {
		return nil
	}
	c := *p
	if p.Remaining != nil {
		r := *p.Remaining
		c.Remaining = &r
	}
	return &c
}
