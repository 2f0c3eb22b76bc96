package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

type script func(req bus.CollectRequest, send func(bus.Message))

// fakeCollector answers collect requests on the bus by running a script.
type fakeCollector struct {
	bus    *bus.Bus
	script script

	once     sync.Once
	mu       sync.Mutex
	requests []bus.CollectRequest
	ensured  atomic.Int32
}

func (f *fakeCollector) Ensure(ctx context.Context) error {
	f.ensured.Add(1)
	f.once.Do(func() {
		sub := f.bus.Subscribe(bus.KindCollect)
		go func() {
			defer sub.Close()
			for {
				select {
				case <-sub.Done():
					return
				case m := <-sub.C():
					req := m.(bus.CollectRequest)
					f.mu.Lock()
					f.requests = append(f.requests, req)
					f.mu.Unlock()
					go f.script(req, func(msg bus.Message) {
						_ = f.bus.Publish(context.Background(), msg)
					})
				}
			}
		}()
	})
	return nil
}

func (f *fakeCollector) lastRequest() bus.CollectRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type recordedFailure struct {
	message   string
	operation string
	details   map[string]any
}

type fakeRecorder struct {
	mu       sync.Mutex
	failures []recordedFailure
}

func (r *fakeRecorder) Record(_ context.Context, message, operation string, details map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, recordedFailure{message: message, operation: operation, details: details})
}

func (r *fakeRecorder) all() []recordedFailure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedFailure(nil), r.failures...)
}

type harness struct {
	o         *Orchestrator
	collector *fakeCollector
	records   *store.Records
	recorder  *fakeRecorder
}

var fixedNow = time.Date(2024, 4, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, s script, opts ...Option) *harness {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	b := bus.New(logger)
	fc := &fakeCollector{bus: b, script: s}
	records := store.NewRecords(store.NewMemoryStore())
	recorder := &fakeRecorder{}

	var n atomic.Int32
	opts = append([]Option{
		WithLogger(logger),
		WithRecorder(recorder),
		WithClock(func() time.Time { return fixedNow }),
		WithRunIDs(func() string { return fmt.Sprintf("run-%d", n.Add(1)) }),
	}, opts...)

	return &harness{
		o:         New(b, fc, records, opts...),
		collector: fc,
		records:   records,
		recorder:  recorder,
	}
}

func intPtr(n int) *int { return &n }

func activity(uid, start string) cache.ActivityRecord {
	return cache.ActivityRecord{UID: uid, Href: "https://example.org/activities/" + uid, Title: uid, StartDate: start, Result: "Successful"}
}

func processing(runID string, completed, total int, a cache.ActivityRecord) bus.Progress {
	return bus.Progress{
		RunID:       runID,
		Origin:      "collector",
		Stage:       cache.StageProcessing,
		Total:       intPtr(total),
		Completed:   intPtr(completed),
		ActivityUID: a.UID,
		Delta: &cache.Delta{
			Activities:    []cache.ActivityRecord{a},
			People:        []cache.PersonRecord{{UID: "p-" + a.UID, Name: "Person " + a.UID}},
			RosterEntries: []cache.RosterEntryRecord{{ActivityUID: a.UID, PersonUID: "p-" + a.UID, Role: cache.RoleParticipant}},
		},
	}
}

func TestRefresh_Success(t *testing.T) {
	a1 := activity("a1", "2024-03-01")
	h := newHarness(t, func(req bus.CollectRequest, send func(bus.Message)) {
		send(bus.Progress{RunID: req.RunID, Stage: cache.StageActivitiesCollected, Total: intPtr(1), Completed: intPtr(0)})
		send(processing(req.RunID, 1, 1, a1))
		send(bus.Result{RunID: req.RunID, Success: true, Data: &cache.Delta{
			Activities:     []cache.ActivityRecord{a1},
			People:         []cache.PersonRecord{{UID: "p-a1", Name: "Person a1"}},
			RosterEntries:  []cache.RosterEntryRecord{{ActivityUID: "a1", PersonUID: "p-a1", Role: cache.RoleParticipant}},
			CurrentUserUID: "me",
		}})
	})
	ctx := context.Background()
	require.NoError(t, h.records.SaveCache(ctx, cache.ExtensionCache{Activities: []cache.ActivityRecord{activity("a0", "2023-01-01")}}))

	updates, stop := h.o.Watch()
	defer stop()

	summary, err := h.o.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NewActivities)
	assert.Equal(t, 2, summary.ActivityCount)
	require.NotNil(t, summary.LastUpdated)
	assert.True(t, fixedNow.Equal(*summary.LastUpdated))

	saved, err := h.records.LoadCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a0"}, saved.UIDs())
	assert.Equal(t, "me", saved.CurrentUserUID)
	assert.Len(t, saved.People, 1)

	assert.Equal(t, StateIdle, h.o.State())
	status := h.o.Status()
	assert.True(t, status.Success)
	assert.False(t, status.InProgress)
	assert.Nil(t, status.Progress)

	last, ok := h.o.LastSummary()
	require.True(t, ok)
	assert.Equal(t, summary, last)
	assert.Empty(t, h.o.LastError())
	assert.Empty(t, h.recorder.all())

	req := h.collector.lastRequest()
	assert.Equal(t, "run-1", req.RunID)
	assert.Equal(t, []string{"a0"}, req.ExistingUIDs)
	assert.Nil(t, req.FetchLimit)
	require.NotNil(t, req.Deadline)
	assert.WithinDuration(t, time.Now().Add(DefaultTimeout), *req.Deadline, time.Minute)

	var states []State
	for len(updates) > 0 {
		u := <-updates
		if len(states) == 0 || states[len(states)-1] != u.State {
			states = append(states, u.State)
		}
	}
	assert.Equal(t, []State{StateRequested, StateInProgress, StateCompleted, StateIdle}, states)

	history, err := h.records.LoadHistory(ctx)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "completed", history[0].State)
	assert.Equal(t, 1, history[0].NewActivities)
}

func TestRefresh_ForwardsFetchLimit(t *testing.T) {
	h := newHarness(t, func(req bus.CollectRequest, send func(bus.Message)) {
		send(bus.Result{RunID: req.RunID, Success: true, Data: &cache.Delta{}})
	})
	ctx := context.Background()
	require.NoError(t, h.records.SaveSettings(ctx, store.Settings{FetchLimit: intPtr(3)}))

	summary, err := h.o.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.NewActivities)

	req := h.collector.lastRequest()
	require.NotNil(t, req.FetchLimit)
	assert.Equal(t, 3, *req.FetchLimit)
}

func TestRefresh_DefaultFetchLimit(t *testing.T) {
	h := newHarness(t, func(req bus.CollectRequest, send func(bus.Message)) {
		send(bus.Result{RunID: req.RunID, Success: true, Data: &cache.Delta{}})
	}, WithDefaultFetchLimit(intPtr(10)))
	ctx := context.Background()

	_, err := h.o.Refresh(ctx)
	require.NoError(t, err)
	require.NotNil(t, h.collector.lastRequest().FetchLimit)
	assert.Equal(t, 10, *h.collector.lastRequest().FetchLimit)

	h.o.Reconfigure(time.Minute, intPtr(5))
	_, err = h.o.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, *h.collector.lastRequest().FetchLimit)

	require.NoError(t, h.records.SaveSettings(ctx, store.Settings{FetchLimit: intPtr(2)}))
	_, err = h.o.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, *h.collector.lastRequest().FetchLimit, "saved settings win over the default")

	h.o.Reconfigure(0, nil)
	require.NoError(t, h.records.SaveSettings(ctx, store.DefaultSettings()))
	_, err = h.o.Refresh(ctx)
	require.NoError(t, err)
	assert.Nil(t, h.collector.lastRequest().FetchLimit)
}

func TestRefresh_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	h := newHarness(t, func(req bus.CollectRequest, send func(bus.Message)) {
		send(bus.Progress{RunID: req.RunID, Stage: cache.StageLoadingRoster, Total: intPtr(4), Completed: intPtr(1), ActivityUID: "a2"})
		<-release
		send(bus.Result{RunID: req.RunID, Success: true, Data: &cache.Delta{}})
	})

	runID, err := h.o.Start()
	require.NoError(t, err)
	assert.Equal(t, "run-1", runID)

	require.Eventually(t, func() bool {
		return h.o.Status().Progress != nil
	}, 2*time.Second, 5*time.Millisecond)

	_, err = h.o.Refresh(context.Background())
	require.ErrorIs(t, err, ErrRefreshInProgress)
	var running *AlreadyRunningError
	require.ErrorAs(t, err, &running)
	assert.Equal(t, "run-1", running.RunID)
	require.NotNil(t, running.Progress)
	assert.Equal(t, cache.StageLoadingRoster, running.Progress.Stage)
	assert.Equal(t, 3, *running.Progress.Remaining)

	_, err = h.o.Start()
	assert.ErrorIs(t, err, ErrRefreshInProgress)
	assert.NoError(t, h.o.Run(), "cron trigger treats a running refresh as success")

	close(release)
	require.Eventually(t, func() bool { return h.o.State() == StateIdle }, 2*time.Second, 5*time.Millisecond)

	_, err = h.o.Refresh(context.Background())
	assert.NoError(t, err)
}

func TestRefresh_Timeout(t *testing.T) {
	h := newHarness(t, func(req bus.CollectRequest, send func(bus.Message)) {
		send(bus.Progress{RunID: req.RunID, Stage: cache.StageFetchingActivities})
	}, WithTimeout(50*time.Millisecond))

	_, err := h.o.Refresh(context.Background())
	require.ErrorIs(t, err, ErrRefreshTimeout)
	assert.Equal(t, StateIdle, h.o.State())
	assert.Contains(t, h.o.LastError(), "timed out")

	failures := h.recorder.all()
	require.Len(t, failures, 1)
	assert.Equal(t, "refresh", failures[0].operation)
	assert.Equal(t, "run-1", failures[0].details["runId"])
	assert.Equal(t, "fetching-activities", failures[0].details["stage"])

	history, err := h.records.LoadHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "failed", history[0].State)
}

func TestRefresh_FailureKeepsPartialData(t *testing.T) {
	a1 := activity("a1", "2024-03-01")
	h := newHarness(t, func(req bus.CollectRequest, send func(bus.Message)) {
		send(processing(req.RunID, 1, 2, a1))
		send(bus.Progress{RunID: req.RunID, Stage: cache.StageError, Error: "activity feed: status 500"})
		send(bus.Result{RunID: req.RunID, Error: "activity feed: status 500"})
	})

	_, err := h.o.Refresh(context.Background())
	var collErr *CollectionError
	require.ErrorAs(t, err, &collErr)
	assert.Equal(t, "activity feed: status 500", collErr.Message)

	saved, err := h.records.LoadCache(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a1"}, saved.UIDs())
	assert.Len(t, saved.RosterEntries, 1)

	failures := h.recorder.all()
	require.Len(t, failures, 1)
	assert.Equal(t, "error", failures[0].details["stage"])
	assert.NotNil(t, failures[0].details["progress"])

	_, ok := h.o.LastSummary()
	assert.False(t, ok)
}

func TestRefresh_IgnoresOtherRuns(t *testing.T) {
	h := newHarness(t, func(req bus.CollectRequest, send func(bus.Message)) {
		send(bus.Result{RunID: "stale", Error: "from an old run"})
		send(processing("stale", 1, 1, activity("old", "2020-01-01")))
		send(bus.Result{RunID: req.RunID, Success: true, Data: &cache.Delta{Activities: []cache.ActivityRecord{activity("a1", "")}}})
	})

	summary, err := h.o.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ActivityCount)
}

func TestRefresh_CancelledByCaller(t *testing.T) {
	h := newHarness(t, func(req bus.CollectRequest, send func(bus.Message)) {})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := h.o.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrRefreshTimeout))
	assert.Equal(t, StateIdle, h.o.State())
}

func TestHandleMessage(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := h.o.HandleMessage(bus.StatusRequest{})
	require.NoError(t, err)
	status, ok := resp.(bus.StatusResponse)
	require.True(t, ok)
	assert.True(t, status.Success)
	assert.False(t, status.InProgress)

	_, err = h.o.HandleMessage(bus.CollectRequest{})
	assert.ErrorIs(t, err, ErrUnsupportedMessage)
}

func TestWatch_Unsubscribe(t *testing.T) {
	h := newHarness(t, nil)
	updates, stop := h.o.Watch()
	stop()
	stop()

	h.o.broadcast(Update{State: StateIdle})
	assert.Empty(t, updates)
}
