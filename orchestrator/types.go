package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
)

// State is the lifecycle state of the orchestrator.
type State string

const (
	StateIdle       State = "idle"
	StateRequested  State = "requested"
	StateInProgress State = "in-progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Active reports whether a run owns the orchestrator in this state.
func (s State) Active() bool {
	return s == StateRequested || s == StateInProgress
}

var (
	// ErrRefreshInProgress is matched by the error returned when a refresh is
	// requested while another is running.
	ErrRefreshInProgress = errors.New("refresh already in progress")

	// ErrRefreshTimeout is returned when the collector does not answer in time.
	ErrRefreshTimeout = errors.New("refresh timed out")

	// ErrUnsupportedMessage is returned by HandleMessage for messages it does not answer.
	ErrUnsupportedMessage = errors.New("unsupported message")
)

// AlreadyRunningError carries the progress of the run that is already in flight.
type AlreadyRunningError struct {
	RunID    string
	Progress *cache.RefreshProgress
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("%s (run %s)", ErrRefreshInProgress, e.RunID)
}

// Is makes errors.Is(err, ErrRefreshInProgress) hold.
func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrRefreshInProgress
}

// CollectionError is the failure reported by the collector for a run.
type CollectionError struct {
	Message string
}

func (e *CollectionError) Error() string {
	return "collection failed: " + e.Message
}

// Update is sent to watchers on every state change and progress message.
type Update struct {
	RunID    string                 `json:"runId"`
	State    State                  `json:"state"`
	Progress *cache.RefreshProgress `json:"progress"`
	Summary  *cache.RefreshSummary  `json:"summary,omitempty"`
	Error    string                 `json:"error,omitempty"`
}
