package cache

import "time"

// Stage names a step of a refresh as reported by the collector.
type Stage string

const (
	StageStarting            Stage = "starting"
	StageFetchingActivities  Stage = "fetching-activities"
	StageActivitiesCollected Stage = "activities-collected"
	StageNoNewActivities     Stage = "no-new-activities"
	StageLoadingDetails      Stage = "loading-details"
	StageLoadingRoster       Stage = "loading-roster"
	StageProcessing          Stage = "processing"
	StageFinalizing          Stage = "finalizing"
	StageError               Stage = "error"
)

// RefreshProgress is the orchestrator's view of a running refresh.
// Completed is always within [0, Total]; Remaining is nil until Total is known.
type RefreshProgress struct {
	Total         int       `json:"total"`
	Completed     int       `json:"completed"`
	Remaining     *int      `json:"remaining"`
	Stage         Stage     `json:"stage"`
	ActivityUID   string    `json:"activityUid,omitempty"`
	ActivityTitle string    `json:"activityTitle,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ProgressUpdate is the raw progress information carried by a progress message.
// Nil counts mean "unchanged".
type ProgressUpdate struct {
	Stage         Stage
	Total         *int
	Completed     *int
	ActivityUID   string
	ActivityTitle string
	Timestamp     time.Time
}

// NormalizeProgress folds an update into the previous snapshot (which may be nil).
// Counts are sanitized to non-negative values and completed is clamped to total.
func NormalizeProgress(prev *RefreshProgress, u ProgressUpdate) RefreshProgress {
	var next RefreshProgress
	if prev != nil {
		next.Total = prev.Total
		next.Completed = prev.Completed
		next.Stage = prev.Stage
	}
	if u.Total != nil {
		next.Total = nonNegative(*u.Total)
	}
	if u.Completed != nil {
		next.Completed = nonNegative(*u.Completed)
	}
	if u.Stage != "" {
		next.Stage = u.Stage
	}
	next.ActivityUID = u.ActivityUID
	next.ActivityTitle = u.ActivityTitle

	next.Timestamp = u.Timestamp
	if next.Timestamp.IsZero() {
		next.Timestamp = time.Now()
	}

	if next.Completed > next.Total {
		next.Completed = next.Total
	}
	if next.Total > 0 {
		remaining := next.Total - next.Completed
		next.Remaining = &remaining
	}
	return next
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
