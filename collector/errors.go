package collector

import "fmt"

// DiscoveryError reports that the activities page of the signed-in user could not
// be located. It aborts the collection run.
type DiscoveryError struct {
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("discovery failed: %s: %v", e.Reason, e.Err)
	}
	return "discovery failed: " + e.Reason
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// FeedError reports that the activity history feed could not be retrieved or
// parsed. It aborts the collection run.
type FeedError struct {
	Reason string
	Err    error
}

func (e *FeedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("activity feed: %s: %v", e.Reason, e.Err)
	}
	return "activity feed: " + e.Reason
}

func (e *FeedError) Unwrap() error { return e.Err }
