// Package orchestrator coordinates refresh runs of the activity cache.
//
// A refresh asks the collection context, over the message bus, to harvest
// activities that are not yet cached. While the run is in flight each progress
// message is folded into the current progress snapshot and any delta it carries
// is merged into a working copy of the cache, which is persisted immediately.
// When the collector reports success the pre-run cache is merged with the final
// payload and persisted; that merge is the authoritative result of the run.
//
// Only one refresh runs at a time:
//
//	o := orchestrator.New(b, host, records, orchestrator.WithLogger(logger))
//
//	summary, err := o.Refresh(ctx)
//	var running *orchestrator.AlreadyRunningError
//	if errors.As(err, &running) {
//		// running.Progress is the progress of the run already in flight
//	}
//
// A run moves through the states Idle, Requested, InProgress and then Completed
// or Failed before returning to Idle. Listeners registered with Watch receive
// every transition and progress update.
package orchestrator
