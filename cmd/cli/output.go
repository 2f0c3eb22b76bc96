package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/orchestrator"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	faint  = color.New(color.Faint)
	bold   = color.New(color.Bold)
)

func okMark() string   { return green.Sprint("✓") }
func failMark() string { return red.Sprint("✗") }

func printProgress(w io.Writer, u orchestrator.Update) {
	if u.Progress == nil {
		return
	}
	p := u.Progress
	switch p.Stage {
	case cache.StageProcessing:
		fmt.Fprintf(w, "  [%d/%d] %s\n", p.Completed, p.Total, activityLabel(p.ActivityTitle, p.ActivityUID))
	case cache.StageLoadingDetails, cache.StageLoadingRoster:
		// Reported once the activity is processed.
	default:
		fmt.Fprintf(w, "%s %s\n", faint.Sprint("•"), p.Stage)
	}
}

func activityLabel(title, uid string) string {
	if title != "" {
		return title
	}
	return uid
}

func printSummary(w io.Writer, s cache.RefreshSummary, warnings []logging.LogEntry) {
	fmt.Fprintf(w, "%s Refresh complete: %s new, %d cached\n",
		okMark(), bold.Sprint(s.NewActivities), s.ActivityCount)
	if s.LastUpdated != nil {
		fmt.Fprintf(w, "  Last updated: %s\n", s.LastUpdated.Local().Format(time.DateTime))
	}
	if len(warnings) > 0 {
		fmt.Fprintf(w, "%s\n", yellow.Sprintf("%d warning(s):", len(warnings)))
		for _, e := range warnings {
			fmt.Fprintf(w, "  - %s%s\n", e.Message, formatAttrs(e.Attributes))
		}
	}
}

func formatAttrs(attrs map[string]any) string {
	if v, ok := attrs["activity"]; ok {
		return fmt.Sprintf(" (activity %v)", v)
	}
	return ""
}

func stateColor(state string) *color.Color {
	switch orchestrator.State(state) {
	case orchestrator.StateCompleted:
		return green
	case orchestrator.StateFailed:
		return red
	default:
		return yellow
	}
}
