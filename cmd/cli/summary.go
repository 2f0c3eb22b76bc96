package main

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
)

const recentActivities = 5

func summaryCmd(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show what the cache holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			c, err := a.records.LoadCache(cmd.Context())
			if err != nil {
				return err
			}
			printCache(cmd.OutOrStdout(), c)
			return nil
		},
	}
}

func printCache(w io.Writer, c cache.ExtensionCache) {
	if len(c.Activities) == 0 {
		fmt.Fprintln(w, "No activities cached yet. Run 'refresh' first.")
		return
	}

	fmt.Fprintf(w, "%s\n", bold.Sprint("Cache"))
	fmt.Fprintf(w, "  Activities:     %d\n", len(c.Activities))
	fmt.Fprintf(w, "  People:         %d\n", len(c.People))
	fmt.Fprintf(w, "  Roster entries: %d\n", len(c.RosterEntries))
	if c.CurrentUserUID != "" {
		fmt.Fprintf(w, "  Member:         %s\n", c.CurrentUserUID)
	}
	if c.LastUpdated != nil {
		fmt.Fprintf(w, "  Last updated:   %s\n", c.LastUpdated.Local().Format(time.DateTime))
	}

	fmt.Fprintf(w, "\n%s\n", bold.Sprint("By type"))
	for _, tc := range countTypes(c.Activities) {
		fmt.Fprintf(w, "  %-20s %d\n", tc.name, tc.count)
	}

	if roles := countRoles(c); len(roles) > 0 {
		fmt.Fprintf(w, "\n%s\n", bold.Sprint("Your roles"))
		for _, rc := range roles {
			fmt.Fprintf(w, "  %-20s %d\n", rc.name, rc.count)
		}
	}

	fmt.Fprintf(w, "\n%s\n", bold.Sprint("Recent"))
	for _, act := range c.Activities[:min(recentActivities, len(c.Activities))] {
		fmt.Fprintf(w, "  %s  %s\n", faint.Sprint(dateOnly(act.StartDate)), activityLabel(act.Title, act.UID))
	}
}

type namedCount struct {
	name  string
	count int
}

// sortCounts orders by count descending, then name.
func sortCounts(m map[string]int) []namedCount {
	out := make([]namedCount, 0, len(m))
	for name, n := range m {
		out = append(out, namedCount{name: name, count: n})
	}
	slices.SortFunc(out, func(a, b namedCount) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return cmp.Compare(a.name, b.name)
	})
	return out
}

func countTypes(activities []cache.ActivityRecord) []namedCount {
	m := make(map[string]int)
	for _, a := range activities {
		name := a.ActivityType
		if name == "" {
			name = "Unknown"
		}
		m[name]++
	}
	return sortCounts(m)
}

func countRoles(c cache.ExtensionCache) []namedCount {
	if c.CurrentUserUID == "" {
		return nil
	}
	m := make(map[string]int)
	for _, e := range c.RosterEntries {
		if e.PersonUID == c.CurrentUserUID {
			m[string(e.Role)]++
		}
	}
	return sortCounts(m)
}

func dateOnly(s string) string {
	t := cache.ParseDate(s)
	if t.Unix() == 0 {
		return "----------"
	}
	return t.Format(time.DateOnly)
}
