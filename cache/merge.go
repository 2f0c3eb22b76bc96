package cache

import (
	"slices"
	"strings"
	"time"
)

// Merge folds incoming into existing and returns the updated cache together with
// the number of activities whose uid was not previously known.
//
// Neither argument is modified. Activities are overwritten by incoming values,
// except that a known activity type is never replaced by an empty one. People are
// filled forward: a field that is already set is never overwritten. Roster entries
// are replaced wholesale by the last entry with the same key.
func Merge(existing ExtensionCache, incoming Delta, now time.Time) (ExtensionCache, int) {
	out := existing.Clone()

	activities, added := mergeActivities(out.Activities, incoming.Activities)
	out.Activities = activities
	out.People = mergePeople(out.People, incoming.People)
	out.RosterEntries = mergeRoster(out.RosterEntries, incoming.RosterEntries)

	stamp := now
	out.LastUpdated = &stamp
	if incoming.CurrentUserUID != "" {
		out.CurrentUserUID = incoming.CurrentUserUID
	}
	return out, added
}

func mergeActivities(existing, incoming []ActivityRecord) ([]ActivityRecord, int) {
	index := make(map[string]int, len(existing))
	out := make([]ActivityRecord, 0, len(existing)+len(incoming))
	for _, a := range existing {
		if i, ok := index[a.UID]; ok {
			out[i] = a
			continue
		}
		index[a.UID] = len(out)
		out = append(out, a)
	}

	added := 0
	for _, a := range incoming {
		i, ok := index[a.UID]
		if !ok {
			index[a.UID] = len(out)
			out = append(out, a)
			added++
			continue
		}
		merged := a
		if merged.ActivityType == "" && out[i].ActivityType != "" {
			merged.ActivityType = out[i].ActivityType
		}
		out[i] = merged
	}

	SortActivities(out)
	return out, added
}

// SortActivities orders activities by start date, most recent first. Activities
// without a usable date sort last. The sort is stable.
func SortActivities(activities []ActivityRecord) {
	slices.SortStableFunc(activities, func(a, b ActivityRecord) int {
		return b.StartTime().Compare(a.StartTime())
	})
}

func mergePeople(existing, incoming []PersonRecord) []PersonRecord {
	index := make(map[string]int, len(existing))
	out := make([]PersonRecord, 0, len(existing)+len(incoming))
	for _, p := range existing {
		if _, ok := index[p.UID]; ok {
			continue
		}
		index[p.UID] = len(out)
		out = append(out, p)
	}

	for _, p := range incoming {
		i, ok := index[p.UID]
		if !ok {
			index[p.UID] = len(out)
			out = append(out, p)
			continue
		}
		out[i] = FillForward(out[i], p)
	}

	slices.SortStableFunc(out, func(a, b PersonRecord) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// FillForward copies href, avatar and name from incoming into existing where the
// existing value is empty. Values already set are kept.
func FillForward(existing, incoming PersonRecord) PersonRecord {
	if existing.Href == "" && incoming.Href != "" {
		existing.Href = incoming.Href
	}
	if existing.Avatar == "" && incoming.Avatar != "" {
		existing.Avatar = incoming.Avatar
	}
	if existing.Name == "" && incoming.Name != "" {
		existing.Name = incoming.Name
	}
	return existing
}

func mergeRoster(existing, incoming []RosterEntryRecord) []RosterEntryRecord {
	index := make(map[string]int, len(existing)+len(incoming))
	out := make([]RosterEntryRecord, 0, len(existing)+len(incoming))
	put := func(e RosterEntryRecord) {
		if i, ok := index[e.Key()]; ok {
			out[i] = e
			return
		}
		index[e.Key()] = len(out)
		out = append(out, e)
	}
	for _, e := range existing {
		put(e)
	}
	for _, e := range incoming {
		put(e)
	}
	return out
}
