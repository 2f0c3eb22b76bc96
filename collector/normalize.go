package collector

import (
	"net/url"
	"slices"
	"strings"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/clients/siteclient"
)

const successfulResult = "successful"

// Normalize keeps only successful activities with a uid that are not in known
// and whose link resolves to an absolute URL against base. It returns them
// newest first. When limit is positive the result is truncated after sorting.
func Normalize(raw []RawActivity, base *url.URL, known []string, limit int) []cache.ActivityRecord {
	seen := make(map[string]struct{}, len(known))
	for _, uid := range known {
		seen[uid] = struct{}{}
	}

	out := make([]cache.ActivityRecord, 0, len(raw))
	for _, r := range raw {
		if r.UID == "" || !strings.EqualFold(strings.TrimSpace(r.Result), successfulResult) {
			continue
		}
		if r.Href == "" {
			continue
		}
		href, err := siteclient.ResolveURL(base, r.Href)
		if err != nil {
			continue
		}
		if _, ok := seen[r.UID]; ok {
			continue
		}
		seen[r.UID] = struct{}{}

		out = append(out, cache.ActivityRecord{
			UID:          r.UID,
			Href:         href,
			Title:        r.Title,
			Category:     r.Category,
			StartDate:    r.StartDate,
			Result:       r.Result,
			ActivityType: r.ActivityType,
		})
	}

	cache.SortActivities(out)
	if limit > 0 && len(out) > limit {
		out = slices.Clip(out[:limit])
	}
	return out
}
