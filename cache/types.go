// Package cache holds the activity cache data model and the rules for merging
// collector output into a previously persisted cache.
//
// The cache is the aggregate the dashboard reads: activities sorted most recent
// first, the people seen on their rosters, and the roster entries linking the two.
// Optional values are represented by the empty string and omitted when serialized.
package cache

import (
	"strings"
	"time"
)

// Role is a participant's role on an activity roster.
type Role string

const (
	RolePrimaryLeader   Role = "Primary Leader"
	RoleAssistantLeader Role = "Assistant Leader"
	RoleInstructor      Role = "Instructor"
	RoleParticipant     Role = "Participant"
)

var knownRoles = []Role{RolePrimaryLeader, RoleAssistantLeader, RoleInstructor, RoleParticipant}

// NormalizeRole matches role text against the known roles, ignoring case and
// surrounding whitespace. Unrecognized or empty text maps to RoleParticipant.
func NormalizeRole(text string) Role {
	text = strings.Join(strings.Fields(text), " ")
	for _, r := range knownRoles {
		if strings.EqualFold(text, string(r)) {
			return r
		}
	}
	return RoleParticipant
}

// ActivityRecord is one completed activity from the user's history.
// UID is the identity key.
type ActivityRecord struct {
	UID          string `json:"uid"`
	Href         string `json:"href"`
	Title        string `json:"title"`
	Category     string `json:"category,omitempty"`
	StartDate    string `json:"start_date,omitempty"`
	Result       string `json:"result,omitempty"`
	ActivityType string `json:"activity_type,omitempty"`
}

// StartTime parses StartDate. Missing or unparseable dates return the Unix epoch
// so they sort as the earliest activities.
func (a ActivityRecord) StartTime() time.Time {
	return ParseDate(a.StartDate)
}

// PersonRecord is a participant seen on at least one roster. UID is a stable slug.
type PersonRecord struct {
	UID    string `json:"uid"`
	Href   string `json:"href,omitempty"`
	Name   string `json:"name,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// RosterEntryRecord links a person to an activity with a role.
type RosterEntryRecord struct {
	ActivityUID string `json:"activity_uid"`
	PersonUID   string `json:"person_uid"`
	Role        Role   `json:"role"`
}

// Key returns the compound identity key of the entry.
func (e RosterEntryRecord) Key() string {
	return e.ActivityUID + "|" + e.PersonUID
}

// ExtensionCache is the persisted aggregate. Activities are kept sorted by start
// date descending; people and roster entries never repeat an identity key.
type ExtensionCache struct {
	Activities     []ActivityRecord    `json:"activities"`
	People         []PersonRecord      `json:"people"`
	RosterEntries  []RosterEntryRecord `json:"rosterEntries"`
	LastUpdated    *time.Time          `json:"lastUpdated"`
	CurrentUserUID string              `json:"currentUserUid,omitempty"`
}

// Empty returns a cache with no data and initialized slices.
func Empty() ExtensionCache {
	return ExtensionCache{
		Activities:    []ActivityRecord{},
		People:        []PersonRecord{},
		RosterEntries: []RosterEntryRecord{},
	}
}

// Clone returns a deep copy of c.
func (c ExtensionCache) Clone() ExtensionCache {
	out := ExtensionCache{
		Activities:     append([]ActivityRecord{}, c.Activities...),
		People:         append([]PersonRecord{}, c.People...),
		RosterEntries:  append([]RosterEntryRecord{}, c.RosterEntries...),
		CurrentUserUID: c.CurrentUserUID,
	}
	if c.LastUpdated != nil {
		t := *c.LastUpdated
		out.LastUpdated = &t
	}
	return out
}

// UIDs returns the activity uids already present in the cache.
func (c ExtensionCache) UIDs() []string {
	uids := make([]string, 0, len(c.Activities))
	for _, a := range c.Activities {
		uids = append(uids, a.UID)
	}
	return uids
}

// Summary derives the summary handed to the dashboard after a refresh.
func (c ExtensionCache) Summary(newActivities int) RefreshSummary {
	return RefreshSummary{
		ActivityCount: len(c.Activities),
		LastUpdated:   c.LastUpdated,
		NewActivities: newActivities,
	}
}

// Delta is a partial cache update. Progress deltas carry exactly one activity and
// leave CurrentUserUID empty; the final collector payload uses the same shape.
type Delta struct {
	Activities     []ActivityRecord    `json:"activities"`
	People         []PersonRecord      `json:"people"`
	RosterEntries  []RosterEntryRecord `json:"rosterEntries"`
	CurrentUserUID string              `json:"currentUserUid,omitempty"`
}

// RefreshSummary is the human-facing result of a completed refresh.
type RefreshSummary struct {
	ActivityCount int        `json:"activityCount"`
	LastUpdated   *time.Time `json:"lastUpdated"`
	NewActivities int        `json:"newActivities"`
}

// dateLayouts are tried in order by ParseDate.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDate parses an ISO timestamp, returning the Unix epoch when s is empty or
// not a recognized format.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Unix(0, 0).UTC()
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Unix(0, 0).UTC()
}
