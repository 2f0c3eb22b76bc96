package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/clients/siteclient"
)

const (
	activityTypeLabel     = "activity type"
	rosterPathSuffix      = "/roster-tab"
	placeholderAvatarFile = "defaultUser.png"
)

// Enrichment is the outcome of enriching one activity. Detail and roster are
// fetched independently; either may fail without affecting the other.
type Enrichment struct {
	Activity  cache.ActivityRecord
	People    []cache.PersonRecord
	Roster    []cache.RosterEntryRecord
	DetailErr error
	RosterErr error
}

// Roster is the parsed roster of one activity.
type Roster struct {
	People  []cache.PersonRecord
	Entries []cache.RosterEntryRecord
}

// Enrich fetches the activity's detail page and roster concurrently and waits for
// both. The activity keeps its existing classification when the detail page yields
// none.
func (c *Collector) Enrich(ctx context.Context, activity cache.ActivityRecord) Enrichment {
	out := Enrichment{Activity: activity}

	var (
		activityType string
		roster       Roster
	)
	// The group has no shared context, so one failed fetch never cancels the
	// other and Wait returns only after both finished.
	var g errgroup.Group
	g.Go(func() error {
		activityType, out.DetailErr = c.fetchActivityType(ctx, activity.Href)
		return out.DetailErr
	})
	g.Go(func() error {
		roster, out.RosterErr = c.fetchRoster(ctx, activity)
		return out.RosterErr
	})
	if err := g.Wait(); err != nil {
		c.logger.Debug("activity partially enriched", "activity", activity.UID, "error", err)
	}

	if out.DetailErr != nil {
		c.logger.Warn("activity detail unavailable",
			"activity", activity.UID,
			"error", out.DetailErr,
		)
		c.countFailure("detail")
	} else if activityType != "" {
		out.Activity.ActivityType = activityType
	}

	if out.RosterErr != nil {
		c.logger.Warn("activity roster unavailable",
			"activity", activity.UID,
			"error", out.RosterErr,
		)
		c.countFailure("roster")
	} else {
		out.People = roster.People
		out.Roster = roster.Entries
	}
	return out
}

func (c *Collector) fetchActivityType(ctx context.Context, href string) (string, error) {
	if href == "" {
		return "", fmt.Errorf("activity has no link")
	}
	resp, err := c.site.Get(ctx, href, nil)
	if err != nil {
		return "", err
	}
	if !resp.OK() {
		return "", fmt.Errorf("detail page returned status %d", resp.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return "", fmt.Errorf("parsing detail page: %w", err)
	}
	return ParseActivityType(doc), nil
}

// ParseActivityType reads the value of the "Activity Type" entry of the details
// list, or returns "" when there is none.
func ParseActivityType(doc *goquery.Document) string {
	var value string
	doc.Find(".details li").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		label := li.Find("label").First()
		if label.Length() == 0 {
			return true
		}
		key := strings.TrimSpace(strings.TrimSuffix(strings.ToLower(visibleText(label)), ":"))
		if key != activityTypeLabel {
			return true
		}
		item := li.Clone()
		item.Find("label").First().Remove()
		value = visibleText(item)
		return false
	})
	return value
}

// rosterError is the JSON body the site returns instead of a roster it will not show.
type rosterError struct {
	ErrorType string `json:"error_type"`
	Message   string `json:"message"`
}

func (c *Collector) fetchRoster(ctx context.Context, activity cache.ActivityRecord) (Roster, error) {
	if activity.Href == "" {
		return Roster{}, fmt.Errorf("activity has no link")
	}
	rosterURL := strings.TrimRight(activity.Href, "/") + rosterPathSuffix
	resp, err := c.site.Get(ctx, rosterURL, nil)
	if err != nil {
		return Roster{}, err
	}
	if !resp.OK() {
		return Roster{}, fmt.Errorf("roster returned status %d", resp.StatusCode)
	}

	if resp.IsJSON() {
		var body rosterError
		if err := json.Unmarshal(resp.Body, &body); err == nil && body.ErrorType != "" {
			return Roster{}, fmt.Errorf("roster unavailable: %s", body.ErrorType)
		}
		return Roster{}, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return Roster{}, fmt.Errorf("parsing roster: %w", err)
	}
	pageURL, err := url.Parse(resp.URL)
	if err != nil {
		return Roster{}, fmt.Errorf("parsing roster URL: %w", err)
	}
	roster := ParseRoster(doc, pageURL, activity.UID)
	c.logger.Debug("parsed roster", "activity", activity.UID, "people", len(roster.People))
	return roster, nil
}

// ParseRoster extracts one person and one roster entry per contact block. Blocks
// without a name are skipped; a person listed twice keeps the last role shown.
func ParseRoster(doc *goquery.Document, pageURL *url.URL, activityUID string) Roster {
	var roster Roster
	index := make(map[string]int)

	doc.Find(".roster-contact").Each(func(_ int, contact *goquery.Selection) {
		name := visibleText(contact.Find(".roster-name").First())
		if name == "" {
			return
		}

		var href string
		if raw, ok := contact.Find(`a[href*="/members/"]`).First().Attr("href"); ok {
			if abs, err := siteclient.ResolveURL(pageURL, raw); err == nil {
				href = abs
			}
		}
		avatarSrc := strings.TrimSpace(contact.Find("img").First().AttrOr("src", ""))

		uid := MemberSlug(href)
		if uid == "" {
			uid = avatarSlug(avatarSrc)
		}
		if uid == "" {
			uid = Slugify(name)
		}
		if uid == "" {
			return
		}

		person := cache.PersonRecord{
			UID:    uid,
			Href:   href,
			Name:   name,
			Avatar: normalizeAvatar(pageURL, avatarSrc),
		}
		entry := cache.RosterEntryRecord{
			ActivityUID: activityUID,
			PersonUID:   uid,
			Role:        cache.NormalizeRole(visibleText(contact.Find(".roster-position").First())),
		}

		if i, ok := index[uid]; ok {
			roster.People[i] = cache.FillForward(roster.People[i], person)
			roster.Entries[i] = entry
			return
		}
		index[uid] = len(roster.People)
		roster.People = append(roster.People, person)
		roster.Entries = append(roster.Entries, entry)
	})
	return roster
}

// avatarSlug derives a uid from an avatar image: a /members/<slug> path when the
// image is served from the member's page, otherwise the file name stem.
func avatarSlug(src string) string {
	if src == "" || strings.Contains(src, placeholderAvatarFile) {
		return ""
	}
	if slug := MemberSlug(src); slug != "" {
		return slug
	}
	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}
	return Slugify(strings.TrimSuffix(base, path.Ext(base)))
}

func normalizeAvatar(pageURL *url.URL, src string) string {
	if src == "" || strings.Contains(src, placeholderAvatarFile) {
		return ""
	}
	abs, err := siteclient.ResolveURL(pageURL, src)
	if err != nil {
		return ""
	}
	return abs
}

// Slugify lowercases s and joins its letter and digit runs with hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
