package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	activitiesPathSuffix = "/member-activities"
	feedPathSuffix       = "/member-activities/member-activity-history.json"
)

var (
	activitiesPathPattern = regexp.MustCompile(`/member-activities/?$`)
	csrfScriptPattern     = regexp.MustCompile(`(?i)csrf[_-]?token["']?\s*[:=]\s*["']([^"']+)["']`)
	feedArrayKeys         = []string{"items", "results", "data"}
)

// RawActivity is one record of the history feed, with every field read as text.
type RawActivity struct {
	UID          string
	Href         string
	Title        string
	Category     string
	StartDate    string
	Result       string
	ActivityType string
}

// FeedURL derives the JSON history feed URL from the activities page URL.
func FeedURL(activitiesURL string) (string, error) {
	u, err := url.Parse(activitiesURL)
	if err != nil {
		return "", &FeedError{Reason: "parsing activities URL", Err: err}
	}
	if !activitiesPathPattern.MatchString(u.Path) {
		return "", &FeedError{Reason: fmt.Sprintf("activities URL %q does not end in %s", activitiesURL, activitiesPathSuffix)}
	}
	u.Path = activitiesPathPattern.ReplaceAllString(u.Path, feedPathSuffix)
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// FetchHistory retrieves the raw activity history for the activities page.
func (c *Collector) FetchHistory(ctx context.Context, activitiesURL string) ([]RawActivity, error) {
	feedURL, err := FeedURL(activitiesURL)
	if err != nil {
		return nil, err
	}

	page, err := c.site.Get(ctx, activitiesURL, nil)
	if err != nil {
		return nil, &FeedError{Reason: "fetching activities page", Err: err}
	}
	if !page.OK() {
		return nil, &FeedError{Reason: fmt.Sprintf("activities page returned status %d", page.StatusCode)}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &FeedError{Reason: "parsing activities page", Err: err}
	}

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("X-Requested-With", "XMLHttpRequest")
	header.Set("Referer", activitiesURL)
	if token := ExtractCSRFToken(doc); token != "" {
		header.Set("X-CSRF-Token", token)
	} else {
		c.logger.Warn("no CSRF token on activities page, requesting feed without it")
	}

	resp, err := c.site.Get(ctx, feedURL, header)
	if err != nil {
		return nil, &FeedError{Reason: "fetching history feed", Err: err}
	}
	if !resp.OK() {
		return nil, &FeedError{Reason: fmt.Sprintf("history feed returned status %d", resp.StatusCode)}
	}

	records, err := ParseFeed(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("fetched activity history", "records", len(records))
	return records, nil
}

// ExtractCSRFToken looks for the CSRF token in a meta tag, then a data attribute,
// then an inline script assignment. Tokens taken from scripts are entity-decoded.
func ExtractCSRFToken(doc *goquery.Document) string {
	if token := strings.TrimSpace(doc.Find(`meta[name="csrf-token"]`).AttrOr("content", "")); token != "" {
		return token
	}
	if token := strings.TrimSpace(doc.Find("[data-csrf-token]").AttrOr("data-csrf-token", "")); token != "" {
		return token
	}
	var token string
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := csrfScriptPattern.FindStringSubmatch(s.Text()); m != nil {
			token = html.UnescapeString(m[1])
			return false
		}
		return true
	})
	return strings.TrimSpace(token)
}

// ParseFeed accepts a bare JSON array, or an object holding the array under
// items, results or data. Array elements that are not objects are skipped.
func ParseFeed(body []byte) ([]RawActivity, error) {
	elems, ok := feedArray(body)
	if !ok {
		return nil, &FeedError{Reason: "unrecognized response shape"}
	}

	records := make([]RawActivity, 0, len(elems))
	for _, elem := range elems {
		var fields map[string]any
		if err := json.Unmarshal(elem, &fields); err != nil || fields == nil {
			continue
		}
		start := textField(fields, "start_date")
		if start == "" {
			start = textField(fields, "start")
		}
		records = append(records, RawActivity{
			UID:          textField(fields, "uid"),
			Href:         textField(fields, "href"),
			Title:        textField(fields, "title"),
			Category:     textField(fields, "category"),
			StartDate:    start,
			Result:       textField(fields, "result"),
			ActivityType: textField(fields, "activity_type"),
		})
	}
	return records, nil
}

func feedArray(body []byte) ([]json.RawMessage, bool) {
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		// A bare null decodes without error but is not a feed.
		return arr, arr != nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, false
	}
	for _, key := range feedArrayKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &arr); err == nil && arr != nil {
			return arr, true
		}
	}
	return nil, false
}

func textField(fields map[string]any, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
