package collector

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/dreamiurg/mountaineers-assistant-sub000/clients/siteclient"
)

const (
	homePath           = "/"
	activitiesLinkText = "My Activities"
	profileLinkText    = "My profile"
)

var memberSlugPattern = regexp.MustCompile(`/members/([^/?#]+)`)

// Session identifies the signed-in user's activity listing.
type Session struct {
	ActivitiesURL  string
	CurrentUserUID string
}

// Discover reads the portal home page and locates the "My Activities" link.
// The current user's uid is taken from the "My profile" link when present.
func (c *Collector) Discover(ctx context.Context) (Session, error) {
	resp, err := c.site.Get(ctx, homePath, nil)
	if err != nil {
		return Session{}, &DiscoveryError{Reason: "fetching home page", Err: err}
	}
	if !resp.OK() {
		return Session{}, &DiscoveryError{Reason: fmt.Sprintf("home page returned status %d", resp.StatusCode)}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return Session{}, &DiscoveryError{Reason: "parsing home page", Err: err}
	}
	pageURL, err := url.Parse(resp.URL)
	if err != nil {
		return Session{}, &DiscoveryError{Reason: "parsing home page URL", Err: err}
	}

	href := findLinkHref(doc, activitiesLinkText)
	if href == "" {
		return Session{}, &DiscoveryError{Reason: fmt.Sprintf("no %q link on home page", activitiesLinkText)}
	}
	activitiesURL, err := siteclient.ResolveURL(pageURL, href)
	if err != nil {
		return Session{}, &DiscoveryError{Reason: "resolving activities link", Err: err}
	}

	session := Session{ActivitiesURL: activitiesURL}
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(visibleText(a), profileLinkText) {
			return true
		}
		if slug := MemberSlug(a.AttrOr("href", "")); slug != "" {
			session.CurrentUserUID = slug
			return false
		}
		return true
	})
	if session.CurrentUserUID == "" {
		c.logger.Debug("profile link not found, current user unknown")
	}

	c.logger.Info("discovered activities page",
		"activities_url", session.ActivitiesURL,
		"current_user", session.CurrentUserUID,
	)
	return session, nil
}

// findLinkHref returns the href of the first anchor whose text contains text.
func findLinkHref(doc *goquery.Document, text string) string {
	var href string
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if !strings.Contains(visibleText(a), text) {
			return true
		}
		if h := strings.TrimSpace(a.AttrOr("href", "")); h != "" {
			href = h
			return false
		}
		return true
	})
	return href
}

// MemberSlug extracts the member slug from a URL or path containing /members/<slug>.
func MemberSlug(href string) string {
	m := memberSlugPattern.FindStringSubmatch(href)
	if m == nil {
		return ""
	}
	slug, err := url.PathUnescape(m[1])
	if err != nil {
		return m[1]
	}
	return slug
}

// visibleText returns the element's text with whitespace collapsed.
func visibleText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
