package server

import (
	"context"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/dreamiurg/mountaineers-assistant-sub000/clients/siteclient"
)

// sessionSite is the collector's view of the site. Reload swaps the client so a
// new cookie takes effect on the next request.
type sessionSite struct {
	client atomic.Pointer[siteclient.Client]
}

func (s *sessionSite) set(c *siteclient.Client) {
	s.client.Store(c)
}

func (s *sessionSite) Get(ctx context.Context, rawURL string, header http.Header) (*siteclient.Response, error) {
	return s.client.Load().Get(ctx, rawURL, header)
}

func (s *sessionSite) BaseURL() *url.URL {
	return s.client.Load().BaseURL()
}
