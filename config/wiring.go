package config

import (
	"log/slog"

	"github.com/dreamiurg/mountaineers-assistant-sub000/clients/siteclient"
	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

const redacted = "[REDACTED]"

// NewSiteClient builds the site session described by the site section.
func (c *Config) NewSiteClient(logger *slog.Logger) (*siteclient.Client, error) {
	cookie, err := c.SessionCookie()
	if err != nil {
		return nil, err
	}
	opts := []siteclient.Option{
		siteclient.WithCookieHeader(cookie),
		siteclient.WithTimeout(c.Site.RequestTimeout),
		siteclient.WithUserAgent(c.Site.UserAgent),
	}
	if logger != nil {
		opts = append(opts, siteclient.WithLogger(logger))
	}
	return siteclient.New(c.Site.BaseURL, opts...)
}

// StoreOptions returns the store section as store.Options.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Backend:    c.Store.Backend,
		Dir:        c.Store.Dir,
		SQLitePath: c.Store.SQLitePath,
	}
}

// Redacted returns a copy of the config with the session cookie hidden.
func (c *Config) Redacted() Config {
	out := *c
	if out.Site.Cookie != "" {
		out.Site.Cookie = redacted
	}
	if out.Refresh.FetchLimit != nil {
		limit := *out.Refresh.FetchLimit
		out.Refresh.FetchLimit = &limit
	}
	return out
}
