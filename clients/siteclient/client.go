// Package siteclient provides the authenticated HTTP session used to read pages
// and feeds from the activity site.
//
// The session is not established here: cookies from an already signed-in browser
// session are supplied by configuration and attached to every request.
//
// Example usage:
//
//	client, err := siteclient.New("https://www.mountaineers.org",
//		siteclient.WithCookieHeader("__ac=...; _ga=..."))
//	resp, err := client.Get(ctx, "/", nil)
package siteclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "mountaineers-assistant/1.0"
	maxBodyBytes     = 16 << 20
)

// Client is an HTTP client bound to one site.
type Client struct {
	base         *url.URL
	httpClient   *http.Client
	userAgent    string
	cookieHeader string
	maxBody      int64
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client. Its Jar is kept if set.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithCookieHeader supplies session cookies in Cookie header form ("a=1; b=2").
func WithCookieHeader(header string) Option {
	return func(c *Client) {
		c.cookieHeader = header
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithMaxBodyBytes caps the size of a response body. Larger responses fail.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With("component", "siteclient")
	}
}

// New creates a client for the site rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	c := &Client{
		base:       base,
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
		maxBody:    maxBodyBytes,
		logger:     slog.Default().With("component", "siteclient"),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("creating cookie jar: %w", err)
		}
		c.httpClient.Jar = jar
	}
	if cookies := ParseCookieHeader(c.cookieHeader); len(cookies) > 0 {
		c.httpClient.Jar.SetCookies(base, cookies)
	}
	return c, nil
}

// BaseURL returns a copy of the site root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Resolve turns ref into an absolute URL relative to the site root.
func (c *Client) Resolve(ref string) (string, error) {
	return ResolveURL(c.base, ref)
}

// ResolveURL resolves ref against base. Empty references are an error.
func ResolveURL(base *url.URL, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty URL reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parsing URL %q: %w", ref, err)
	}
	abs := base.ResolveReference(u)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", fmt.Errorf("URL %q is not http(s)", ref)
	}
	return abs.String(), nil
}

// Response is a fully read HTTP response.
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// OK reports whether the status code is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsJSON reports whether the response declares a JSON media type.
func (r *Response) IsJSON() bool {
	mt, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.Contains(r.ContentType, "json")
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

// Get fetches rawURL (absolute, or relative to the site root) with the session
// cookies and any extra headers. Non-2xx statuses are returned, not treated as errors.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	target, err := c.Resolve(rawURL)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", target, err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, fmt.Errorf("response from %s too large: exceeds %d bytes", target, c.maxBody)
	}

	c.logger.Debug("fetched",
		"url", target,
		"status", resp.StatusCode,
		"bytes", len(body),
		"duration", time.Since(start),
	)

	return &Response{
		URL:         resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// ParseCookieHeader parses "name=value; other=value" into cookies. Malformed
// pairs are skipped.
func ParseCookieHeader(header string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, part := range strings.Split(header, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: strings.TrimSpace(value)})
	}
	return cookies
}
