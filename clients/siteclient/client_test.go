package siteclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresAbsoluteURL(t *testing.T) {
	_, err := New("/relative")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be absolute")
}

func TestGet(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		ctype      string
		body       string
		wantOK     bool
		wantIsJSON bool
	}{
		{name: "html page", status: http.StatusOK, ctype: "text/html; charset=utf-8", body: "<html></html>", wantOK: true},
		{name: "json feed", status: http.StatusOK, ctype: "application/json", body: "[]", wantOK: true, wantIsJSON: true},
		{name: "server error", status: http.StatusInternalServerError, ctype: "text/plain", body: "oops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/page", r.URL.Path)
				assert.Equal(t, "yes", r.Header.Get("X-Test"))
				w.Header().Set("Content-Type", tt.ctype)
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			client, err := New(ts.URL)
			require.NoError(t, err)

			resp, err := client.Get(context.Background(), "/page", http.Header{"X-Test": {"yes"}})
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.wantOK, resp.OK())
			assert.Equal(t, tt.wantIsJSON, resp.IsJSON())
			assert.Equal(t, tt.body, string(resp.Body))
		})
	}
}

func TestGet_SendsSessionCookies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("__ac")
		if assert.NoError(t, err) {
			assert.Equal(t, "session-token", c.Value)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client, err := New(ts.URL, WithCookieHeader("__ac=session-token; theme=dark"))
	require.NoError(t, err)

	_, err = client.Get(context.Background(), ts.URL+"/anything", nil)
	require.NoError(t, err)
}

func TestGet_BodyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 8)))
	}))
	defer ts.Close()

	exact, err := New(ts.URL, WithMaxBodyBytes(8))
	require.NoError(t, err)
	resp, err := exact.Get(context.Background(), "/", nil)
	require.NoError(t, err)
	assert.Len(t, resp.Body, 8)

	small, err := New(ts.URL, WithMaxBodyBytes(7))
	require.NoError(t, err)
	_, err = small.Get(context.Background(), "/", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestResolveURL(t *testing.T) {
	base, _ := url.Parse("https://www.example.org/members/ada/")

	got, err := ResolveURL(base, "/activities/a1")
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.org/activities/a1", got)

	got, err = ResolveURL(base, "member-activities")
	require.NoError(t, err)
	assert.Equal(t, "https://www.example.org/members/ada/member-activities", got)

	_, err = ResolveURL(base, "  ")
	assert.Error(t, err)

	_, err = ResolveURL(base, "mailto:someone@example.org")
	assert.Error(t, err)
}

func TestParseCookieHeader(t *testing.T) {
	cookies := ParseCookieHeader("a=1; b = 2 ;broken; =nameless")
	require.Len(t, cookies, 2)
	assert.Equal(t, "a", cookies[0].Name)
	assert.Equal(t, "1", cookies[0].Value)
	assert.Equal(t, "b", cookies[1].Name)
	assert.Equal(t, "2", cookies[1].Value)
}
