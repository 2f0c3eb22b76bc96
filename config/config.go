// Package config loads the harvester configuration: how to reach the activity
// site, how refreshes run, where the cache is stored, and logging and monitoring.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dreamiurg/mountaineers-assistant-sub000/buildinfo"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
)

const (
	defaultBaseURL        = "https://www.mountaineers.org"
	defaultRequestTimeout = 30 * time.Second
	defaultRefreshTimeout = 5 * time.Minute

	defaultStoreBackend = "disk"
	defaultStoreDir     = "state"
	defaultSQLiteFile   = "harvester.db"

	defaultMetricsPrefix = "mountaineers_assistant"
	defaultJobName       = "mountaineers-assistant"

	defaultLogLevel  = "info"
	defaultLogFormat = "json"
	defaultLogOutput = "stderr"
)

var storeBackends = []string{"disk", "sqlite", "memory"}

// Config represents the complete harvester configuration
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Refresh    RefreshConfig    `yaml:"refresh"`
	Store      StoreConfig      `yaml:"store"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    logging.Config   `yaml:"logging"`
}

// SiteConfig holds the activity site and the signed-in session used to read it
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
	// Cookie is a Cookie header copied from a signed-in browser session.
	Cookie string `yaml:"cookie"`
	// CookiesFile is read instead of Cookie when Cookie is empty.
	CookiesFile    string        `yaml:"cookies_file"`
	UserAgent      string        `yaml:"user_agent"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// RefreshConfig controls refresh runs
type RefreshConfig struct {
	// Timeout bounds a refresh from request to result.
	Timeout time.Duration `yaml:"timeout"`
	// FetchLimit is used when the saved settings do not set one.
	FetchLimit *int `yaml:"fetch_limit"`
}

// StoreConfig selects where the cache and settings are persisted
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	Dir        string `yaml:"dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// MonitoringConfig holds metrics and monitoring settings
type MonitoringConfig struct {
	VictoriaMetricsURL string `yaml:"victoriametrics_url"`
	MetricsPrefix      string `yaml:"metrics_prefix"`
	JobName            string `yaml:"jobname"`
}

// Validate performs basic validation on the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.Site.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("site base_url must be an absolute URL, got %q", c.Site.BaseURL)
	}
	if c.Site.Cookie == "" && c.Site.CookiesFile == "" {
		return fmt.Errorf("site cookie or cookies_file is required")
	}
	if c.Site.RequestTimeout <= 0 {
		return fmt.Errorf("site request timeout must be positive")
	}
	if c.Refresh.Timeout <= 0 {
		return fmt.Errorf("refresh timeout must be positive")
	}
	if c.Refresh.FetchLimit != nil && *c.Refresh.FetchLimit <= 0 {
		return fmt.Errorf("refresh fetch_limit must be positive")
	}
	if !slices.Contains(storeBackends, c.Store.Backend) {
		return fmt.Errorf("store backend must be one of: %s", strings.Join(storeBackends, ", "))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// SetDefaults sets reasonable default values for optional fields
func (c *Config) SetDefaults() {
	if c.Site.BaseURL == "" {
		c.Site.BaseURL = defaultBaseURL
	}
	if c.Site.UserAgent == "" {
		c.Site.UserAgent = buildinfo.UserAgent()
	}
	if c.Site.RequestTimeout == 0 {
		c.Site.RequestTimeout = defaultRequestTimeout
	}
	if c.Refresh.Timeout == 0 {
		c.Refresh.Timeout = defaultRefreshTimeout
	}
	if c.Store.Backend == "" {
		c.Store.Backend = defaultStoreBackend
	}
	if c.Store.Dir == "" {
		c.Store.Dir = defaultStoreDir
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = filepath.Join(c.Store.Dir, defaultSQLiteFile)
	}
	if c.Monitoring.MetricsPrefix == "" {
		c.Monitoring.MetricsPrefix = defaultMetricsPrefix
	}
	if c.Monitoring.JobName == "" {
		c.Monitoring.JobName = defaultJobName
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Logging.Output == "" {
		c.Logging.Output = defaultLogOutput
	}
}

// SessionCookie returns the Cookie header for the site session, reading
// CookiesFile when Cookie is not set inline.
func (c *Config) SessionCookie() (string, error) {
	if c.Site.Cookie != "" {
		return c.Site.Cookie, nil
	}
	data, err := os.ReadFile(c.Site.CookiesFile)
	if err != nil {
		return "", fmt.Errorf("reading cookies file: %w", err)
	}
	cookie := strings.TrimSpace(string(data))
	if cookie == "" {
		return "", fmt.Errorf("cookies file %s is empty", c.Site.CookiesFile)
	}
	return cookie, nil
}

// LoadConfig reads the YAML config file at the given path and returns a Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
