// Package config loads the server's own settings: where to listen, when to
// refresh and which harvester config to serve.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dreamiurg/mountaineers-assistant-sub000/server/cron"
)

const defaultAddr = ":8080"

type ServerConfig struct {
	Listener ListenerConfig `yaml:"listener"`
	Cron     []CronTrigger  `yaml:"cron"`
	// HarvesterConfig is the harvester config file. A relative path is
	// resolved against the directory of the server config.
	HarvesterConfig string `yaml:"harvester_config"`
	// WatchConfig reloads the harvester config when the file changes on disk.
	WatchConfig bool `yaml:"watch_config"`
}

type ListenerConfig struct {
	Addr string `yaml:"addr"`
}

// CronTrigger is one refresh schedule, in cron or descriptor form.
type CronTrigger struct {
	Schedule string `yaml:"schedule"`
}

// Schedules returns the configured schedules in file order.
func (c *ServerConfig) Schedules() []string {
	out := make([]string, 0, len(c.Cron))
	for _, t := range c.Cron {
		out = append(out, t.Schedule)
	}
	return out
}

// LoadConfig reads, defaults and validates the server config at path.
func LoadConfig(path string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing server config %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("server config %s: %w", path, err)
	}

	if !filepath.IsAbs(cfg.HarvesterConfig) {
		cfg.HarvesterConfig = filepath.Join(filepath.Dir(path), cfg.HarvesterConfig)
	}
	return &cfg, nil
}

func (c *ServerConfig) SetDefaults() {
	if c.Listener.Addr == "" {
		c.Listener.Addr = defaultAddr
	}
}

// Validate requires a harvester config and checks every schedule. Blank or
// duplicate schedules are rejected.
func (c *ServerConfig) Validate() error {
	if c.HarvesterConfig == "" {
		return fmt.Errorf("harvester_config is required")
	}
	for i, t := range c.Cron {
		if strings.TrimSpace(t.Schedule) == "" {
			return fmt.Errorf("cron trigger %d has no schedule", i)
		}
		if strings.Contains(t.Schedule, ";") {
			return fmt.Errorf("cron trigger %d: use one entry per schedule", i)
		}
	}
	if len(c.Cron) > 0 {
		if _, err := cron.ParseSchedules(strings.Join(c.Schedules(), ";")); err != nil {
			return err
		}
	}
	return nil
}
