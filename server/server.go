// Package server provides the HTTP server for the activity harvester.
//
// The server exposes a REST API to trigger and monitor cache refreshes, read
// the harvested cache and edit user settings. Refresh progress is also pushed
// to websocket clients as it happens.
//
// # Endpoints
//
//   - GET /health - Returns "ok", or 503 when the store cannot be read
//   - GET /api/status - Consolidated status (refresh state, progress, warnings, next run, diagnostics)
//   - POST /refresh - Starts a refresh; 409 if one is already running
//   - GET /cache - Returns the persisted activity cache
//   - GET /summary - Returns the cache summary
//   - GET /settings, PUT /settings - Reads or replaces the user settings
//   - GET /history - Returns the history of refresh runs
//   - GET /history/logs?id=<run> - Returns the warnings captured for a run
//   - GET /config - Returns the current configuration as YAML, cookie redacted
//   - POST /reload - Reloads configuration from disk
//   - GET /metrics - Prometheus metrics
//   - GET /ws - Websocket stream of refresh updates; answers status-request messages
//
// # Architecture
//
// One orchestrator and one collection host live for the lifetime of the server.
// Reload swaps the config, the site session, the log level and the refresh
// timeout and fetch limit; a refresh already in flight keeps the values it
// started with. The store backend is fixed at startup.
//
// # Example
//
//	srv, err := server.New("/etc/harvester/config.yaml", server.WithCron("0 6 * * *"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dreamiurg/mountaineers-assistant-sub000/buildinfo"
	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
	"github.com/dreamiurg/mountaineers-assistant-sub000/cache"
	"github.com/dreamiurg/mountaineers-assistant-sub000/collector"
	"github.com/dreamiurg/mountaineers-assistant-sub000/config"
	"github.com/dreamiurg/mountaineers-assistant-sub000/diagnostics"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/metrics"
	"github.com/dreamiurg/mountaineers-assistant-sub000/orchestrator"
	"github.com/dreamiurg/mountaineers-assistant-sub000/server/cron"
	"github.com/dreamiurg/mountaineers-assistant-sub000/server/handlers"
	"github.com/dreamiurg/mountaineers-assistant-sub000/store"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
	defaultListenAddr      = ":8080"

	// Warnings are kept for this many recent runs.
	warningRuns = 20
)

// serverDeps holds config-derived dependencies that are swapped atomically on reload.
type serverDeps struct {
	config *config.Config
}

// Server is the HTTP server for the harvester.
type Server struct {
	addr        string
	configPath  string
	logger      *logging.Logger
	deps        atomic.Pointer[serverDeps]
	reloadMu    sync.Mutex
	site        *sessionSite
	recordStore store.RecordStore
	records     *store.Records
	registry    *metrics.ScrapeRegistry
	recorder    *diagnostics.LogRecorder
	warnings    *logging.WarningHook
	host        *collector.Host
	orch        *orchestrator.Orchestrator
	scheduler   *cron.Scheduler
	watchConfig bool

	ctx        context.Context
	cancel     context.CancelFunc
	closeOnce  sync.Once
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithCron configures the server to refresh on one or more cron schedules.
// Each spec is a five-field cron expression or a descriptor such as "@daily".
func WithCron(schedules ...string) Option {
	return func(s *Server) error {
		if len(schedules) == 0 {
			return nil
		}
		sched, err := cron.NewScheduler(schedules, s.orch, s.logger.Component("cron"))
		if err != nil {
			return fmt.Errorf("creating refresh scheduler: %w", err)
		}
		s.scheduler = sched
		return nil
	}
}

// WithListenAddr configures the address the server listens on.
// Default is ":8080".
func WithListenAddr(addr string) Option {
	return func(s *Server) error {
		if addr != "" {
			s.addr = addr
		}
		return nil
	}
}

// WithConfigWatch reloads the config whenever the file changes on disk.
func WithConfigWatch(enabled bool) Option {
	return func(s *Server) error {
		s.watchConfig = enabled
		return nil
	}
}

// New creates a new Server with the given config path and options.
// It loads the configuration and initializes all dependencies.
func New(configPath string, opts ...Option) (*Server, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	s := &Server{
		addr:       defaultListenAddr,
		configPath: configPath,
		logger:     logger,
		site:       &sessionSite{},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if err := s.build(&cfg); err != nil {
		s.Close()
		return nil, err
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Close()
			return nil, err
		}
	}

	return s, nil
}

// build creates the long-lived dependencies from the initial config.
func (s *Server) build(cfg *config.Config) error {
	client, err := cfg.NewSiteClient(s.logger.Logger)
	if err != nil {
		return fmt.Errorf("creating site client: %w", err)
	}
	s.site.set(client)

	s.recordStore, err = store.Open(cfg.StoreOptions(), s.logger.Component("store"))
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	s.records = store.NewRecords(s.recordStore)

	s.registry, err = metrics.NewScrapeRegistry(metrics.WithPrefix(cfg.Monitoring.MetricsPrefix))
	if err != nil {
		return fmt.Errorf("creating metrics registry: %w", err)
	}
	refreshMetrics, err := orchestrator.NewMetrics(s.registry)
	if err != nil {
		return err
	}
	failures, err := s.registry.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_failures_total",
		Help: "Activity detail or roster fetches that failed and were skipped",
	}, []string{"kind"})
	if err != nil {
		return fmt.Errorf("creating enrichment failure counter: %w", err)
	}

	s.warnings = logging.NewWarningHook(logging.NewLogCollector(warningRuns))
	s.recorder = diagnostics.NewLogRecorder(s.logger.Component("diagnostics"), 0)

	coll := collector.New(s.site,
		collector.WithLogger(s.logger.Logger),
		collector.WithFailureCounter(failures),
		collector.WithLoggerHook(s.warnings),
	)
	b := bus.New(s.logger.Component("bus"))
	s.host = collector.NewHost(s.ctx, b, coll, s.logger.Logger)
	s.orch = orchestrator.New(b, s.host, s.records,
		orchestrator.WithLogger(s.logger.Logger),
		orchestrator.WithTimeout(cfg.Refresh.Timeout),
		orchestrator.WithDefaultFetchLimit(cfg.Refresh.FetchLimit),
		orchestrator.WithRecorder(s.recorder),
		orchestrator.WithWarningHook(s.warnings),
		orchestrator.WithMetrics(refreshMetrics),
	)

	s.deps.Store(&serverDeps{config: cfg})
	return nil
}

// Reload reads the config from disk and applies the parts that can change at
// runtime. On error the previous config stays in effect.
func (s *Server) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	cfg, err := config.LoadConfig(s.configPath)
	if err != nil {
		return err
	}
	client, err := cfg.NewSiteClient(s.logger.Logger)
	if err != nil {
		return fmt.Errorf("creating site client: %w", err)
	}

	prev := s.Config()
	if prev != nil && prev.StoreOptions() != cfg.StoreOptions() {
		s.logger.Warn("store settings changed, restart the server to apply them",
			"backend", cfg.Store.Backend,
		)
	}

	if err := s.logger.SetLevel(cfg.Logging.Level); err != nil {
		return err
	}
	s.site.set(client)
	s.orch.Reconfigure(cfg.Refresh.Timeout, cfg.Refresh.FetchLimit)
	s.deps.Store(&serverDeps{config: &cfg})

	s.logger.Info("configuration loaded", "config_path", s.configPath)
	return nil
}

// CheckHealth fails once the server is shutting down or the store cannot be read.
func (s *Server) CheckHealth(ctx context.Context) error {
	if err := s.ctx.Err(); err != nil {
		return fmt.Errorf("server is shutting down: %w", err)
	}
	if _, err := s.records.LoadSettings(ctx); err != nil {
		return err
	}
	return nil
}

// Config returns the current configuration.
func (s *Server) Config() *config.Config {
	deps := s.deps.Load()
	if deps == nil {
		return nil
	}
	return deps.config
}

// NextRun returns the next scheduled run time, or nil if no cron is configured.
func (s *Server) NextRun() *time.Time {
	if s.scheduler == nil {
		return nil
	}
	next := s.scheduler.NextRun()
	return &next
}

// Diagnostics returns the most recent failure reports.
func (s *Server) Diagnostics() []diagnostics.Entry {
	return s.recorder.Recent()
}

// RunWarnings returns the warnings captured for runID.
func (s *Server) RunWarnings(runID string) []logging.LogEntry {
	return s.warnings.Warnings(runID)
}

// Status reports the orchestrator status.
func (s *Server) Status() bus.StatusResponse {
	return s.orch.Status()
}

// State returns the orchestrator lifecycle state.
func (s *Server) State() orchestrator.State {
	return s.orch.State()
}

// LastSummary returns the summary of the last successful refresh.
func (s *Server) LastSummary() (cache.RefreshSummary, bool) {
	return s.orch.LastSummary()
}

// LastError returns the error of the last refresh.
func (s *Server) LastError() string {
	return s.orch.LastError()
}

// Warnings returns the warnings of the current or last refresh.
func (s *Server) Warnings() []logging.LogEntry {
	return s.orch.Warnings()
}

// Handler returns the HTTP handler serving all endpoints.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	return mux
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
// If a cron trigger is configured, it will be started automatically.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}

	if s.scheduler != nil {
		s.logger.Info("starting refresh scheduler",
			"next_run", s.scheduler.NextRun(),
		)
		s.scheduler.Start(ctx)
	}

	if s.watchConfig {
		watcher, err := NewConfigWatcher(s.configPath, s.Reload, s.logger.Component("config_watcher"))
		if err != nil {
			return err
		}
		go watcher.Run(ctx)
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		props := buildinfo.Get()
		s.logger.Info("starting server",
			"addr", s.addr,
			"config_path", s.configPath,
			"version", props.Version,
			"git_commit", props.GitCommit,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or server error
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

// Close stops the collection host and closes the store and log output.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		if s.recordStore != nil {
			err = s.recordStore.Close()
		}
		if cerr := s.logger.Close(); err == nil {
			err = cerr
		}
	})
	return err
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	logger := s.logger.Component("http")
	settingsHandler := handlers.NewSettingsHandler(logger, s.records)

	mux.Handle("GET /health", handlers.NewHealthHandler(logger, s))
	mux.Handle("GET /api/status", handlers.NewAPIStatusHandler(s))
	mux.Handle("POST /refresh", handlers.NewRefreshHandler(logger, s.orch))
	mux.Handle("GET /cache", handlers.NewCacheHandler(logger, s.records))
	mux.Handle("GET /summary", handlers.NewSummaryHandler(logger, s.records, s))
	mux.Handle("GET /settings", settingsHandler)
	mux.Handle("PUT /settings", settingsHandler)
	mux.Handle("GET /history", handlers.NewHistoryHandler(logger, s.records))
	mux.Handle("GET /history/logs", handlers.NewHistoryLogsHandler(s))
	mux.Handle("GET /config", handlers.NewConfigHandler(s))
	mux.Handle("POST /reload", handlers.NewReloadHandler(logger, s))
	mux.Handle("GET /metrics", s.registry.Handler())
	mux.Handle("GET /ws", handlers.NewWebSocketHandler(logger, s.orch))
}
