package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dreamiurg/mountaineers-assistant-sub000/bus"
	"github.com/dreamiurg/mountaineers-assistant-sub000/collector"
	"github.com/dreamiurg/mountaineers-assistant-sub000/diagnostics"
	"github.com/dreamiurg/mountaineers-assistant-sub000/logging"
	"github.com/dreamiurg/mountaineers-assistant-sub000/metrics"
	"github.com/dreamiurg/mountaineers-assistant-sub000/orchestrator"
)

func refreshCmd(load func() (*app, error)) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Collect new activities and merge them into the cache",
		Long: `Run one refresh: discover the activity feed, enrich every activity that is
not cached yet and merge the result into the cache.

When monitoring.victoriametrics_url is set, refresh metrics are pushed
there once the run finishes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runRefresh(ctx, a, cmd.OutOrStdout(), quiet)
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only print the final summary")
	return cmd
}

func runRefresh(ctx context.Context, a *app, out io.Writer, quiet bool) error {
	cfg := a.cfg
	logger := a.logger

	site, err := cfg.NewSiteClient(logger.Logger)
	if err != nil {
		return fmt.Errorf("creating site client: %w", err)
	}

	var reg metrics.Registry = metrics.Nop{}
	var push *metrics.PushRegistry
	if cfg.Monitoring.VictoriaMetricsURL != "" {
		push = metrics.NewPushRegistry(metrics.PushConfig{
			URL:      cfg.Monitoring.VictoriaMetricsURL,
			Prefix:   cfg.Monitoring.MetricsPrefix,
			Job:      cfg.Monitoring.JobName,
			Instance: instance(),
		})
		reg = push
	}
	refreshMetrics, err := orchestrator.NewMetrics(reg)
	if err != nil {
		return err
	}
	failures, err := reg.NewCounterVec(prometheus.CounterOpts{
		Name: "enrichment_failures_total",
		Help: "Activity detail or roster fetches that failed and were skipped",
	}, []string{"kind"})
	if err != nil {
		return fmt.Errorf("creating enrichment failure counter: %w", err)
	}

	warnings := logging.NewWarningHook(logging.NewLogCollector(1))
	coll := collector.New(site,
		collector.WithLogger(logger.Logger),
		collector.WithFailureCounter(failures),
		collector.WithLoggerHook(warnings),
	)
	b := bus.New(logger.Component("bus"))
	host := collector.NewHost(ctx, b, coll, logger.Logger)
	orch := orchestrator.New(b, host, a.records,
		orchestrator.WithLogger(logger.Logger),
		orchestrator.WithTimeout(cfg.Refresh.Timeout),
		orchestrator.WithDefaultFetchLimit(cfg.Refresh.FetchLimit),
		orchestrator.WithRecorder(diagnostics.NewLogRecorder(logger.Component("diagnostics"), 0)),
		orchestrator.WithWarningHook(warnings),
		orchestrator.WithMetrics(refreshMetrics),
	)

	done := make(chan struct{})
	printed := make(chan struct{})
	if !quiet {
		updates, unwatch := orch.Watch()
		defer unwatch()
		go func() {
			defer close(printed)
			for {
				select {
				case u := <-updates:
					printProgress(out, u)
				case <-done:
					for {
						select {
						case u := <-updates:
							printProgress(out, u)
						default:
							return
						}
					}
				}
			}
		}()
	} else {
		close(printed)
	}

	summary, runErr := orch.Refresh(ctx)
	close(done)
	<-printed

	if push != nil {
		flushCtx, cancel := context.WithTimeout(context.Background(), metrics.DefaultTimeout)
		defer cancel()
		if err := push.Flush(flushCtx); err != nil {
			logger.Warn("failed to push metrics", "error", err)
		}
	}

	if runErr != nil {
		fmt.Fprintf(out, "%s %v\n", failMark(), runErr)
		return fmt.Errorf("refresh failed: %w", runErr)
	}
	printSummary(out, summary, orch.Warnings())
	return nil
}
