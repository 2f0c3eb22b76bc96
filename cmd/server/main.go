package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dreamiurg/mountaineers-assistant-sub000/buildinfo"
	"github.com/dreamiurg/mountaineers-assistant-sub000/server"
	serverconfig "github.com/dreamiurg/mountaineers-assistant-sub000/server/config"
	"github.com/dreamiurg/mountaineers-assistant-sub000/server/cron"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		cronSpec   string
		addr       string
	)

	cmd := &cobra.Command{
		Use:     "mountaineers-assistant-server",
		Short:   "Serve the activity cache and refresh it on a schedule",
		Version: buildinfo.Get().Version,
		Example: `  mountaineers-assistant-server --config /etc/mountaineers-assistant/server.yaml
  mountaineers-assistant-server -c server.yaml --cron "0 6 * * *;30 18 * * 5"`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg, err := serverconfig.LoadConfig(configPath)
			if err != nil {
				return err
			}

			schedules := srvCfg.Schedules()
			if cmd.Flags().Changed("cron") {
				if schedules, err = cron.ParseSchedules(cronSpec); err != nil {
					return fmt.Errorf("invalid --cron: %w", err)
				}
			}
			if !cmd.Flags().Changed("addr") {
				addr = srvCfg.Listener.Addr
			}

			srv, err := server.New(srvCfg.HarvesterConfig,
				server.WithListenAddr(addr),
				server.WithCron(schedules...),
				server.WithConfigWatch(srvCfg.WatchConfig),
			)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to server config file")
	cmd.Flags().StringVar(&cronSpec, "cron", "", `Refresh schedules separated by ";", overriding the config`)
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address, overriding the config")
	cmd.MarkFlagRequired("config")
	return cmd
}
