package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dreamiurg/mountaineers-assistant-sub000/buildinfo"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:     "mountaineers-assistant",
		Short:   "Harvest your activity history into a local cache",
		Version: buildinfo.Get().Version,
		Long: `mountaineers-assistant reads your completed activities from the activity
site, enriches each new one with its type and roster, and merges them into
a local cache.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	load := func() (*app, error) {
		if configPath == "" {
			return nil, fmt.Errorf("config flag (-c or --config) is required")
		}
		return loadApp(configPath)
	}

	rootCmd.AddCommand(refreshCmd(load))
	rootCmd.AddCommand(summaryCmd(load))
	rootCmd.AddCommand(historyCmd(load))
	rootCmd.AddCommand(settingsCmd(load))
	rootCmd.AddCommand(validateCmd(&configPath))
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}
