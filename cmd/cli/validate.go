package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dreamiurg/mountaineers-assistant-sub000/buildinfo"
	"github.com/dreamiurg/mountaineers-assistant-sub000/config"
)

func validateCmd(configPath *string) *cobra.Command {
	var show bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config file without contacting the site",
		RunE: func(cmd *cobra.Command, args []string) error {
			if *configPath == "" {
				return fmt.Errorf("config flag (-c or --config) is required")
			}
			cfg, err := config.LoadConfig(*configPath)
			if err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", failMark(), err)
				return fmt.Errorf("invalid config")
			}
			if _, err := cfg.SessionCookie(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %v\n", failMark(), err)
				return fmt.Errorf("invalid config")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s is valid\n", okMark(), *configPath)
			if show {
				out, err := yaml.Marshal(cfg.Redacted())
				if err != nil {
					return fmt.Errorf("encoding config: %w", err)
				}
				fmt.Fprint(cmd.OutOrStdout(), string(out))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&show, "show", false, "Print the effective config with secrets redacted")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Run: func(cmd *cobra.Command, args []string) {
			info := buildinfo.Get()
			fmt.Fprintf(cmd.OutOrStdout(), "version:    %s\n", info.Version)
			fmt.Fprintf(cmd.OutOrStdout(), "build time: %s\n", info.BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "git commit: %s\n", info.GitCommit)
		},
	}
}
