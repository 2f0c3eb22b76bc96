package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func settingsCmd(load func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change saved preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.records.LoadSettings(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, s)
		},
	}
	cmd.AddCommand(settingsSetCmd(load))
	return cmd
}

func settingsSetCmd(load func() (*app, error)) *cobra.Command {
	var (
		fetchLimit  int
		unlimited   bool
		showAvatars bool
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update saved preferences",
		Example: `  mountaineers-assistant -c config.yaml settings set --fetch-limit 25
  mountaineers-assistant -c config.yaml settings set --unlimited --show-avatars=false`,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("fetch-limit") && !flags.Changed("unlimited") && !flags.Changed("show-avatars") {
				return fmt.Errorf("nothing to change: pass --fetch-limit, --unlimited or --show-avatars")
			}
			if flags.Changed("fetch-limit") && unlimited {
				return fmt.Errorf("--fetch-limit and --unlimited are mutually exclusive")
			}

			a, err := load()
			if err != nil {
				return err
			}
			defer a.Close()

			s, err := a.records.LoadSettings(cmd.Context())
			if err != nil {
				return err
			}
			if flags.Changed("fetch-limit") {
				s.FetchLimit = &fetchLimit
			}
			if unlimited {
				s.FetchLimit = nil
			}
			if flags.Changed("show-avatars") {
				s.ShowAvatars = showAvatars
			}
			if err := s.Validate(); err != nil {
				return err
			}
			if err := a.records.SaveSettings(cmd.Context(), s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Settings saved\n", okMark())
			return printJSON(cmd, s)
		},
	}
	cmd.Flags().IntVar(&fetchLimit, "fetch-limit", 0, "Maximum new activities enriched per refresh")
	cmd.Flags().BoolVar(&unlimited, "unlimited", false, "Remove the fetch limit")
	cmd.Flags().BoolVar(&showAvatars, "show-avatars", true, "Show member avatars")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
