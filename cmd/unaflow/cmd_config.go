package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unaflow/unaflow/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show unaflow configuration",
		Long: `Show the effective unaflow configuration.

Configuration is read from ~/.unaflow/config.yaml and UNAFLOW_*
environment variables, on top of built-in defaults.

Examples:
  unaflow config list          # Show all settings as YAML
  unaflow config list --json   # Same, as JSON
  unaflow config path          # Print the config file location`,
	}

	cmd.AddCommand(
		newConfigListCmd(),
		newConfigPathCmd(),
	)
	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			if jsonOut {
				// Redact the secret key before JSON serialization to prevent leakage
				redacted := *cfg
				redacted.Publish.SecretKey = cfg.Publish.RedactedSecret()
				return json.NewEncoder(cmd.OutOrStdout()).Encode(redacted)
			}

			out, err := cfg.YAML()
			if err != nil {
				return fmt.Errorf("failed to render config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.Path()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
