package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/sentinel/internal/config"
)

func newRoot(version string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "sentinelctl",
		Short:         "sentinelctl: diagnostics for the gateway security core",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return nil
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := cfg.ApplyOverlays(); err != nil {
				return fmt.Errorf("apply config overlays: %w", err)
			}
			return nil
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate("sentinelctl {{.Version}}\n")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a sentinel config file; applies its blocklist/redaction overlays before running the check")

	cmd.AddCommand(newCheckBindCmd())
	cmd.AddCommand(newCheckCommandCmd())
	cmd.AddCommand(newCheckAllowlistCmd())
	cmd.AddCommand(newRedactCmd())

	return cmd
}
