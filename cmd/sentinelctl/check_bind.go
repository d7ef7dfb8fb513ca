package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openclaw/sentinel/internal/bindguard"
	"github.com/openclaw/sentinel/internal/envcfg"
)

func newCheckBindCmd() *cobra.Command {
	var host string
	var tlsEnabled, hasToken, hasPassword, hasTailscaleAuth bool

	cmd := &cobra.Command{
		Use:   "check-bind --host HOST",
		Short: "Evaluate whether the public-bind guard would admit a listen attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			if host == "" {
				return fmt.Errorf("--host is required")
			}
			d := bindguard.Check(bindguard.BindContext{
				Host:             host,
				Env:              envcfg.Snapshot(),
				TLSEnabled:       tlsEnabled,
				HasToken:         hasToken,
				HasPassword:      hasPassword,
				HasTailscaleAuth: hasTailscaleAuth,
			})
			if d.Allowed {
				fmt.Fprintf(cmd.OutOrStdout(), "allowed: bind to %q is admitted\n", host)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "denied: %s\nremediations:\n  - %s\n", d.Reason, strings.Join(d.Remediations, "\n  - "))
			return nil
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host to evaluate")
	cmd.Flags().BoolVar(&tlsEnabled, "tls", false, "whether TLS is enabled")
	cmd.Flags().BoolVar(&hasToken, "has-token", false, "whether a gateway token is configured")
	cmd.Flags().BoolVar(&hasPassword, "has-password", false, "whether a gateway password is configured")
	cmd.Flags().BoolVar(&hasTailscaleAuth, "has-tailscale-auth", false, "whether Tailscale identity-aware auth is in effect")
	return cmd
}
