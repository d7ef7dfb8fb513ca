package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/sentinel/internal/blocklist"
)

func newCheckCommandCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check-command COMMAND",
		Short: "Run the one-liner blocklist against a command string",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			blocked := blocklist.Check(args[0])
			if blocked.Blocked {
				fmt.Fprintf(cmd.OutOrStdout(), "blocked: %s\n", blocked.Description)
				return nil
			}
			suspicious := blocklist.Suspicious(args[0])
			if suspicious.Suspicious {
				fmt.Fprintf(cmd.OutOrStdout(), "suspicious: %s\n", suspicious.Description)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok: no blocklist pattern matched")
			return nil
		},
	}
	return cmd
}
