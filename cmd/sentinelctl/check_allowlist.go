package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openclaw/sentinel/internal/ipallow"
)

func newCheckAllowlistCmd() *cobra.Command {
	var list string

	cmd := &cobra.Command{
		Use:   "check-allowlist IP --list LIST",
		Short: "Check whether an IP matches a comma-separated IP/CIDR allowlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := ipallow.Parse(list)
			if err != nil {
				return err
			}
			if parsed.Matches(args[0]) {
				fmt.Fprintf(cmd.OutOrStdout(), "match: %s is covered by the allowlist\n", args[0])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "no-match: %s is not covered by the allowlist\n", args[0])
			return nil
		},
	}
	cmd.Flags().StringVar(&list, "list", "", "comma-separated list of IPs/CIDRs")
	return cmd
}
