package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/openclaw/sentinel/internal/redact"
)

func newRedactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redact",
		Short: "Redact secrets from text read on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("read stdin: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), redact.RedactText(string(raw)))
			return nil
		},
	}
	return cmd
}
