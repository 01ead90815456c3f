package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Fazeel-AIML/Support-Ticket-Resolution-Agent/internal/version"
)

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ticket-agent version %s\n", version.Current)
		},
	}
}
