package cmd

import "github.com/spf13/cobra"

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "agentpulse",
		Short:         "Live metrics for AI coding-agent sessions",
		Long:          "agentpulse watches the JSONL transcript of an AI coding agent working in a workspace and serves live token, cost, tool, and latency metrics over WebSockets and a JSON API.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newSessionsCmd(),
		newVersionCmd(),
	)

	return rootCmd
}
