package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hyperlocal",
	Short: "hyperlocal serves a live map of community-reported incidents",
	// bare invocation keeps the old behaviour of starting the server
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, sweepCmd, watchCmd)
}
