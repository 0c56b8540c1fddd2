// Package cli implements the authly-cli command tree for inspecting trust
// material and verifying connectivity against an Authly endpoint.
package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "authly-cli",
	Short: "Inspect Authly trust material and verify endpoint connectivity",
	Long: `authly-cli works with the trust material an Authly-managed service runs with:
the local CA trust anchor and the service identity credential.

Available commands:
  inspect  Show the contents of a CA or identity file
  verify   Establish a mutually authenticated connection and report the result
  version  Show build information`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}
