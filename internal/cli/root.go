// Package cli implements zerozeroctl, a thin client for the local
// gateway's REST API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	flagAddr string
	flagKey  string
	flagJSON bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "zerozeroctl",
	Short: "Control a running zerozero node",
	Long: `zerozeroctl talks to the local gateway of a running zerozero node:
inspect the inbox, manage pins and contacts, and send messages from
the command line.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&flagAddr, "addr", "http://localhost:7117", "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&flagKey, "key", "", "gateway API key (default $ZEROZERO_API_KEY)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "print raw JSON responses")
}
