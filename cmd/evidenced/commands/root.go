// Package commands implements the evidenced CLI.
package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information injected at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "evidenced",
	Short: "evidenced - content-addressed evidence storage",
	Long: `evidenced stores carbon-credit audit documents content-addressed by
their SHA-256 digest. Clients upload directly to the object store through
presigned URLs; the service verifies, deduplicates and catalogs every
payload, optionally replicating it to IPFS.

Configuration comes entirely from environment variables.
Use "evidenced [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("evidenced %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
