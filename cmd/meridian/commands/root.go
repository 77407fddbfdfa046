package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meridian",
	Short: "Meridian - portfolio metrics backend",
	Long: `Meridian Unified CLI

Portfolio analytics backend: weighted daily return construction,
risk and performance metrics, benchmark comparison, metrics caching
and optional AI commentary.

Usage:
  go run ./cmd/meridian [command]

Examples:
  go run ./cmd/meridian api
  go run ./cmd/meridian calc --tickers AAPL,MSFT --weights 0.6,0.4
  go run ./cmd/meridian cleanup
  go run ./cmd/meridian status`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
