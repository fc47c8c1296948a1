package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "stockpilot",
	Short: "Stockpilot - analyst prediction tracking for a personal portfolio",
	Long: `Stockpilot CLI

Captures analyst price targets and consensus estimates for tracked
tickers, evaluates them when they mature, and scores the firms on
their track record.

Usage:
  go run ./cmd/stockpilot [command]

Examples:
  go run ./cmd/stockpilot api
  go run ./cmd/stockpilot scheduler start
  go run ./cmd/stockpilot pipeline run`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is .env)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
