package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	configFile string
	logLevel   string
	hubAddr    string
	authToken  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "ighub",
	Short: "Multi-account Instagram session hub and activity monitor",
	Long: `ighub keeps authenticated Instagram sessions for multiple accounts,
polls each account for new direct messages and comments, and forwards
detected activity to a webhook endpoint.

The serve command runs the hub; the remaining commands talk to a
running hub over its HTTP API.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&hubAddr, "addr", "http://127.0.0.1:8000", "address of the running hub")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "API auth token (or IGHUB_AUTH_TOKEN)")
}
