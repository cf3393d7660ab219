// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sqlna",
	Short: "sqlna - SQL network trace analyzer",
	Long: `sqlna reads network capture files (NetMon, pcap, pcap-ng, ETL),
reconstructs TCP/UDP conversations, extracts TCP payloads (unwrapping the
SMP/MARS multiplexing shim) and marks retransmitted and continuation
segments, producing a per-conversation summary for SQL traffic analysis.`,
	Version: "0.1.0",
}

// Execute runs the root command; its flags and subcommands are registered
// in init. This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path")

	rootCmd.AddCommand(analyzeCmd)
}
