package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ipward",
	Short: "ipward - ban-decision reconciler for LAPI/SIEM sources",
	Long: `ipward polls CrowdSec-style LAPI and Wazuh-style SIEM sources for ban
decisions, filters them against an operator-maintained whitelist, and
reconciles the result onto a cluster-wide firewall IPSet and an optional
local nftables set.`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "/etc/ipward/config.yaml", "config file path")
	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
