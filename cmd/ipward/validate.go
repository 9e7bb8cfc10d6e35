package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ipward/internal/cli"
	"ipward/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file without starting the daemon",
	Long: `Load the configuration file, apply defaults and environment overrides,
and run the same validation the run command performs at startup, without
connecting to any source or sink.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	ok, _ := statusGlyph()
	fmt.Printf("%s Configuration valid: %s\n", ok, cfgFile)
	fmt.Printf("  sync interval:    %s\n", cfg.Sync.Interval)
	fmt.Printf("  lapi enabled:     %t\n", cfg.LAPI.Enabled)
	fmt.Printf("  siem enabled:     %t\n", cfg.SIEM.Enabled)
	fmt.Printf("  cluster enabled:  %t\n", cfg.Cluster.Enabled)
	fmt.Printf("  local enabled:    %t\n", cfg.Local.Enabled)
	fmt.Printf("  cache enabled:    %t (%s)\n", cfg.Cache.Enabled, cfg.Cache.Backend)
	fmt.Printf("  whitelist file:   %s\n", cfg.Whitelist.File)
	fmt.Printf("  whitelist git:    %t\n", cfg.Whitelist.Git.Enabled)
	fmt.Printf("  metrics listen:   %s%s\n", cfg.Metrics.ListenAddress, cfg.Metrics.Path)
	return nil
}
