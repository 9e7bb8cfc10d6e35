package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ipward/internal/cli"
	"ipward/internal/config"
	"ipward/internal/decision"
)

var whitelistCmd = &cobra.Command{
	Use:   "whitelist",
	Short: "Inspect the configured IP whitelist",
}

var whitelistCheckCmd = &cobra.Command{
	Use:   "check <ip>",
	Short: "Report whether an IP literally matches the configured whitelist",
	Long: `Loads the configured whitelist sources (the local file and, if enabled,
the git-backed source) and reports a literal hit or miss for the given IP.

Matching is exact-string, not CIDR-aware (SPEC_FULL.md §15.4): an IP
covered by a whitelisted CIDR block but not listed verbatim reports a
miss here, the same way the reconciler would treat it.`,
	Args: cobra.ExactArgs(1),
	RunE: runWhitelistCheck,
}

func init() {
	rootCmd.AddCommand(whitelistCmd)
	whitelistCmd.AddCommand(whitelistCheckCmd)
}

func runWhitelistCheck(cmd *cobra.Command, args []string) error {
	ip := args[0]

	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", err.Error())
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return cli.NewCommandError("whitelist check", err)
	}

	manager, err := newWhitelistManager(cfg, logger)
	if err != nil {
		return cli.NewCommandError("whitelist check", err)
	}

	ctx := cmd.Context()
	if err := manager.Refresh(ctx); err != nil {
		return cli.NewCommandError("whitelist check", err)
	}

	wl := manager.Current()
	hit := wl.Contains(ip)

	if !decision.ValidIPv4(ip) {
		fmt.Printf("warning: %q is not a valid IPv4 address; matching is literal-string only\n", ip)
	}

	ok, fail := statusGlyph()
	if hit {
		fmt.Printf("%s %s: whitelisted (%d entries loaded)\n", ok, ip, wl.Len())
	} else {
		fmt.Printf("%s %s: not whitelisted (%d entries loaded)\n", fail, ip, wl.Len())
	}
	return nil
}
