// Command ipward reconciles ban decisions from CrowdSec-style LAPI and
// Wazuh-style SIEM sources onto a cluster-wide firewall IPSet and an
// optional local nftables set.
//
// Usage:
//
//	# Start the reconciliation daemon
//	ipward run
//
//	# Start with a custom configuration file
//	ipward run --config /etc/ipward/config.yaml
//
//	# Validate configuration without starting the daemon
//	ipward validate
//
//	# Check whether an IP is in the configured whitelist
//	ipward whitelist check 203.0.113.4
//
//	# Show version information
//	ipward version
package main

func main() {
	Execute()
}
