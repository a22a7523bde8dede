// Package cmd implements the wolproxy CLI using Cobra.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/drsoft-oss/wolproxy/internal/config"
	"github.com/drsoft-oss/wolproxy/internal/supervisor"
)

// version is injected at build time via ldflags.
var version = "dev"

var flagConfigPath string

var rootCmd = &cobra.Command{
	Use:   "wolproxy",
	Short: "Wake-on-LAN transparent proxy for game servers",
	Long: `wolproxy — a transparent proxy that impersonates a sleeping game server,
wakes it on the first real connection attempt, and steps out of the way once
it is reachable.

It listens on the same TCP/UDP ports the real game server would use. While
the target host is offline it answers status/ping probes itself so the
server shows up in a client's list, sends a Wake-on-LAN magic packet the
moment a player actually tries to join, and waits for the host to come up.
Once a TCP health probe succeeds it releases the target's IP address to the
real host and forwards every connection straight through.

See config.json (created with 'wolproxy create-config') for every tunable.
`,
	Version:      version,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "config.json", "Path to the configuration file")

	rootCmd.AddCommand(createConfigCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(statusCmd)
}

var createConfigCmd = &cobra.Command{
	Use:   "create-config",
	Short: "Write a fully-populated example configuration file",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := config.SaveExample(flagConfigPath); err != nil {
			return fmt.Errorf("create config: %w", err)
		}
		fmt.Printf("wrote example configuration to %s\n", flagConfigPath)
		return nil
	},
}

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate the configuration file without starting the proxy",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(flagConfigPath)
		if err != nil {
			return err
		}
		fmt.Printf("configuration at %s is valid\n\n%s", flagConfigPath, cfg.Summary())
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Query a running wolproxy instance's /status endpoint",
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load(flagConfigPath)
		if err != nil {
			return err
		}
		return fetchStatus(cfg.Monitoring.StatusEndpointPort)
	},
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return err
	}

	sup, err := supervisor.New(cfg)
	if err != nil {
		return fmt.Errorf("init supervisor: %w", err)
	}

	printBanner(cfg)
	return sup.Run(context.Background())
}

func printBanner(cfg config.Config) {
	protoA := "disabled"
	if cfg.ProtocolA.Enabled {
		protoA = fmt.Sprintf("enabled (port %d)", cfg.ProtocolA.Port)
	}
	protoB := "disabled"
	if cfg.ProtocolB.Enabled {
		protoB = fmt.Sprintf("enabled (ports %d, %d, %d)", cfg.ProtocolB.GamePort, cfg.ProtocolB.QueryPort, cfg.ProtocolB.BeaconPort)
	}

	fmt.Printf(`
╔══════════════════════════════════════════════════════════════╗
║                       wolproxy %s
╠══════════════════════════════════════════════════════════════╣
║  Target host    : %s
║  Protocol A     : %s
║  Protocol B     : %s
║  Status server  : http://0.0.0.0:%d/status
╚══════════════════════════════════════════════════════════════╝

`, padRight(version, 44),
		padRight(cfg.Server.TargetIP, 46),
		padRight(protoA, 46),
		padRight(protoB, 46),
		cfg.Monitoring.StatusEndpointPort,
	)
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}
