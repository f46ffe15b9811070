package main

import (
	"context"
	"fmt"
	"os"

	"github.com/otelfleet/fleetmon/pkg/config"
	"github.com/otelfleet/fleetmon/pkg/fleet"
	"github.com/otelfleet/fleetmon/pkg/logutil"
	"github.com/otelfleet/fleetmon/pkg/server"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath   string
	listenAddr   string
	port         int
	snapshotPath string
)

var rootCmd = &cobra.Command{
	Use:   "fleet-monitor",
	Short: "Collects robot telemetry and serves the fleet view",
	Long:  "fleet-monitor accepts telemetry from robots on /ingest and exposes the latest state on /fleet, /metrics and /health.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.Monitor.Apply(monitorOverrides(cmd.Flags()))
		logutil.SetLevel(logutil.ParseLevel(cfg.LogLevel))

		m, err := server.New(cfg.Monitor, fleet.NewStore())
		if err != nil {
			return fmt.Errorf("failed to create monitor: %w", err)
		}
		return m.Run(context.Background())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML configuration")
	rootCmd.Flags().StringVar(&listenAddr, "listen-address", "", "HTTP listen address (overrides LISTEN_ADDRESS)")
	rootCmd.Flags().IntVar(&port, "port", config.DefaultPort, "HTTP listen port (overrides PORT)")
	rootCmd.Flags().StringVar(&snapshotPath, "snapshot-file", "", "Write the fleet view to this file on shutdown")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// monitorOverrides collects only the flags given on the command line.
func monitorOverrides(flags *pflag.FlagSet) config.MonitorOverrides {
	var o config.MonitorOverrides
	if flags.Changed("listen-address") {
		o.ListenAddress = lo.ToPtr(listenAddr)
	}
	if flags.Changed("port") {
		o.Port = lo.ToPtr(port)
	}
	if flags.Changed("snapshot-file") {
		o.SnapshotPath = lo.ToPtr(snapshotPath)
	}
	return o
}
