package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/grafana/dskit/services"
	"github.com/otelfleet/fleetmon/pkg/config"
	"github.com/otelfleet/fleetmon/pkg/logutil"
	"github.com/otelfleet/fleetmon/pkg/robot"
	"github.com/otelfleet/fleetmon/pkg/util/contextutil"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var (
	configPath string
	robotID    string
	monitorURL string
	interval   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "fleet-robot",
	Short: "Simulated robot reporting telemetry to the fleet monitor",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg.Robot.Apply(robotOverrides(cmd.Flags()))
		logutil.SetLevel(logutil.ParseLevel(cfg.LogLevel))
		logger := slog.Default()

		r, err := robot.New(logger, cfg.Robot, nil)
		if err != nil {
			return err
		}

		ctx := contextutil.SetupSignals(context.Background())
		logger.With("monitor", cfg.Robot.MonitorURL, "interval", cfg.Robot.Interval).Info("fleet robot starting...")
		if err := services.StartAndAwaitRunning(ctx, r); err != nil {
			return fmt.Errorf("failed to start robot: %w", err)
		}

		<-ctx.Done()
		if !contextutil.IsShutdown(ctx) {
			logger.With("err", context.Cause(ctx)).Warn("unexpected stop")
		}
		logger.Info("shutting down fleet robot...")
		return services.StopAndAwaitTerminated(context.Background(), r)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML configuration")
	rootCmd.Flags().StringVar(&robotID, "id", "", "Robot identifier (overrides ROBOT_ID)")
	rootCmd.Flags().StringVar(&monitorURL, "monitor-url", "", "Base URL of the fleet monitor (overrides MONITOR_URL)")
	rootCmd.Flags().DurationVar(&interval, "interval", config.DefaultInterval, "Report interval (overrides REPORT_INTERVAL)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// robotOverrides collects only the flags given on the command line.
func robotOverrides(flags *pflag.FlagSet) config.RobotOverrides {
	var o config.RobotOverrides
	if flags.Changed("id") {
		o.ID = lo.ToPtr(robotID)
	}
	if flags.Changed("monitor-url") {
		o.MonitorURL = lo.ToPtr(monitorURL)
	}
	if flags.Changed("interval") {
		o.Interval = lo.ToPtr(interval)
	}
	return o
}
