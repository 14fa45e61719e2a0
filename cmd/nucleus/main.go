// Package main is the nucleus command line: scenario execution, clock
// demos, vector listings and run history queries against the simulated
// kernel dispatch machine.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"nucleus/internal/config"
	"nucleus/internal/klog"
)

const version = "0.3.0"

var (
	// Global flags
	cfgPath   string
	verbose   bool
	logFormat string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:     "nucleus",
	Short:   "nucleus - simulated kernel dispatch machine",
	Version: version,
	Long: `nucleus assembles a simulated kernel machine: an interrupt controller
behind a vector table, synchronous trap dispatch, and a drift-corrected
two-phase clock driving a timer wheel.

Scenarios script events against a fresh machine and check what dispatch
did with them; runs can be recorded to a local trace database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Logging.Verbose = true
			cfg.Logging.Level = "debug"
		}
		if logFormat != "" {
			cfg.Logging.Format = logFormat
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return klog.Initialize(cfg.LogOptions())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		klog.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "nucleus.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format override (console or json)")

	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "Scenarios to run concurrently")
	runCmd.Flags().StringVar(&runTraceDB, "trace-db", "", "Record runs to this database (overrides config)")
	watchCmd.Flags().IntVar(&runParallel, "parallel", 1, "Scenarios to run concurrently")

	clockDriftCmd.Flags().Int64Var(&driftSlewPPM, "slew-ppm", 500000, "Temporary calibration rate in PPM")
	clockDriftCmd.Flags().Uint64Var(&driftSyncAt, "sync-at", 15, "Raw second the slew phase ends at")
	clockDriftCmd.Flags().Int64Var(&driftSteadyPPM, "steady-ppm", 200, "Steady calibration rate in PPM")
	clockDriftCmd.Flags().Uint64Var(&driftSeconds, "seconds", 30, "Raw seconds to simulate")
	clockDriftCmd.Flags().Uint64Var(&driftStep, "step", 5, "Raw seconds between table rows")
	clockSyncCmd.Flags().IntVar(&syncExchanges, "exchanges", 5, "Query exchanges to simulate")
	clockSyncCmd.Flags().Int64Var(&syncOffsetMillis, "offset-ms", 250, "Initial server offset in milliseconds")
	clockSyncCmd.Flags().Uint64Var(&syncRTDMillis, "rtd-ms", 40, "Simulated round trip delay in milliseconds")
	clockCmd.AddCommand(clockDriftCmd, clockSyncCmd)

	traceCmd.PersistentFlags().StringVar(&traceDB, "db", "", "Trace database path (overrides config)")
	traceRunsCmd.Flags().IntVar(&traceLimit, "limit", 20, "Maximum rows to list")
	traceRunsCmd.Flags().BoolVar(&traceFailed, "failed", false, "List failed runs only")
	traceRunsCmd.Flags().StringVar(&traceName, "name", "", "List runs of one scenario")
	traceCleanupCmd.Flags().IntVar(&traceDays, "days", 30, "Retention period in days")
	traceCmd.AddCommand(traceRunsCmd, traceEventsCmd, traceStatsCmd, traceCleanupCmd)

	rootCmd.AddCommand(runCmd, watchCmd, clockCmd, vectorsCmd, traceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
