// Package cli implements the sppmon command-line surface: a single
// root command with flags selecting which collector tiers to run, the
// usual --verbose/--debug/--test diagnostics flags, and the
// --copy_database maintenance mode. It is grounded on the teacher's
// cli package's cobra.Command + viper wiring, trimmed down from an HTTP
// server's service-initialization sequence to a one-shot batch run: this
// system has no long-lived server process, it runs to completion once
// per cron invocation and exits.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sppmon/sppmon/internal/obslog"
)

var (
	cfgFile   string
	verbose   bool
	debugFlag bool
	testMode  bool

	runConstant bool
	runHourly   bool
	runDaily    bool
	runAll      bool

	copyDatabaseTarget string
	loadedSystem       bool
	fullLogs           bool

	pidFile string
)

// RootCmd is the sppmon entry point.
var RootCmd = &cobra.Command{
	Use:   "sppmon",
	Short: "Collects IBM Storage Protect Plus telemetry into a time-series database",
	Long: `sppmon polls the backup server's REST API and job logs on a schedule and
writes the resulting metrics into a TSDB for long-term capacity and
performance reporting.

Collectors are grouped into three tiers by how often they should run:
constant (every few minutes), hourly, and daily. The tiers nest: --hourly
also runs the constant tier, --daily also runs the hourly and constant
tiers, and --all runs every tier in one invocation, which is how a
single cron job can drive the whole
system by passing different flag combinations at different times of day.`,
	RunE:         runMain,
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "cfg", "", "path to the sppmon JSON configuration file (required)")
	RootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable info-level logging")
	RootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug-level logging")
	RootCmd.PersistentFlags().BoolVar(&testMode, "test", false, "collect and log but skip the final write-buffer flush (schema reconcile and the job-log harvester still write)")
	RootCmd.PersistentFlags().StringVar(&pidFile, "pidfile", "/var/run/sppmon.pid", "PID file used to prevent concurrent runs")

	RootCmd.Flags().BoolVar(&runConstant, "constant", false, "run the constant-tier collectors")
	RootCmd.Flags().BoolVar(&runHourly, "hourly", false, "run the constant- and hourly-tier collectors")
	RootCmd.Flags().BoolVar(&runDaily, "daily", false, "run the constant-, hourly- and daily-tier collectors and the job-log harvester")
	RootCmd.Flags().BoolVar(&runAll, "all", false, "run every collector tier")

	RootCmd.Flags().StringVar(&copyDatabaseTarget, "copy_database", "", "copy every measurement into the named database and exit")
	RootCmd.Flags().BoolVar(&loadedSystem, "loadedSystem", false, "use conservative REST pagination tuning for a heavily loaded server")
	RootCmd.Flags().BoolVar(&fullLogs, "fullLogs", false, "fetch full INFO/DEBUG/ERROR/WARN job logs instead of SUMMARY-only")

	cobra.OnInitialize(func() {
		obslog.SetVerbosity(verbose, debugFlag)
	})
}
