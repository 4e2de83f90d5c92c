// Command sppmon collects IBM Storage Protect Plus telemetry on a
// schedule and writes it to a time-series database for long-term
// capacity and performance reporting.
package main

import (
	"os"

	"github.com/sppmon/sppmon/cli"
	"github.com/sppmon/sppmon/internal/obslog"
)

func main() {
	err := cli.RootCmd.Execute()
	if err != nil {
		obslog.Log.WithError(err).Error("sppmon: run failed")
	}
	os.Exit(cli.ExitCode(err))
}
