package cli

import (
	"errors"

	"github.com/sppmon/sppmon/internal/pidlock"
	"github.com/sppmon/sppmon/internal/schema"
	"github.com/sppmon/sppmon/internal/sppconfig"
)

// ExitCode maps an error returned from RootCmd.Execute to the process
// exit status §6 documents: 0 success, 1 general failure, 2 a missing
// --cfg argument, 3 a startup error (invalid configuration, a schema
// violation, or a concurrent run already holding the PID file).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cfgErr *sppconfig.ConfigError
	if errors.As(err, &cfgErr) {
		if cfgErr.Key == "--cfg" {
			return 2
		}
		return 3
	}
	var violation *schema.SchemaViolationError
	if errors.As(err, &violation) {
		return 3
	}
	var runningErr *pidlock.AlreadyRunningError
	if errors.As(err, &runningErr) {
		return 3
	}
	return 1
}
