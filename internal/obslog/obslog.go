// Package obslog provides the shared logging infrastructure for sppmon.
// It routes error-level records to stderr and everything else to stdout,
// so container log collectors can apply different handling per stream,
// and exposes the single package-level logger every collector writes
// through.
package obslog

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// streamSplitter is an io.Writer that inspects the formatted log line and
// routes it to stderr when it carries an error level, stdout otherwise.
type streamSplitter struct{}

func (streamSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte(`"level":"error"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Log is the global logger used throughout sppmon. Collectors should log
// through this instance rather than creating their own, so every run
// produces a single consistent stream.
var Log = logrus.New()

func init() {
	Log.SetOutput(streamSplitter{})
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// UseJSON switches the logger to JSON output, for log-shipping pipelines.
func UseJSON(enabled bool) {
	if enabled {
		Log.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetVerbosity maps the CLI's --verbose/--debug flags onto logrus levels.
func SetVerbosity(verbose, debug bool) {
	switch {
	case debug:
		Log.SetLevel(logrus.DebugLevel)
	case verbose:
		Log.SetLevel(logrus.InfoLevel)
	default:
		Log.SetLevel(logrus.WarnLevel)
	}
}
