// Package logging configures loglite's structured service logger.
//
// A single charmbracelet/log.Logger, written to stderr by default, with a
// report-timestamp/caller layout suited to a long-running daemon rather
// than an interactive CLI invocation.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Options configures the service logger.
type Options struct {
	Level      log.Level
	Output     io.Writer
	JSON       bool
	ReportTime bool
}

// DefaultOptions returns the daemon's default logging configuration.
func DefaultOptions() Options {
	return Options{
		Level:      log.InfoLevel,
		Output:     os.Stderr,
		JSON:       false,
		ReportTime: true,
	}
}

// New builds a configured logger. Passing opts.JSON=true switches to
// JSON output suited to ingestion by another loglite instance or any
// other log collector sitting downstream of this process.
func New(opts Options) *log.Logger {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	logger := log.NewWithOptions(opts.Output, log.Options{
		ReportCaller:    false,
		ReportTimestamp: opts.ReportTime,
		TimeFormat:      "2006-01-02T15:04:05.000Z07:00",
		Level:           opts.Level,
	})
	if opts.JSON {
		logger.SetFormatter(log.JSONFormatter)
	}
	return logger
}

// Default is a package-level logger usable before a configured instance
// exists (e.g. while parsing flags/config).
var Default = New(DefaultOptions())
