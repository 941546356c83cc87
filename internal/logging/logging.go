// Package logging wires charmbracelet/log behind the small Logger interface
// every component receives in its constructor.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

type Logger interface {
	Debug(interface{}, ...interface{})
	Info(interface{}, ...interface{})
	Warn(interface{}, ...interface{})
	Error(interface{}, ...interface{})
}

type Options struct {
	Writer io.Writer
	Level  string
	Prefix string
}

func New(opts Options) Logger {
	var w io.Writer = os.Stderr
	if opts.Writer != nil {
		w = opts.Writer
	}

	lvl, err := log.ParseLevel(opts.Level)
	if err != nil {
		lvl = log.InfoLevel
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          opts.Prefix,
		ReportTimestamp: true,
	})
}

// Discard is handy in tests.
func Discard() Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
