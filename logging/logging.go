// Package logging configures the zerolog logger used by the payments binary.
//
// Stdout carries the report, so logs never go there: they are written to
// stderr through a ConsoleWriter, or as JSON lines to a log file.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options selects level and destination.
type Options struct {
	Debug   bool
	LogFile string // empty for stderr
	RunID   string
}

// New returns a logger carrying run_id, and a Closer for the log file
// (a no-op when logging to stderr).
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if opts.Debug {
		level = zerolog.DebugLevel
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
	)
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer = f, f
	} else {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if opts.RunID != "" {
		ctx = ctx.Str("run_id", opts.RunID)
	}
	return ctx.Logger(), closer, nil
}

// Discard returns a logger that writes nothing.
func Discard() zerolog.Logger {
	return zerolog.Nop()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
