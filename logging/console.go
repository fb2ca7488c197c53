package logging

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
)

// ConsoleOptions configure the development console logger.
type ConsoleOptions struct {
	// Level is the minimum level rendered. Defaults to LogLevelInfo.
	Level LogLevel

	// Output receives the rendered lines. Defaults to os.Stderr.
	Output io.Writer

	// NoColor disables ANSI colors, for dumb terminals and captured output.
	NoColor bool
}

// NewConsoleLogger returns a Logger rendering compact colorized lines, meant
// for development and the examples. Services embedding the library keep the
// JSON handler from NewLogger or plug their own slog handler through
// NewSlogAdapter.
func NewConsoleLogger(optFns ...func(o *ConsoleOptions)) Logger {
	opts := ConsoleOptions{Level: LogLevelInfo, Output: os.Stderr}
	for _, fn := range optFns {
		fn(&opts)
	}
	handler := tint.NewHandler(opts.Output, &tint.Options{
		Level:      slogLevel(opts.Level),
		TimeFormat: time.Kitchen,
		NoColor:    opts.NoColor,
	})
	return NewSlogAdapter(slog.New(handler))
}
