// Package logging sets up the process zerolog logger and carries it in
// contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Format is "console" (default) or "json".
	Format string
	// Out defaults to stderr.
	Out io.Writer
}

// New builds a logger writing through a non-blocking diode ring buffer and
// installs it as the global zerolog logger. The returned func flushes and
// closes the buffer.
func New(opts Options) (zerolog.Logger, func()) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(opts.Level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}

	// Size: 1000, poll interval: 5ms
	wr := diode.NewWriter(out, 1000, 5*time.Millisecond, func(missed int) {
		fmt.Fprintf(os.Stderr, "logger dropped %d messages\n", missed)
	})

	var w io.Writer = wr
	if !strings.EqualFold(opts.Format, "json") {
		w = zerolog.ConsoleWriter{
			Out:        wr,
			TimeFormat: time.DateTime,
			PartsOrder: []string{
				zerolog.LevelFieldName,
				zerolog.TimestampFieldName,
				zerolog.MessageFieldName,
			},
		}
	}

	logger := zerolog.New(w).Level(lvl).With().Timestamp().Logger()
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return logger, func() { _ = wr.Close() }
}

// NewContextWithLogger returns ctx carrying a logger built from opts.
func NewContextWithLogger(ctx context.Context, opts Options) (context.Context, func()) {
	logger, closeFn := New(opts)
	return logger.WithContext(ctx), closeFn
}

// FromCtx returns the logger carried by ctx, the global default when ctx has
// none (a disabled logger before New ran).
func FromCtx(ctx context.Context) *zerolog.Logger {
	return log.Ctx(ctx)
}
