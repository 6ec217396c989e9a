// Package log provides structured, leveled key/value logging in the style
// go-ethereum's internal log package exposes to the rest of that codebase:
// package-level Debug/Info/Warn/Error/Crit functions writing through a
// swappable root Logger.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the interface the rest of the module logs through. It is
// implemented by the slog-backed logger that Root, New and NewFileHandler
// return; *slog.Logger itself does not satisfy it (it has no Crit).
type Logger interface {
	Debug(msg string, ctx ...any)
	Info(msg string, ctx ...any)
	Warn(msg string, ctx ...any)
	Error(msg string, ctx ...any)
	Crit(msg string, ctx ...any)
	With(ctx ...any) Logger
}

type logger struct {
	inner *slog.Logger
}

func (l *logger) Debug(msg string, ctx ...any) { l.inner.Debug(msg, ctx...) }
func (l *logger) Info(msg string, ctx ...any)  { l.inner.Info(msg, ctx...) }
func (l *logger) Warn(msg string, ctx ...any)  { l.inner.Warn(msg, ctx...) }
func (l *logger) Error(msg string, ctx ...any) { l.inner.Error(msg, ctx...) }

// Crit logs at error level and then terminates the process, mirroring
// go-ethereum's log.Crit.
func (l *logger) Crit(msg string, ctx ...any) {
	l.inner.Error(msg, ctx...)
	os.Exit(1)
}

func (l *logger) With(ctx ...any) Logger {
	return &logger{inner: l.inner.With(ctx...)}
}

var rootLevel = new(slog.LevelVar)

var root Logger = &logger{inner: slog.New(newTerminalHandler(os.Stderr, isatty.IsTerminal(os.Stderr.Fd())))}

// Root returns the module's root logger.
func Root() Logger { return root }

// SetRoot replaces the module's root logger, e.g. to point at a file sink
// built with NewFileHandler.
func SetRoot(l Logger) { root = l }

// SetLevelString adjusts the root handler's minimum level, accepting the
// names config.Config.LogLevel carries ("debug", "info", "warn", "error",
// "crit"). Unrecognized names are treated as "info".
func SetLevelString(name string) {
	switch name {
	case "debug":
		rootLevel.Set(slog.LevelDebug)
	case "warn":
		rootLevel.Set(slog.LevelWarn)
	case "error", "crit":
		rootLevel.Set(slog.LevelError)
	default:
		rootLevel.Set(slog.LevelInfo)
	}
}

func Debug(msg string, ctx ...any) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...any)  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...any)  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...any) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...any)  { root.Crit(msg, ctx...) }

// New returns a logger that prefixes every record with the given context.
func New(ctx ...any) Logger { return root.With(ctx...) }

// terminalHandler renders colorized, human-readable lines when attached to
// a tty, and falls back to slog's plain text handler otherwise (e.g. when
// output is redirected to a file or pipe).
type terminalHandler struct {
	slog.Handler
	useColor bool
}

func newTerminalHandler(w *os.File, tty bool) slog.Handler {
	var out io.Writer = w
	if tty {
		out = colorable.NewColorable(w)
	}
	return &terminalHandler{
		Handler:  slog.NewTextHandler(out, &slog.HandlerOptions{Level: rootLevel}),
		useColor: tty,
	}
}

func (h *terminalHandler) Handle(ctx context.Context, r slog.Record) error {
	if !h.useColor {
		return h.Handler.Handle(ctx, r)
	}
	r.Message = colorForLevel(r.Level).Sprint(r.Message)
	return h.Handler.Handle(ctx, r)
}

func colorForLevel(lvl slog.Level) *color.Color {
	switch {
	case lvl >= slog.LevelError:
		return color.New(color.FgRed, color.Bold)
	case lvl >= slog.LevelWarn:
		return color.New(color.FgYellow)
	case lvl >= slog.LevelInfo:
		return color.New(color.FgGreen)
	default:
		return color.New(color.FgWhite)
	}
}

// NewFileHandler returns a Logger that writes plain-text records to a
// lumberjack-rotated file, for long-running demo or server processes that
// should not grow an unbounded log file.
func NewFileHandler(path string, maxSizeMB, maxBackups, maxAgeDays int) Logger {
	w := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
	}
	return &logger{inner: slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
}

// Lazy formats msg and args on demand only if the record is actually
// emitted, useful for expensive context that is rarely logged.
type Lazy struct {
	Fn func() string
}

func (l Lazy) String() string { return l.Fn() }

var _ fmt.Stringer = Lazy{}
