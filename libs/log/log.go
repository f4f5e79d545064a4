// Package log provides the structured logging interface used throughout
// reimint, backed by github.com/go-kit/log. Mirrors cometbft's
// libs/log package (Debug/Info/Error/With), trading the newer slog-based
// implementation for the go-kit/log encoder actually pinned in go.mod.
package log

import (
	"io"
	"os"

	kitlog "github.com/go-kit/log"
)

// Logger is the logging interface consumed by every component. With
// returns a new Logger with the given key/value pairs prepended to every
// subsequent line, matching cometbft's contextual-logger convention
// (e.g. `logger.With("height", h, "round", r)`).
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
}

type logfmtLogger struct {
	kl kitlog.Logger
}

// NewLogfmtLogger returns a Logger that writes logfmt-encoded lines to w.
func NewLogfmtLogger(w io.Writer) Logger {
	return &logfmtLogger{kl: kitlog.NewLogfmtLogger(w)}
}

// NewStdoutLogger returns a Logger writing logfmt to os.Stdout, the
// default used by cmd-level wiring.
func NewStdoutLogger() Logger {
	return NewLogfmtLogger(os.Stdout)
}

func (l *logfmtLogger) log(level string, msg string, keyvals ...interface{}) {
	args := make([]interface{}, 0, len(keyvals)+4)
	args = append(args, "level", level, "msg", msg)
	args = append(args, keyvals...)
	_ = l.kl.Log(args...)
}

func (l *logfmtLogger) Debug(msg string, keyvals ...interface{}) { l.log("debug", msg, keyvals...) }
func (l *logfmtLogger) Info(msg string, keyvals ...interface{})  { l.log("info", msg, keyvals...) }
func (l *logfmtLogger) Error(msg string, keyvals ...interface{}) { l.log("error", msg, keyvals...) }

func (l *logfmtLogger) With(keyvals ...interface{}) Logger {
	return &logfmtLogger{kl: kitlog.With(l.kl, keyvals...)}
}

// nopLogger discards everything; used by default in tests and wherever
// no logger has been configured.
type nopLogger struct{}

// NewNopLogger returns a Logger whose methods are no-ops.
func NewNopLogger() Logger { return nopLogger{} }

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) With(...interface{}) Logger   { return nopLogger{} }
