// Package zlog is the thin structured-logging wrapper used by Server. It
// exists only to give the core a default (stderr, text) without forcing a
// *slog.Logger import at every call site.
package zlog

import (
	"log/slog"
	"os"
)

// Logger is a structured logger interface that *slog.Logger satisfies
// directly. Nothing in this module accepts a Logger value: Server takes a
// *slog.Logger through zlinkcfg.Config, and Proxy and the transport
// packages do no logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	With(args ...any) *slog.Logger
}

// Default returns a *slog.Logger writing text-formatted records to stderr
// at Info level, the logger used when none is supplied via configuration.
func Default() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

// Discard returns a logger that drops every record; useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
