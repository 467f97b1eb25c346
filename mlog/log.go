// Package mlog provides logging with log levels and fields on top of
// log/slog.
//
// Each Log is bound to an originating package (field "pkg" in logged
// lines). Logging strings themselves should be constant, with variable data
// in fields, for easier log processing.
package mlog

import (
	"context"
	"log/slog"
	"os"
)

// Log wraps an slog.Logger. The zero value is not usable, use New.
type Log struct {
	*slog.Logger
}

// New returns a Log for the given package. If elog is nil, the default
// slog logger is used.
func New(pkg string, elog *slog.Logger) Log {
	if elog == nil {
		elog = slog.Default()
	}
	return Log{elog.With(slog.String("pkg", pkg))}
}

func (l Log) Debug(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

// Debugx logs at debug level, adding a non-nil err as field "err".
func (l Log) Debugx(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Debug(msg, attrs...)
}

func (l Log) Info(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(context.Background(), slog.LevelInfo, msg, attrs...)
}

func (l Log) Infox(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Info(msg, attrs...)
}

func (l Log) Error(msg string, attrs ...slog.Attr) {
	l.Logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

func (l Log) Errorx(msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append([]slog.Attr{slog.Any("err", err)}, attrs...)
	}
	l.Error(msg, attrs...)
}

// Check logs an error if err is not nil. Intended for logging errors that
// are good to know, but would not influence program flow.
func (l Log) Check(err error, msg string, attrs ...slog.Attr) {
	if err != nil {
		l.Errorx(msg, err, attrs...)
	}
}

// Fatalx logs the error and exits with status 1.
func (l Log) Fatalx(msg string, err error, attrs ...slog.Attr) {
	l.Errorx(msg, err, attrs...)
	os.Exit(1)
}
