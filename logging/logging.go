// Package logging carries the structured logging surface shared by the
// bridge and the drivers, plus a zap-backed implementation of it.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger defines methods for structured logging. The key-value pair style
// matches zap.SugaredLogger; any structured logger can be adapted.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NewNop returns a logger that discards all entries. Packages in this
// module default to it when no logger is configured.
func NewNop() Logger { return nopLogger{} }

type options struct {
	level       zapcore.Level
	outputPaths []string
}

// Option configures New.
type Option func(*options)

// WithLevel sets the minimum enabled level. Info by default.
func WithLevel(level zapcore.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithOutputPaths overrides where entries are written. Stdout by default.
func WithOutputPaths(paths ...string) Option {
	return func(o *options) {
		o.outputPaths = paths
	}
}

// New builds a production zap logger and adapts it to Logger. The returned
// cleanup flushes buffered entries and must be called before exit.
func New(opts ...Option) (Logger, func(), error) {
	o := options{level: zapcore.InfoLevel, outputPaths: []string{"stdout"}}
	for _, opt := range opts {
		opt(&o)
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(o.level)
	zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapCfg.OutputPaths = o.outputPaths

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		_ = logger.Sync()
	}
	return FromZap(logger), cleanup, nil
}

// FromZap adapts an existing zap logger to the Logger interface.
func FromZap(l *zap.Logger) Logger {
	return zapAdapter{sugar: l.Sugar()}
}

type zapAdapter struct{ sugar *zap.SugaredLogger }

func (a zapAdapter) Debug(msg string, keysAndValues ...any) { a.sugar.Debugw(msg, keysAndValues...) }
func (a zapAdapter) Info(msg string, keysAndValues ...any)  { a.sugar.Infow(msg, keysAndValues...) }
func (a zapAdapter) Warn(msg string, keysAndValues ...any)  { a.sugar.Warnw(msg, keysAndValues...) }
func (a zapAdapter) Error(msg string, keysAndValues ...any) { a.sugar.Errorw(msg, keysAndValues...) }
