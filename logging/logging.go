// Package logging contains the logger setup shared by the stitcher components.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Logger is the logging interface handed to every component constructor.
type Logger = *zap.SugaredLogger

// NewLoggerConfig returns a new default logger config: console encoding,
// colored levels, ISO8601 timestamps, no stacktraces.
func NewLoggerConfig() zap.Config {
	return zap.Config{
		Level:    zap.NewAtomicLevelAt(zap.InfoLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
	}
}

// NewLogger returns a new logger that outputs Info+ logs to stdout.
func NewLogger(name string) Logger {
	return zap.Must(NewLoggerConfig().Build()).Sugar().Named(name)
}

// NewDebugLogger returns a new logger that outputs Debug+ logs to stdout.
func NewDebugLogger(name string) Logger {
	config := NewLoggerConfig()
	config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	return zap.Must(config.Build()).Sugar().Named(name)
}

// NewTestLogger returns a Debug+ logger wired to the test's log output.
func NewTestLogger(tb testing.TB) Logger {
	return zaptest.NewLogger(tb, zaptest.WrapOptions(zap.AddCaller())).Sugar()
}
