// Package logging builds the zap logger every component receives.
//
// Build output goes to stderr so that stdout stays reserved for command
// results. An optional rotated JSON file keeps a debug trail in the cache dir.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// TopicPrefix marks a section heading in build output.
const TopicPrefix = "-----> "

// Config selects verbosity and the optional file sink.
type Config struct {
	Verbose bool
	// File enables a JSON debug log at this path.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Out overrides the console writer (stderr).
	Out io.Writer
}

// New returns a logger teeing a console core and, when configured, a file core.
func New(cfg Config) *zap.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	level := zap.InfoLevel
	if cfg.Verbose {
		level = zap.DebugLevel
	}

	consoleConfig := zap.NewDevelopmentEncoderConfig()
	consoleConfig.TimeKey = ""
	consoleConfig.CallerKey = ""
	consoleConfig.NameKey = ""
	consoleConfig.EncodeLevel = buildpackLevel
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(out), level),
	}

	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 5
		}
		fileWriter := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize, // megabytes
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		})
		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.TimeKey = "timestamp"
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), fileWriter, zap.DebugLevel))
	}

	return zap.New(zapcore.NewTee(cores...))
}

// buildpackLevel indents info lines the way buildpack output is indented and
// flags warnings and errors.
func buildpackLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch l {
	case zapcore.InfoLevel:
		enc.AppendString("      ")
	case zapcore.DebugLevel:
		enc.AppendString("  debug")
	case zapcore.WarnLevel:
		enc.AppendString(" !     WARNING:")
	default:
		enc.AppendString(" !     ERROR:")
	}
}

// Topic logs a buildpack section heading.
func Topic(log *zap.Logger, msg string) {
	log.Info(TopicPrefix + msg)
}
