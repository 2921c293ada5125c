// Package logging builds the server's structured, level-filtered,
// append-only log sink. It replaces the original's bespoke producer/
// consumer blocking-queue log drainer with zap's own buffered writer plus
// lumberjack-managed rotation — the idiomatic Go way to get "append-only
// rotated log files under a directory" without hand-rolling a queue.
package logging

import (
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config mirrors the logging knobs from spec.md §6's configuration surface.
type Config struct {
	Enabled  bool
	Level    int // 0=debug,1=info,2=warn,3=error, matching the original's ordinal levels
	Dir      string
	QueueCap int // retained for config-surface compatibility; zap buffers internally
}

// New builds a *zap.Logger writing JSON lines into cfg.Dir/server.log,
// rotated by lumberjack, filtered at cfg.Level. If cfg.Enabled is false, a
// no-op logger is returned so callers never need a nil check.
func New(cfg Config) (*zap.Logger, error) {
	if !cfg.Enabled {
		return zap.NewNop(), nil
	}

	writer := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "server.log"),
		MaxSize:    100, // MB
		MaxBackups: 10,
		MaxAge:     28, // days
		Compress:   true,
	})

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), writer, levelFrom(cfg.Level))
	return zap.New(core, zap.AddCaller()), nil
}

func levelFrom(level int) zapcore.Level {
	switch level {
	case 0:
		return zapcore.DebugLevel
	case 1:
		return zapcore.InfoLevel
	case 2:
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}
