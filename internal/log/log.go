// Package log provides the process-wide structured logger.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the shared sugared logger used across the daemon. It is
// replaced once at startup by CreateLogger; packages that need to log
// before startup (rare) get a no-op logger.
var Logger *zap.SugaredLogger = zap.NewNop().Sugar()

// defaultLogMaxSizeMB bounds a single rotated log file before lumberjack
// starts a new one; a privileged daemon is expected to run indefinitely,
// so the file sink must never grow unbounded.
const defaultLogMaxSizeMB = 100

// ParseLogLevel maps the daemon's --log-level flag / daemon.log_level
// config field onto a zap level.
func ParseLogLevel(s string) (zapcore.Level, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return lvl, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return lvl, nil
}

// CreateLogger builds the production logger: console-encoded, colored
// level, ISO8601 timestamps, always writing to stderr. logFile, when
// non-empty, additionally writes to that path through a lumberjack
// rotating writer capped at defaultLogMaxSizeMB.
func CreateLogger(lvl zapcore.Level, logFile string) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), zapcore.Lock(zapcore.AddSync(os.Stderr)), lvl)
	if logFile != "" {
		fileCore := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), newLumberjackSink(logFile, defaultLogMaxSizeMB), lvl)
		core = zapcore.NewTee(core, fileCore)
	}

	return zap.New(core).Sugar()
}

// CreateLoggerWithLumberjack builds a logger that writes only to a
// rotating logFile through lumberjack, capped at maxSizeMB per file.
// Used directly where a file-only sink is wanted (e.g. tests exercising
// rotation) rather than CreateLogger's stderr+file tee.
func CreateLoggerWithLumberjack(logFile string, maxSizeMB int, lvl zapcore.Level) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), newLumberjackSink(logFile, maxSizeMB), lvl)
	return zap.New(core).Sugar()
}

func newLumberjackSink(logFile string, maxSizeMB int) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename: logFile,
		MaxSize:  maxSizeMB,
	})
}
