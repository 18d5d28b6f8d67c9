// Package logger holds the process-wide zap logger.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Logger *zap.Logger

var level zap.AtomicLevel

func init() {
	lc := zap.NewDevelopmentConfig()
	lc.EncoderConfig.TimeKey = ""
	lc.Level.SetLevel(zapcore.InfoLevel)
	level = lc.Level
	Logger, _ = lc.Build()
}

// SetLevel adjusts the minimum level of the process-wide logger.
func SetLevel(l zapcore.Level) {
	level.SetLevel(l)
}

// S returns the process-wide sugared logger.
func S() *zap.SugaredLogger {
	return Logger.Sugar()
}
